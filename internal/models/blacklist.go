package models

// Blacklist holds storeId values whose listings and agencies must never
// reach the publish-ready collections (§3, §8 universal invariant).
type Blacklist map[string]struct{}

// DefaultBlacklistedStoreIDs mirrors original_source's hardcoded
// BLACKLISTED_STORE_IDS so the worked examples in spec.md §8 keep matching
// out of the box. NewBlacklist extends this set from configuration.
var DefaultBlacklistedStoreIDs = []string{"5608823"}

// NewBlacklist builds a Blacklist from the default set plus any extra
// storeIds supplied (typically parsed from an env var, SPEC_FULL §3.3).
func NewBlacklist(extra ...string) Blacklist {
	b := make(Blacklist, len(DefaultBlacklistedStoreIDs)+len(extra))
	for _, id := range DefaultBlacklistedStoreIDs {
		b[id] = struct{}{}
	}
	for _, id := range extra {
		if id != "" {
			b[id] = struct{}{}
		}
	}
	return b
}

// Contains reports whether storeID is blacklisted.
func (b Blacklist) Contains(storeID string) bool {
	if storeID == "" {
		return false
	}
	_, ok := b[storeID]
	return ok
}
