// Package fetcher declares the external collaborator boundary §4.D and §1
// draw around the browser-automation layer: the core only ever depends on
// this interface, never on a concrete scraping implementation. CAPTCHA
// solving, cookie/popup handling, anti-bot evasion and human-behaviour
// simulation live on the other side of it and are out of scope here.
package fetcher

import (
	"context"
	"errors"

	"xtracto/internal/models"
)

// Kind classifies a Fetcher failure so callers can apply §7's recovery
// policy without inspecting error strings.
type Kind int

const (
	// KindTransient covers network errors, 5xx responses and timeouts —
	// retryable with backoff.
	KindTransient Kind = iota
	// KindPermanent covers 404s, invalid URLs and decode failures — the
	// affected slot is abandoned, the record still progresses.
	KindPermanent
	// KindPageGone signals the source page no longer exists; the core
	// deletes the offending Raw record.
	KindPageGone
	// KindAntiBot signals a CAPTCHA or bot-detection wall; the stage tears
	// down its session and restarts its outer loop after a short wait.
	KindAntiBot
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindPageGone:
		return "page_gone"
	case KindAntiBot:
		return "anti_bot"
	default:
		return "unknown"
	}
}

// Error wraps a Fetcher failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, defaulting to KindTransient for any error
// that didn't originate from this package (§7: unclassified fetch failures
// are treated as transient and retried before being surfaced as permanent).
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// Filters are opaque source-specific search parameters (location, price
// range, property type, ...) passed through to FetchListingPages untouched.
type Filters map[string]string

// ListingDetail is what FetchListingDetail extracts from a listing's detail
// page: just enough to resolve its agency (§4.D).
type ListingDetail struct {
	AgencyLink string
	AgencyName string
	StoreID    string
}

// AgencyDetail is what FetchAgencyDetail extracts from an agency's page.
// Fields use models.SentinelNotFound as the "field present but empty on
// source" sentinel, the value Agency.CompletenessScore treats as absent.
type AgencyDetail struct {
	Name             string
	Lien             string
	CodeSiren        string
	Logo             string
	Adresse          string
	ZoneIntervention string
	SiteWeb          string
	Horaires         string
	Number           string
	Description      string
}

// ListingStream yields RawListing values in page order (§4.D: "may produce
// duplicates; the consumer must deduplicate on idSec"). Callers must drain
// it to completion or abandon it on context cancellation; there is no
// explicit Close because an exhausted or canceled stream releases its own
// resources.
type ListingStream interface {
	// Next advances the stream, returning false at its natural end, at
	// pageLimit, or on error (distinguish via Err).
	Next(ctx context.Context) bool
	// Listing returns the value most recently advanced to by Next.
	Listing() models.Listing
	// Page reports the 1-based source page the current listing came from.
	Page() int
	// Err returns any error that ended iteration early.
	Err() error
}

// Fetcher is the abstract source of listings and agency details that the
// core depends on (§4.D). A correct in-process implementation with a clean
// lifecycle is acceptable; the source's child-process browser isolation is
// an implementation detail, not a requirement (§9).
type Fetcher interface {
	// FetchListingPages walks pages 1..pageLimit of filters' result set and
	// streams the listings found.
	FetchListingPages(ctx context.Context, filters Filters, pageLimit int) (ListingStream, error)
	// FetchListingDetail resolves a single listing's agency hints, or
	// returns an *Error with Kind==KindPageGone if the source removed it.
	FetchListingDetail(ctx context.Context, listingURL string) (*ListingDetail, error)
	// FetchAgencyDetail resolves an agency's full detail page.
	FetchAgencyDetail(ctx context.Context, agencyURL string) (*AgencyDetail, error)
}
