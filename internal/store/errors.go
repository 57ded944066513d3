package store

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrAlreadyExists signals a unique-key violation on insert. Per §4.A this
// is not an error condition for callers — it means another writer already
// holds the row, and the caller should react by upserting or skipping.
var ErrAlreadyExists = errors.New("store: document already exists for unique key")

// ErrNotFound is returned by FindOne when no document matches the filter.
var ErrNotFound = errors.New("store: no matching document")

// isDuplicateKeyError reports whether err is a MongoDB unique-index
// violation (server error code 11000, or 11001 for the legacy format).
func isDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
