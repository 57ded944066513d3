package fetcher

import (
	"context"
	"errors"

	"xtracto/internal/models"
)

// Null is a Fetcher that yields nothing and fails every detail lookup with
// KindPermanent. It exists so the pipeline stages can be wired and tested
// (or run locally against a pre-seeded Raw collection) without a real
// browser-automation backend configured.
type Null struct{}

var _ Fetcher = Null{}

func (Null) FetchListingPages(ctx context.Context, filters Filters, pageLimit int) (ListingStream, error) {
	return emptyStream{}, nil
}

func (Null) FetchListingDetail(ctx context.Context, listingURL string) (*ListingDetail, error) {
	return nil, &Error{Kind: KindPermanent, Err: errors.New("fetcher: no backend configured")}
}

func (Null) FetchAgencyDetail(ctx context.Context, agencyURL string) (*AgencyDetail, error) {
	return nil, &Error{Kind: KindPermanent, Err: errors.New("fetcher: no backend configured")}
}

type emptyStream struct{}

func (emptyStream) Next(ctx context.Context) bool { return false }
func (emptyStream) Listing() models.Listing       { return models.Listing{} }
func (emptyStream) Page() int                     { return 0 }
func (emptyStream) Err() error                    { return nil }
