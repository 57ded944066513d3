// Package ingest drives the Fetcher to collect raw listings and writes them
// into the Store's Raw collection (§4.E). It runs in two modes: a bulk
// crawl that walks a bounded page range once, and an incremental loop that
// re-walks the listing stream and stops early once it recognises the
// already-ingested tail.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"xtracto/internal/fetcher"
	"xtracto/internal/models"
	"xtracto/internal/store"
)

// Ingester collects listings via a Fetcher and upserts them into Raw,
// shallow-recording any agency hint it sees along the way.
type Ingester struct {
	fetcher   fetcher.Fetcher
	store     *store.Store
	blacklist models.Blacklist
	log       *slog.Logger
}

func New(f fetcher.Fetcher, s *store.Store, blacklist models.Blacklist, log *slog.Logger) *Ingester {
	return &Ingester{fetcher: f, store: s, blacklist: blacklist, log: log}
}

// BulkCrawl walks pages 1..pageLimit once, upserting every listing it finds
// into Raw (§4.E "day window entry"). pageLimit is clamped to 100.
func (in *Ingester) BulkCrawl(ctx context.Context, filters fetcher.Filters, pageLimit int) error {
	if pageLimit > 100 {
		pageLimit = 100
	}
	stream, err := in.fetcher.FetchListingPages(ctx, filters, pageLimit)
	if err != nil {
		return fmt.Errorf("ingest: fetch listing pages: %w", err)
	}

	var count int
	for stream.Next(ctx) {
		listing := stream.Listing()
		if err := in.ingestOne(ctx, &listing); err != nil {
			in.log.Warn("ingest: listing upsert failed", "idSec", listing.IDSec, "err", err)
			continue
		}
		count++
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("ingest: stream: %w", err)
	}
	in.log.Info("bulk crawl finished", "listings", count, "pages", pageLimit)
	return nil
}

// LoopOnce runs a single incremental pass: walk from page 1 and stop as soon
// as two consecutive listings on the same page are already known in Raw
// with a matching (idSec, title, price) — the "catch-up-then-yield"
// heuristic (§4.E). Returns the number of new listings ingested.
func (in *Ingester) LoopOnce(ctx context.Context, filters fetcher.Filters, pageLimit int) (int, error) {
	stream, err := in.fetcher.FetchListingPages(ctx, filters, pageLimit)
	if err != nil {
		return 0, fmt.Errorf("ingest: fetch listing pages: %w", err)
	}

	var ingested int
	consecutiveKnown := 0
	currentPage := 0

	for stream.Next(ctx) {
		listing := stream.Listing()
		if stream.Page() != currentPage {
			// a new page started; the "two consecutive" rule only applies
			// within a single page per §4.E ("two consecutive listings on
			// the same page").
			currentPage = stream.Page()
			consecutiveKnown = 0
		}

		known, err := in.alreadyKnown(ctx, &listing)
		if err != nil {
			in.log.Warn("ingest: known-listing check failed", "idSec", listing.IDSec, "err", err)
			known = false
		}

		if known {
			consecutiveKnown++
			if consecutiveKnown >= 2 {
				in.log.Info("loop ingest: early stop", "page", currentPage, "ingested", ingested)
				return ingested, nil
			}
			continue
		}
		consecutiveKnown = 0

		if err := in.ingestOne(ctx, &listing); err != nil {
			in.log.Warn("ingest: listing upsert failed", "idSec", listing.IDSec, "err", err)
			continue
		}
		ingested++
	}
	if err := stream.Err(); err != nil {
		return ingested, fmt.Errorf("ingest: stream: %w", err)
	}
	return ingested, nil
}

// Loop runs LoopOnce repeatedly until ctx is canceled, sleeping a randomised
// 2-5 minute interval between cycles (§4.E).
func (in *Ingester) Loop(ctx context.Context, filters fetcher.Filters, pageLimit int) error {
	for {
		if _, err := in.LoopOnce(ctx, filters, pageLimit); err != nil {
			in.log.Error("loop ingest cycle failed", "err", err)
		}

		interval := 2*time.Minute + time.Duration(rand.Int63n(int64(3*time.Minute)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// alreadyKnown reports whether a listing with l's (idSec, title, price)
// triple already exists in Raw.
func (in *Ingester) alreadyKnown(ctx context.Context, l *models.Listing) (bool, error) {
	_, err := in.store.Raw.FindOne(ctx, store.FinalKey(l))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ingestOne normalises and upserts a single listing into Raw, rejecting
// blacklisted storeIds and recording a shallow AgencyBrute hint when present
// (§4.E).
func (in *Ingester) ingestOne(ctx context.Context, l *models.Listing) error {
	if in.blacklist.Contains(l.StoreID) {
		return nil
	}

	now := time.Now()
	l.ScrapedAt = &now
	l.RecountImages()

	fields, err := store.ToFields(l)
	if err != nil {
		return fmt.Errorf("ingest: encode listing: %w", err)
	}
	if _, err := in.store.Raw.UpsertOne(ctx, store.RawKey(l), fields); err != nil {
		return err
	}

	if l.StoreID != "" && l.AgencyName != "" {
		agency := &models.Agency{
			StoreID: l.StoreID,
			Name:    l.AgencyName,
			Lien:    models.AgencyLink(models.BaseURL, l.StoreID),
			Scraped: false,
		}
		if err := in.recordAgencyHint(ctx, agency, l); err != nil {
			in.log.Warn("ingest: agency hint upsert failed", "storeId", l.StoreID, "err", err)
		}
	}
	return nil
}

// recordAgencyHint upserts a shallow AgencyBrute row for an agency seen only
// by storeId/name so far, then writes the resulting id back onto l.idAgence
// (§4.E).
func (in *Ingester) recordAgencyHint(ctx context.Context, a *models.Agency, l *models.Listing) error {
	existing, err := in.store.AgencyBrute.FindOne(ctx, store.AgencyKey(a))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if existing != nil {
		l.IDAgence = existing.ID
		return in.store.Raw.UpdateOne(ctx, store.RawKey(l), bson.M{"idAgence": existing.ID})
	}

	a.ID = uuid.NewString()
	fields, err := store.ToFields(a)
	if err != nil {
		return fmt.Errorf("ingest: encode agency: %w", err)
	}
	if _, err := in.store.AgencyBrute.UpsertOne(ctx, store.AgencyKey(a), fields); err != nil {
		return err
	}
	l.IDAgence = a.ID
	return in.store.Raw.UpdateOne(ctx, store.RawKey(l), bson.M{"idAgence": a.ID})
}
