// Package agency implements the night-window agency resolver (§4.F): for
// each Raw record not yet in WithAgency and not marked noAgencyFound, it
// discovers the agency via the
// Fetcher, reconciles it against AgencyBrute/AgencyFinal by completeness,
// and promotes the listing into WithAgency.
package agency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"xtracto/internal/fetcher"
	"xtracto/internal/models"
	"xtracto/internal/store"
)

type Resolver struct {
	fetcher   fetcher.Fetcher
	store     *store.Store
	blacklist models.Blacklist
	log       *slog.Logger
}

func New(f fetcher.Fetcher, s *store.Store, blacklist models.Blacklist, log *slog.Logger) *Resolver {
	return &Resolver{fetcher: f, store: s, blacklist: blacklist, log: log}
}

// candidateFilter selects Raw records not marked noAgencyFound (§4.F).
// Records already present in WithAgency still match it; RunOnce skips them
// one by one via alreadyInWithAgency.
func candidateFilter() bson.M {
	return bson.M{"noAgencyFound": bson.M{"$ne": true}}
}

// PendingResolveFilter exposes candidateFilter to callers outside this
// package (the control surface's backlog gauge) that need the exact same
// Raw-collection query RunOnce walks.
func PendingResolveFilter() bson.M {
	return candidateFilter()
}

// enrichCandidateFilter selects AgencyBrute rows that have never been
// visited on their own profile page (§4.H "agence_brute").
func enrichCandidateFilter() bson.M {
	return bson.M{"scraped": bson.M{"$ne": true}}
}

// PendingEnrichFilter exposes enrichCandidateFilter to callers outside this
// package that need the AgencyBrute-collection backlog EnrichBrute walks.
func PendingEnrichFilter() bson.M {
	return enrichCandidateFilter()
}

// RunOnce walks every eligible Raw record once, stopping early if ctx is
// canceled between records (never mid-record, §5 Cancellation).
func (r *Resolver) RunOnce(ctx context.Context) error {
	cur, err := r.store.Raw.Find(ctx, candidateFilter())
	if err != nil {
		return fmt.Errorf("agency: find candidates: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := cur.Decode()
		if err != nil {
			r.log.Warn("agency: decode failed", "err", err)
			continue
		}

		alreadyResolved, err := r.alreadyInWithAgency(ctx, raw)
		if err != nil {
			r.log.Warn("agency: existence check failed", "idSec", raw.IDSec, "err", err)
			continue
		}
		if alreadyResolved {
			continue
		}

		if err := r.resolveOne(ctx, raw); err != nil {
			r.log.Warn("agency: resolve failed", "idSec", raw.IDSec, "err", err)
		}
	}
	return cur.Err()
}

func (r *Resolver) alreadyInWithAgency(ctx context.Context, l *models.Listing) (bool, error) {
	_, err := r.store.WithAgency.FindOne(ctx, store.RawKey(l))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// resolveOne implements §4.F steps 1-4 for a single Raw record.
func (r *Resolver) resolveOne(ctx context.Context, raw *models.Listing) error {
	detail, err := r.fetcher.FetchListingDetail(ctx, raw.URL)
	if err != nil {
		if fetcher.KindOf(err) == fetcher.KindPageGone {
			return r.store.Raw.DeleteOne(ctx, store.RawKey(raw))
		}
		return fmt.Errorf("fetch listing detail: %w", err)
	}

	if detail == nil || detail.StoreID == "" {
		return r.markNoAgencyFound(ctx, raw)
	}

	if r.blacklist.Contains(detail.StoreID) {
		return r.store.Raw.DeleteOne(ctx, store.RawKey(raw))
	}

	idAgence, err := r.resolveAgencyID(ctx, detail)
	if err != nil {
		return fmt.Errorf("resolve agency id: %w", err)
	}

	raw.IDAgence = idAgence
	raw.StoreID = detail.StoreID
	raw.AgencyName = detail.AgencyName
	raw.Processed = false

	fields, err := store.ToFields(raw)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	_, err = r.store.WithAgency.UpsertOne(ctx, store.RawKey(raw), fields)
	return err
}

// resolveAgencyID implements §4.F step 2: prefer an existing AgencyFinal
// row, otherwise fetch detail and upsert both AgencyBrute and AgencyFinal
// under the same id.
func (r *Resolver) resolveAgencyID(ctx context.Context, detail *fetcher.ListingDetail) (string, error) {
	final, err := r.store.AgencyFinal.FindOne(ctx, bson.M{"storeId": detail.StoreID})
	if err == nil {
		return final.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	agencyDetail, err := r.fetcher.FetchAgencyDetail(ctx, detail.AgencyLink)
	if err != nil {
		return "", fmt.Errorf("fetch agency detail: %w", err)
	}

	id := uuid.NewString()
	if existingBrute, err := r.store.AgencyBrute.FindOne(ctx, bson.M{"storeId": detail.StoreID}); err == nil {
		// preserve the stable id an AgencyBrute row already carries
		// (§3 invariant 5) instead of minting a fresh one.
		id = existingBrute.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	now := time.Now()
	agency := &models.Agency{
		ID:               id,
		StoreID:          detail.StoreID,
		Name:             agencyDetail.Name,
		Lien:             agencyDetail.Lien,
		CodeSiren:        agencyDetail.CodeSiren,
		Logo:             agencyDetail.Logo,
		Adresse:          agencyDetail.Adresse,
		ZoneIntervention: agencyDetail.ZoneIntervention,
		SiteWeb:          agencyDetail.SiteWeb,
		Horaires:         agencyDetail.Horaires,
		Number:           agencyDetail.Number,
		Description:      agencyDetail.Description,
		Scraped:          true,
		ScrapedAt:        &now,
	}

	fields, err := store.ToFields(agency)
	if err != nil {
		return "", fmt.Errorf("encode agency: %w", err)
	}
	if _, err := r.store.AgencyBrute.UpsertOne(ctx, store.AgencyKey(agency), fields); err != nil {
		return "", err
	}
	if err := PromoteIfMoreComplete(ctx, r.store, id, agency); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Resolver) markNoAgencyFound(ctx context.Context, raw *models.Listing) error {
	return r.store.Raw.UpdateOne(ctx, store.RawKey(raw), bson.M{"noAgencyFound": true})
}

// EnrichBrute walks every not-yet-scraped AgencyBrute row once, visiting the
// agency's own profile page and filling in its full contact/detail fields —
// the "agence_brute" enrichment pass (§4.H), materially distinct from
// RunOnce's per-listing resolve pass: it never touches Raw or WithAgency,
// and its candidate set is AgencyBrute itself filtered on scraped≠true.
func (r *Resolver) EnrichBrute(ctx context.Context) error {
	cur, err := r.store.AgencyBrute.Find(ctx, enrichCandidateFilter())
	if err != nil {
		return fmt.Errorf("agency: find unscraped agencies: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		brute, err := cur.Decode()
		if err != nil {
			r.log.Warn("agency: decode failed", "err", err)
			continue
		}
		if r.blacklist.Contains(brute.StoreID) {
			continue
		}
		if err := r.enrichOne(ctx, brute); err != nil {
			r.log.Warn("agency: enrich failed", "storeId", brute.StoreID, "err", err)
		}
	}
	return cur.Err()
}

// enrichOne fetches a single agency's own profile page and writes the
// enriched row back into AgencyBrute, then promotes it into AgencyFinal
// under its stable id (§3 invariant 5). A freshly scraped row is always at
// least as complete as whatever placeholder AgencyFinal already carries for
// the same id, so the promotion is an unconditional overwrite, matching
// agenceBrute_scraper.py's direct $set rather than RunOnce's
// completeness-gated PromoteIfMoreComplete merge.
func (r *Resolver) enrichOne(ctx context.Context, brute *models.Agency) error {
	lien := brute.Lien
	if lien == "" {
		lien = models.AgencyLink(models.BaseURL, brute.StoreID)
	}

	detail, err := r.fetcher.FetchAgencyDetail(ctx, lien)
	if err != nil {
		return fmt.Errorf("fetch agency detail: %w", err)
	}

	now := time.Now()
	brute.Lien = lien
	brute.CodeSiren = detail.CodeSiren
	brute.Logo = detail.Logo
	brute.Adresse = detail.Adresse
	brute.ZoneIntervention = detail.ZoneIntervention
	brute.SiteWeb = detail.SiteWeb
	brute.Horaires = detail.Horaires
	brute.Number = detail.Number
	brute.Description = detail.Description
	brute.Scraped = true
	brute.ScrapedAt = &now

	fields, err := store.ToFields(brute)
	if err != nil {
		return fmt.Errorf("encode agency: %w", err)
	}
	if _, err := r.store.AgencyBrute.UpsertOne(ctx, store.AgencyKey(brute), fields); err != nil {
		return err
	}
	_, err = r.store.AgencyFinal.UpsertOne(ctx, bson.M{"_id": brute.ID}, fields)
	return err
}

// PromoteIfMoreComplete implements the "higher completeness wins" merge rule
// (§4.F, §8 Law of idempotence of agency merge): overwrite the AgencyFinal
// row sharing id only when candidate is strictly more complete.
func PromoteIfMoreComplete(ctx context.Context, s *store.Store, id string, candidate *models.Agency) error {
	existing, err := s.AgencyFinal.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fields, err := store.ToFields(candidate)
			if err != nil {
				return err
			}
			_, err = s.AgencyFinal.UpsertOne(ctx, bson.M{"_id": id}, fields)
			return err
		}
		return err
	}
	if !candidate.MoreCompleteThan(existing) {
		return nil
	}
	fields, err := store.ToFields(candidate)
	if err != nil {
		return err
	}
	_, err = s.AgencyFinal.UpsertOne(ctx, bson.M{"_id": id}, fields)
	return err
}
