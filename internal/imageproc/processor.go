// Package imageproc is the image processor stage G: for each WithAgency
// record with processed≠true it downloads, watermark-crops and uploads the
// listing's images, resolves its agency, and atomically promotes the
// record into Final. Grounded on the teacher's old imaging service's
// worker-pool/errgroup pattern, generalized from render-rendition fan-out
// to per-record pipeline stages.
package imageproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"xtracto/internal/agency"
	"xtracto/internal/imagetransform"
	"xtracto/internal/models"
	"xtracto/internal/objectstore"
	"xtracto/internal/store"
)

const (
	batchSize     = 20
	emptySleep    = 10 * time.Second
	imageTimeout  = 8 * time.Second
)

// Processor runs a worker pool of the configured size against batches of
// WithAgency records (§4.G).
type Processor struct {
	store       *store.Store
	objectStore *objectstore.Client
	blacklist   models.Blacklist
	instances   int
	httpClient  *http.Client
	log         *slog.Logger
}

func New(s *store.Store, os *objectstore.Client, blacklist models.Blacklist, instances int, log *slog.Logger) *Processor {
	if instances < 1 {
		instances = 1
	}
	if instances > 10 {
		instances = 10
	}
	return &Processor{
		store:       s,
		objectStore: os,
		blacklist:   blacklist,
		instances:   instances,
		httpClient:  &http.Client{Timeout: imageTimeout},
		log:         log,
	}
}

// Run pulls batches until ctx is canceled. It returns nil on cooperative
// cancellation and a non-nil error only for fatal (store-disconnection
// class) failures that must propagate to the supervisor (§4.G, §7).
func (p *Processor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		batch, err := p.nextBatch(ctx)
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("imageproc: fetch batch: %w", err)
			}
			p.log.Warn("imageproc: fetch batch failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(emptySleep):
			}
			continue
		}

		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(emptySleep):
			}
			continue
		}

		if err := p.runBatch(ctx, batch); err != nil {
			return err
		}
	}
}

// runBatch fans a single batch out across the worker pool. Per-record
// failures are logged and swallowed (§4.G "per-record failures do not
// abort the batch"); only a fatal error aborts the batch and propagates.
func (p *Processor) runBatch(ctx context.Context, batch []models.Listing) error {
	sem := make(chan struct{}, p.instances)
	g, gctx := errgroup.WithContext(ctx)

	for i := range batch {
		rec := batch[i]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		g.Go(func() error {
			defer func() { <-sem }()
			if gctx.Err() != nil {
				return nil
			}
			if err := p.processRecord(gctx, &rec); err != nil {
				if isFatal(err) {
					return err
				}
				p.log.Warn("imageproc: record failed, deferred", "idSec", rec.IDSec, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// nextBatch pulls up to batchSize unprocessed WithAgency records ordered by
// scrapedAt ascending (§4.G, §5 ordering guarantee). It does not additionally
// exclude idSecs already present in Final: processed alone is sufficient in
// the single-writer case, and after the crash window processRecord's
// Final-insert-before-processed-flip ordering defends against (a crash
// between the two), the same record is deliberately picked up again here —
// Final's unique key absorbs the resulting re-upsert as a no-op.
func (p *Processor) nextBatch(ctx context.Context) ([]models.Listing, error) {
	filter := bson.M{"processed": bson.M{"$ne": true}}
	opts := options.Find().SetSort(bson.D{{Key: "scrapedAt", Value: 1}}).SetLimit(batchSize)

	cur, err := p.store.WithAgency.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var batch []models.Listing
	for cur.Next(ctx) {
		rec, err := cur.Decode()
		if err != nil {
			p.log.Warn("imageproc: decode failed", "err", err)
			continue
		}
		batch = append(batch, *rec)
	}
	return batch, cur.Err()
}

// processRecord implements §4.G's per-record state machine.
func (p *Processor) processRecord(ctx context.Context, rec *models.Listing) error {
	if p.blacklist.Contains(rec.StoreID) {
		return p.markTerminalSkip(ctx, rec)
	}
	if !rec.HasUsableImages() {
		return p.markTerminalSkip(ctx, rec)
	}

	for i, url := range rec.Images {
		if url == models.NA || p.objectStore.IsObjectStoreURL(url) {
			continue
		}
		newURL, err := p.transferImage(ctx, rec.IDSec, i, url)
		if err != nil {
			p.log.Warn("imageproc: image transfer failed, slot retained", "idSec", rec.IDSec, "index", i, "err", err)
			continue
		}
		rec.Images[i] = newURL
	}
	rec.RecountImages()

	idAgence, resolved, err := p.resolveAgency(ctx, rec)
	if err != nil {
		return fmt.Errorf("resolve agency: %w", err)
	}
	if !resolved {
		// DEFERRED: leave processed unchanged, retried next sweep.
		return nil
	}
	rec.IDAgence = idAgence

	now := time.Now()
	rec.ProcessedAt = &now
	rec.Processed = true

	fields, err := store.ToFields(rec)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	// Final insertion happens before the WithAgency.processed flip so a
	// crash between the two is recovered idempotently on the next sweep
	// (§7, §9).
	if _, err := p.store.Final.UpsertOne(ctx, store.FinalKey(rec), fields); err != nil {
		return fmt.Errorf("upsert final: %w", err)
	}
	return p.markProcessed(ctx, rec)
}

// transferImage downloads, crops and re-uploads a single image slot.
func (p *Processor) transferImage(ctx context.Context, idSec string, index int, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", &objectstore.PermanentError{Err: err}
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err // transient: network/timeout
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", &objectstore.PermanentError{Err: fmt.Errorf("source returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("source returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", &objectstore.PermanentError{Err: fmt.Errorf("source returned %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	cropped, err := imagetransform.Crop(data)
	if err != nil {
		return "", &objectstore.PermanentError{Err: err}
	}

	objectName := objectstore.ObjectName(idSec, index)
	return p.objectStore.Upload(ctx, cropped, objectName, "image/jpeg")
}

// resolveAgency implements §4.G step 4.
func (p *Processor) resolveAgency(ctx context.Context, rec *models.Listing) (id string, resolved bool, err error) {
	if rec.IDAgence != "" {
		if _, err := p.store.AgencyFinal.FindOne(ctx, bson.M{"_id": rec.IDAgence}); err == nil {
			return rec.IDAgence, true, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", false, err
		}
	}

	if rec.IDAgence != "" {
		brute, err := p.store.AgencyBrute.FindOne(ctx, bson.M{"_id": rec.IDAgence})
		if err == nil {
			if err := agency.PromoteIfMoreComplete(ctx, p.store, brute.ID, brute); err != nil {
				return "", false, err
			}
			return brute.ID, true, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", false, err
		}
	}

	if rec.StoreID != "" && rec.AgencyName != "" {
		synthetic := &models.Agency{ID: uuid.NewString(), StoreID: rec.StoreID, Name: rec.AgencyName, Scraped: false}
		fields, err := store.ToFields(synthetic)
		if err != nil {
			return "", false, err
		}
		if _, err := p.store.AgencyBrute.UpsertOne(ctx, store.AgencyKey(synthetic), fields); err != nil {
			return "", false, err
		}
		if _, err := p.store.AgencyFinal.UpsertOne(ctx, bson.M{"_id": synthetic.ID}, fields); err != nil {
			return "", false, err
		}
		return synthetic.ID, true, nil
	}

	return "", false, nil
}

func (p *Processor) markTerminalSkip(ctx context.Context, rec *models.Listing) error {
	return p.markProcessed(ctx, rec)
}

func (p *Processor) markProcessed(ctx context.Context, rec *models.Listing) error {
	now := time.Now()
	return p.store.WithAgency.UpdateOne(ctx, store.RawKey(rec), bson.M{"processed": true, "processedAt": now})
}

// isFatal distinguishes store-disconnection-class errors, which must
// propagate to the supervisor, from per-record/per-image failures, which
// are recovered locally by deferring the record to the next sweep (§7).
func isFatal(err error) bool {
	return errors.Is(err, mongo.ErrClientDisconnected)
}
