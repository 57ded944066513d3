// Package store is the typed document-store façade described in §4.A: one
// Collection per stage, unique-key indexes created at startup, and
// upsert-reconciled writes so concurrent promotions never surface a
// unique-key violation as a hard error to the caller.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"xtracto/internal/config"
	"xtracto/internal/models"
)

const (
	collRaw         = "rawListings"
	collWithAgency  = "listingsWithAgency"
	collFinal       = "finalListings"
	collAgencyBrute = "agenciesBrute"
	collAgencyFinal = "agenciesFinal"
)

// Store wires the five collections spec.md's dataflow passes documents
// through: Raw -> WithAgency -> Final, and AgencyBrute -> AgencyFinal.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Raw         *Collection[models.Listing]
	WithAgency  *Collection[models.Listing]
	Final       *Collection[models.Listing]
	AgencyBrute *Collection[models.Agency]
	AgencyFinal *Collection[models.Agency]
}

// New connects to MongoDB, instrumented the way the teacher wraps
// database/sql with otelsqlx — here via otelmongo's command monitor.
func New(ctx context.Context, cfg config.Store) (*Store, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(50).
		SetMinPoolSize(5)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	s := &Store{
		client:      client,
		db:          db,
		Raw:         newCollection[models.Listing](db, collRaw, []string{"idSec"}),
		WithAgency:  newCollection[models.Listing](db, collWithAgency, []string{"idSec"}),
		Final:       newCollection[models.Listing](db, collFinal, []string{"idSec", "title", "price"}),
		AgencyBrute: newCollection[models.Agency](db, collAgencyBrute, []string{"storeId"}),
		AgencyFinal: newCollection[models.Agency](db, collAgencyFinal, []string{"storeId"}),
	}
	return s, nil
}

// EnsureIndexes creates every unique index §4.A requires. Idempotent; safe
// to call on every startup (also the entire job of cmd/bootstrap, which
// replaces the teacher's goose-based SQL migration runner — there is no
// schema to migrate against a document store, only indexes to guarantee).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	cols := []interface{ EnsureUniqueIndex(context.Context) error }{
		s.Raw, s.WithAgency, s.Final, s.AgencyBrute, s.AgencyFinal,
	}
	for _, c := range cols {
		if err := c.EnsureUniqueIndex(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Health checks the database connection.
func (s *Store) Health(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx, nil)
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// listingKey builds the unique-key filter for a Listing in the collection it
// belongs to. Raw/WithAgency key on idSec alone; Final keys on the triple
// (idSec, title, price) per §3 ("to tolerate re-listings with the same
// idSec at a different price").
func listingKey(l *models.Listing, triple bool) bson.M {
	if !triple {
		return bson.M{"idSec": l.IDSec}
	}
	return bson.M{"idSec": l.IDSec, "title": l.Title, "price": l.Price}
}

// RawKey returns Raw/WithAgency's unique-key filter for l.
func RawKey(l *models.Listing) bson.M { return listingKey(l, false) }

// FinalKey returns Final's unique-key filter for l.
func FinalKey(l *models.Listing) bson.M { return listingKey(l, true) }

// AgencyKey returns an agency collection's unique-key filter for a.
func AgencyKey(a *models.Agency) bson.M { return bson.M{"storeId": a.StoreID} }
