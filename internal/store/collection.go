package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is a typed façade over a single MongoDB collection, giving the
// pipeline stages the document-store vocabulary §4.A asks for
// (findOne/find/countDocuments/upsertOne/updateOne/deleteOne/distinct).
// Results are decoded into T; filters and $set field maps are passed in as
// bson.M.
type Collection[T any] struct {
	raw       *mongo.Collection
	uniqueKey []string // bson field names forming the collection's unique key
}

func newCollection[T any](db *mongo.Database, name string, uniqueKey []string) *Collection[T] {
	return &Collection[T]{raw: db.Collection(name), uniqueKey: uniqueKey}
}

// Raw exposes the underlying *mongo.Collection for call sites that need an
// aggregation pipeline or other operation this façade doesn't wrap.
func (c *Collection[T]) Raw() *mongo.Collection { return c.raw }

// EnsureUniqueIndex creates the collection's unique index idempotently.
// Safe to call on every startup (§4.A "Indexes the core requires").
func (c *Collection[T]) EnsureUniqueIndex(ctx context.Context) error {
	keys := bson.D{}
	for _, f := range c.uniqueKey {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	_, err := c.raw.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true).SetName("uniq_" + c.raw.Name()),
	})
	if err != nil {
		return fmt.Errorf("ensure unique index on %s: %w", c.raw.Name(), err)
	}
	return nil
}

// FindOne returns the first document matching filter, or ErrNotFound.
func (c *Collection[T]) FindOne(ctx context.Context, filter bson.M) (*T, error) {
	var doc T
	err := c.raw.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// Find returns a lazy iterator over documents matching filter, ordered per
// opts (§5: "records are pulled in scrapedAt ascending order at batch
// boundaries").
func (c *Collection[T]) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) (*Iterator[T], error) {
	cur, err := c.raw.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &Iterator[T]{cur: cur}, nil
}

// CountDocuments reports how many documents match filter.
func (c *Collection[T]) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	return c.raw.CountDocuments(ctx, filter)
}

// UpsertOne writes fields via $set, inserting a new document keyed on key
// when none exists. A race that loses to a concurrent insert on the same
// unique key is not an error (§4.A, §5, §8 Law of idempotent promotion) —
// Mongo's upsert semantics already reconcile it for us.
func (c *Collection[T]) UpsertOne(ctx context.Context, key bson.M, fields bson.M) (inserted bool, err error) {
	res, err := c.raw.UpdateOne(ctx, key, bson.M{"$set": fields}, options.Update().SetUpsert(true))
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

// InsertOnly inserts a brand-new document and reports ErrAlreadyExists
// (rather than failing the caller) on a unique-key collision.
func (c *Collection[T]) InsertOnly(ctx context.Context, doc T) error {
	_, err := c.raw.InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateOne applies a $set update to the first document matching filter.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter bson.M, set bson.M) error {
	_, err := c.raw.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

// DeleteOne removes the first document matching filter.
func (c *Collection[T]) DeleteOne(ctx context.Context, filter bson.M) error {
	_, err := c.raw.DeleteOne(ctx, filter)
	return err
}

// Distinct returns the distinct string values of field among documents
// matching filter.
func (c *Collection[T]) Distinct(ctx context.Context, field string, filter bson.M) ([]string, error) {
	raw, err := c.raw.Distinct(ctx, field, filter)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Iterator is a lazy sequence over a query's matching documents (§4.A:
// "find(query) -> lazy sequence"). Callers must Close it.
type Iterator[T any] struct {
	cur *mongo.Cursor
}

// Next advances the iterator. It returns false at end-of-stream or on error
// — check Err() to distinguish the two.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	return it.cur.Next(ctx)
}

// Decode unmarshals the current document.
func (it *Iterator[T]) Decode() (*T, error) {
	var doc T
	if err := it.cur.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Err returns any error encountered while iterating.
func (it *Iterator[T]) Err() error { return it.cur.Err() }

// Close releases the cursor's server-side resources.
func (it *Iterator[T]) Close(ctx context.Context) error { return it.cur.Close(ctx) }
