package store

import "go.mongodb.org/mongo-driver/bson"

// ToFields marshals a typed document (Listing, Agency, ...) into the
// bson.M expected by UpsertOne/UpdateOne's $set clause, so callers can pass
// a whole struct without hand-building a field map.
func ToFields(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
