package versionstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMetadataCollection = "metadata"

type metadataDoc struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty"`
}

// Mongo stores versions in a metadata collection of the primary database,
// one document per collection: {_id: <collection>, version: <int64>, ...}.
// Bumps only touch version and updatedAt; other metadata fields survive.
type Mongo struct {
	coll  *mongo.Collection
	clock *Clock
}

var _ Store = (*Mongo)(nil)

type MongoOptions struct {
	Collection string // default "metadata"
}

func NewMongo(db *mongo.Database, opts MongoOptions) *Mongo {
	name := opts.Collection
	if name == "" {
		name = defaultMetadataCollection
	}
	return &Mongo{coll: db.Collection(name), clock: NewClock()}
}

func (s *Mongo) Current(ctx context.Context, collection string) (Version, bool, error) {
	var doc metadataDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": collection},
		options.FindOne().SetProjection(bson.M{"version": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if doc.Version <= 0 {
		return 0, false, nil
	}
	return Version(doc.Version), true, nil
}

// Bump runs a single pipeline update:
//
//	version = max(candidate, ifNull(version, 0) + 1), updatedAt = $$NOW
//
// upserting the metadata document when missing.
func (s *Mongo) Bump(ctx context.Context, collection string) (Version, error) {
	cand := int64(s.clock.Next(0))
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "version", Value: bson.D{{Key: "$max", Value: bson.A{
				cand,
				bson.D{{Key: "$add", Value: bson.A{
					bson.D{{Key: "$ifNull", Value: bson.A{"$version", 0}}},
					1,
				}}},
			}}}},
			{Key: "updatedAt", Value: "$$NOW"},
		}}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"version": 1})

	var doc metadataDoc
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": collection}, update, opts).Decode(&doc); err != nil {
		return 0, err
	}
	v := Version(doc.Version)
	s.clock.Observe(v)
	return v, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Mongo) Close(context.Context) error { return nil }
