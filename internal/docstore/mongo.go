// Package docstore is the MongoDB-backed implementation of the user and post
// repositories, selected with DB_DRIVER=mongo.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"piazza/internal/config"
	"piazza/internal/middleware"
	"piazza/internal/observability"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	usersCollection    = "users"
	postsCollection    = "posts"
	countersCollection = "counters"
)

// Store holds the Mongo client and the database the repositories use.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB, pings the primary, and ensures indexes exist.
func Connect(ctx context.Context, cfg *config.Config) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.MongoDatabase)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	middleware.Logger.Info("MongoDB connected successfully")
	return s, nil
}

// EnsureIndexes creates the indexes the queries rely on. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "googleId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.db.Collection(postsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "topic", Value: 1}, {Key: "status", Value: 1}, {Key: "likes", Value: -1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}
	return nil
}

// Ping reports whether the primary answers within ctx.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Users returns the Mongo user repository.
func (s *Store) Users() *UserStore {
	return &UserStore{store: s, coll: s.db.Collection(usersCollection)}
}

// Posts returns the Mongo post repository.
func (s *Store) Posts() *PostStore {
	return &PostStore{store: s, coll: s.db.Collection(postsCollection)}
}

type counter struct {
	ID  string `bson:"_id"`
	Seq uint   `bson:"seq"`
}

// nextID hands out sequential integer ids so documents keep the same id
// shape as the relational store.
func (s *Store) nextID(ctx context.Context, name string) (uint, error) {
	var c counter
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", name, err)
	}
	return c.Seq, nil
}

// isDuplicateKey reports a unique index violation (code 11000).
func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}

func startSpan(ctx context.Context, method, collection string) (context.Context, func(*error)) {
	ctx, span := observability.StartRepositorySpan(ctx, "mongodb", method, collection)
	done := observability.TrackQuery(method, collection)
	return ctx, func(errp *error) {
		done()
		var err error
		if errp != nil {
			err = *errp
		}
		observability.EndSpan(span, err)
	}
}

// Drop removes every collection the store owns and recreates the indexes.
func (s *Store) Drop(ctx context.Context) error {
	for _, name := range []string{usersCollection, postsCollection, countersCollection} {
		if err := s.db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return s.EnsureIndexes(ctx)
}
