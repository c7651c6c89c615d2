// Package store wraps the backend's MongoDB collections: token records,
// callback answers, and the user read model.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const databaseName = "tg"

// ErrNotFound is returned by lookups that matched no document.
var ErrNotFound = errors.New("store: not found")

// Store owns the Mongo client and the gateway's database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to MongoDB and verifies connectivity.
func Open(ctx context.Context, uri string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Verify connectivity
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info().
		Str("database", databaseName).
		Msg("mongodb connected")

	return &Store{client: client, db: client.Database(databaseName)}, nil
}

// Database exposes the handle collection stores are built on.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Close releases the underlying connections.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
