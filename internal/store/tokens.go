package store

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TokenRecord maps a bearer token to a bot identity and its client session.
// It is created exactly once per bot and is the sole source of truth for
// authenticating HTTP requests.
type TokenRecord struct {
	Token       string `bson:"token" json:"token"`
	FullToken   string `bson:"full_token" json:"full_token"`
	BotID       int64  `bson:"bot_id" json:"bot_id"`
	SessionName string `bson:"session_name" json:"session_name"`
	BotUsername string `bson:"bot_username" json:"bot_username"`
	BotName     string `bson:"bot_name" json:"bot_name"`
	OwnerID     int64  `bson:"owner_id" json:"owner_id"`
	Verified    bool   `bson:"verified" json:"verified"`
	CreatedAt   int64  `bson:"created_at" json:"created_at"`
}

// TokenStore persists token records in the "tokens" collection.
type TokenStore struct {
	coll *mongo.Collection
}

func NewTokenStore(db *mongo.Database) *TokenStore {
	return &TokenStore{coll: db.Collection("tokens")}
}

// Lookup resolves a token presented by a caller: exact match on the bare
// token first, then on the "<bot_id>:<token>" form. Returns ErrNotFound on
// a miss.
func (s *TokenStore) Lookup(ctx context.Context, token string) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.coll.FindOne(ctx, bson.M{"token": token}).Decode(&rec)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	err = s.coll.FindOne(ctx, bson.M{"full_token": token}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindBySessionName looks a record up by its client session name.
func (s *TokenStore) FindBySessionName(ctx context.Context, name string) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.coll.FindOne(ctx, bson.M{"session_name": name}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new record; the caller guarantees uniqueness of the
// token and full_token keys.
func (s *TokenStore) Create(ctx context.Context, rec *TokenRecord) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return err
	}
	log.Info().
		Int64("botId", rec.BotID).
		Str("session", rec.SessionName).
		Msg("token record created")
	return nil
}

// Update applies a partial $set patch to the record keyed by bot id.
func (s *TokenStore) Update(ctx context.Context, botID int64, patch map[string]any) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"bot_id": botID}, bson.M{"$set": patch})
	return err
}

// UsernameExists reports whether any bot already claimed the username,
// compared case-insensitively.
func (s *TokenStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	pattern := primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(strings.ToLower(username)) + "$",
		Options: "i",
	}
	err := s.coll.FindOne(ctx, bson.M{"bot_username": pattern}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
