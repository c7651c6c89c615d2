package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CallbackAnswer is the short-lived mailbox entry deposited by
// answerCallbackQuery and consumed by the reconciler. At most one record
// exists per query id.
type CallbackAnswer struct {
	QueryID   string `bson:"query_id" json:"query_id"`
	Alert     bool   `bson:"alert" json:"alert"`
	Message   string `bson:"message,omitempty" json:"message,omitempty"`
	URL       string `bson:"url,omitempty" json:"url,omitempty"`
	CacheTime int    `bson:"cache_time" json:"cache_time"`
	CreatedAt int64  `bson:"created_at" json:"created_at"`
}

// AnswerStore persists callback answers in the "callback_answers"
// collection.
type AnswerStore struct {
	coll *mongo.Collection
}

func NewAnswerStore(db *mongo.Database) *AnswerStore {
	return &AnswerStore{coll: db.Collection("callback_answers")}
}

// PutAnswer upserts by delete-then-insert so repeated answers for the same
// query id leave exactly one record.
func (s *AnswerStore) PutAnswer(ctx context.Context, rec *CallbackAnswer) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"query_id": rec.QueryID}); err != nil {
		return err
	}
	_, err := s.coll.InsertOne(ctx, rec)
	return err
}

// GetAnswer returns the deposited answer or ErrNotFound.
func (s *AnswerStore) GetAnswer(ctx context.Context, queryID string) (*CallbackAnswer, error) {
	var rec CallbackAnswer
	err := s.coll.FindOne(ctx, bson.M{"query_id": queryID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteAnswer removes the record; absent records are a no-op.
func (s *AnswerStore) DeleteAnswer(ctx context.Context, queryID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"query_id": queryID})
	return err
}
