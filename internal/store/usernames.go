package store

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserReadModel probes the backend-maintained "eventflow-userreadmodel"
// collection. The gateway only reads it, for username-uniqueness checks
// during bot provisioning.
type UserReadModel struct {
	coll *mongo.Collection
}

func NewUserReadModel(db *mongo.Database) *UserReadModel {
	return &UserReadModel{coll: db.Collection("eventflow-userreadmodel")}
}

// UsernameTaken reports whether a backend user already holds the username,
// matching UserName or any Usernames entry case-insensitively.
func (m *UserReadModel) UsernameTaken(ctx context.Context, username string) (bool, error) {
	pattern := primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(strings.ToLower(username)) + "$",
		Options: "i",
	}
	filter := bson.M{"$or": []bson.M{
		{"UserName": pattern},
		{"Usernames": bson.M{"$elemMatch": bson.M{"$regex": pattern}}},
	}}
	err := m.coll.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
