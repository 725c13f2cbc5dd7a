package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

type RefreshTokenStore struct {
	coll *mongo.Collection
}

func NewRefreshTokenStore(db *mongo.Database) *RefreshTokenStore {
	return &RefreshTokenStore{coll: db.Collection(RefreshTokensCollection)}
}

func (s *RefreshTokenStore) Insert(ctx context.Context, token *models.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, token)
	if err != nil {
		return translate(err, "insert refresh token")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		token.ID = id
	}
	return nil
}

// FindActive returns the unrevoked token with the given hash.
func (s *RefreshTokenStore) FindActive(ctx context.Context, hash string) (*models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var token models.RefreshToken
	err := s.coll.FindOne(ctx, bson.M{"tokenHash": hash, "revoked": false}).Decode(&token)
	if err != nil {
		return nil, translate(err, "find refresh token")
	}
	return &token, nil
}

// Revoke marks the token revoked, recording its successor when rotated.
func (s *RefreshTokenStore) Revoke(ctx context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{"revoked": true, "revokedAt": time.Now().UTC()}
	if replacedBy != nil {
		set["replacedByToken"] = *replacedBy
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return translate(err, "revoke refresh token")
}

// RevokeByHash revokes an active token. It reports false when none matched.
func (s *RefreshTokenStore) RevokeByHash(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"tokenHash": hash, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true, "revokedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, translate(err, "revoke refresh token")
	}
	return res.MatchedCount == 1, nil
}
