package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

type AdminStore struct {
	coll *mongo.Collection
}

func NewAdminStore(db *mongo.Database) *AdminStore {
	return &AdminStore{coll: db.Collection(AdminsCollection)}
}

func (s *AdminStore) FindByEmail(ctx context.Context, email string) (*models.Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var admin models.Admin
	if err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(&admin); err != nil {
		return nil, translate(err, "find admin")
	}
	return &admin, nil
}

func (s *AdminStore) Insert(ctx context.Context, admin *models.Admin) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, admin)
	if err != nil {
		return translate(err, "insert admin")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		admin.ID = id
	}
	return nil
}
