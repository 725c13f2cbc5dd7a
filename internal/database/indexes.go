package database

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexSpecs() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: UsersCollection,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("email_unique").SetUnique(true),
			}},
		},
		{
			collection: AdminsCollection,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("email_unique").SetUnique(true),
			}},
		},
		{
			collection: OrdersCollection,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("userId_createdAt"),
				},
				{
					Keys:    bson.D{{Key: "orderNumber", Value: 1}},
					Options: options.Index().SetName("orderNumber_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("status_createdAt"),
				},
			},
		},
		{
			collection: CouponsCollection,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetName("code_unique").SetUnique(true),
			}},
		},
		{
			collection: ProductsCollection,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "category", Value: 1}, {Key: "isActive", Value: 1}},
				Options: options.Index().SetName("category_active"),
			}},
		},
		{
			collection: PaymentsCollection,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "idx.transactionId", Value: 1}},
					Options: options.Index().SetName("transactionId_blind"),
				},
				{
					Keys:    bson.D{{Key: "idx.paymentStatus", Value: 1}, {Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("status_blind_createdAt"),
				},
				{
					Keys:    bson.D{{Key: "orderId", Value: 1}},
					Options: options.Index().SetName("orderId_index"),
				},
			},
		},
		{
			collection: RefreshTokensCollection,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "tokenHash", Value: 1}},
				Options: options.Index().SetName("tokenHash_unique").SetUnique(true),
			}},
		},
	}
}

// EnsureIndexes creates every index the stores rely on. orderNumber and
// coupon code uniqueness are enforced here, not in application code.
func EnsureIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	for _, spec := range indexSpecs() {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		names, err := db.Collection(spec.collection).Indexes().CreateMany(opCtx, spec.models)
		cancel()
		if err != nil {
			log.Error("index creation failed", zap.String("collection", spec.collection), zap.Error(err))
			return errors.Wrapf(err, "ensure %s indexes", spec.collection)
		}
		log.Info("indexes ensured", zap.String("collection", spec.collection), zap.Strings("indexes", names))
	}
	return nil
}
