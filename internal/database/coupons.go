package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

type CouponStore struct {
	coll *mongo.Collection
}

func NewCouponStore(db *mongo.Database) *CouponStore {
	return &CouponStore{coll: db.Collection(CouponsCollection)}
}

func (s *CouponStore) Insert(ctx context.Context, coupon *models.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, coupon)
	if err != nil {
		return translate(err, "insert coupon")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		coupon.ID = id
	}
	return nil
}

func (s *CouponStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Coupon, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *CouponStore) FindActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return s.findOne(ctx, bson.M{"code": code, "active": true})
}

func (s *CouponStore) findOne(ctx context.Context, filter bson.M) (*models.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var coupon models.Coupon
	if err := s.coll.FindOne(ctx, filter).Decode(&coupon); err != nil {
		return nil, translate(err, "find coupon")
	}
	return &coupon, nil
}

// Save writes every admin editable field of coupon. usedCount is left alone
// so concurrent redemptions are never overwritten.
func (s *CouponStore) Save(ctx context.Context, coupon *models.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon.UpdatedAt = time.Now()
	set := bson.M{
		"code":                coupon.Code,
		"discountType":        coupon.DiscountType,
		"discountValue":       coupon.DiscountValue,
		"minimumPurchase":     coupon.MinimumPurchase,
		"maxDiscountAmount":   coupon.MaxDiscountAmount,
		"usageLimit":          coupon.UsageLimit,
		"expirationDate":      coupon.ExpirationDate,
		"applicableProducts":  coupon.ApplicableProducts,
		"customerEligibility": coupon.CustomerEligibility,
		"active":              coupon.Active,
		"updatedAt":           coupon.UpdatedAt,
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": coupon.ID}, bson.M{"$set": set})
	if err != nil {
		return translate(err, "save coupon")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListValid returns active coupons that have not expired at now.
func (s *CouponStore) ListValid(ctx context.Context, now time.Time) ([]models.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	notExpired := bson.A{
		bson.M{"expirationDate": nil},
		bson.M{"expirationDate": bson.M{"$gt": now}},
	}
	filter := bson.M{"active": true, "$or": notExpired}
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, translate(err, "find coupons")
	}
	defer cursor.Close(ctx)

	coupons := make([]models.Coupon, 0)
	if err := cursor.All(ctx, &coupons); err != nil {
		return nil, translate(err, "decode coupons")
	}
	return coupons, nil
}

func (s *CouponStore) Deactivate(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"active":    false,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return translate(err, "deactivate coupon")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Redeem increments usedCount only while the coupon is active, unexpired at
// now and below its usage limit. It reports false when the guard did not
// match.
func (s *CouponStore) Redeem(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	belowLimit := bson.A{
		bson.M{"usageLimit": nil},
		bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
	}
	notExpired := bson.A{
		bson.M{"expirationDate": nil},
		bson.M{"expirationDate": bson.M{"$gt": now}},
	}
	filter := bson.M{
		"_id":    id,
		"active": true,
		"$and":   bson.A{bson.M{"$or": belowLimit}, bson.M{"$or": notExpired}},
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"usedCount": 1}})
	if err != nil {
		return false, translate(err, "redeem coupon")
	}
	return res.MatchedCount == 1, nil
}

// Release undoes a redemption.
func (s *CouponStore) Release(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "usedCount": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"usedCount": -1}},
	)
	return translate(err, "release coupon")
}
