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

type OrderQuery struct {
	UserID *primitive.ObjectID
	Status string
	From   *time.Time
	To     *time.Time
}

// OrderChanges lists the order fields a single update may touch. Nil fields
// are left as they are.
type OrderChanges struct {
	Status                *string
	Address               *models.Address
	CustomerNote          *string
	GiftOptions           *models.GiftOptions
	PaymentID             *primitive.ObjectID
	ShippingCost          *float64
	ShippingMethod        *string
	TrackingNumber        *string
	PayableAmount         *float64
	EstimatedDeliveryDate *time.Time
	AdminNote             *string
	Refund                *models.Refund
	SettlementPaymentID   *primitive.ObjectID
	PushTracking          []models.TrackingEntry
}

func (c OrderChanges) update(now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if c.Status != nil {
		set["status"] = *c.Status
	}
	if c.Address != nil {
		set["address"] = *c.Address
	}
	if c.CustomerNote != nil {
		set["customerNote"] = *c.CustomerNote
	}
	if c.GiftOptions != nil {
		set["giftOptions"] = *c.GiftOptions
	}
	if c.PaymentID != nil {
		set["paymentId"] = *c.PaymentID
	}
	if c.ShippingCost != nil {
		set["shipping.cost"] = *c.ShippingCost
	}
	if c.ShippingMethod != nil {
		set["shipping.method"] = *c.ShippingMethod
	}
	if c.TrackingNumber != nil {
		set["shipping.trackingNumber"] = *c.TrackingNumber
	}
	if c.PayableAmount != nil {
		set["payableAmount"] = *c.PayableAmount
	}
	if c.EstimatedDeliveryDate != nil {
		set["estimatedDeliveryDate"] = *c.EstimatedDeliveryDate
	}
	if c.AdminNote != nil {
		set["adminNote"] = *c.AdminNote
	}
	if c.Refund != nil {
		set["refund"] = *c.Refund
	}
	if c.SettlementPaymentID != nil {
		set["settlementPaymentId"] = *c.SettlementPaymentID
	}

	update := bson.M{"$set": set}
	if len(c.PushTracking) > 0 {
		update["$push"] = bson.M{"orderTracking": bson.M{"$each": c.PushTracking}}
	}
	return update
}

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(OrdersCollection)}
}

// Insert stores order. A clash on the unique orderNumber index is reported as
// ErrDuplicate so the caller can pick a new number.
func (s *OrderStore) Insert(ctx context.Context, order *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, order)
	if err != nil {
		return translate(err, "insert order")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id
	}
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order models.Order
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		return nil, translate(err, "find order")
	}
	return &order, nil
}

func (s *OrderStore) List(ctx context.Context, q OrderQuery) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := s.coll.Find(ctx, orderFilter(q), options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, translate(err, "find orders")
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, translate(err, "decode orders")
	}
	return orders, nil
}

// Update applies changes to the order. When expectedStatus is set the write
// only happens if the stored status still equals it; otherwise
// ErrStatusConflict is returned.
func (s *OrderStore) Update(ctx context.Context, id primitive.ObjectID, expectedStatus string, changes OrderChanges) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"_id": id}
	if expectedStatus != "" {
		filter["status"] = expectedStatus
	}

	var order models.Order
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll.FindOneAndUpdate(ctx, filter, changes.update(time.Now()), opts).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if err != mongo.ErrNoDocuments || expectedStatus == "" {
		return nil, translate(err, "update order")
	}

	count, countErr := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return nil, translate(countErr, "count order")
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStatusConflict
}

func orderFilter(q OrderQuery) bson.M {
	filter := bson.M{}
	if q.UserID != nil {
		filter["userId"] = *q.UserID
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.From != nil || q.To != nil {
		created := bson.M{}
		if q.From != nil {
			created["$gte"] = *q.From
		}
		if q.To != nil {
			created["$lte"] = *q.To
		}
		filter["createdAt"] = created
	}
	return filter
}
