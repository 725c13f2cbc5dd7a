package database

import (
	"context"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/fieldcrypt"
	"storefront/internal/models"
)

type PaymentQuery struct {
	Status string
	Method string
	// Search matches a transaction id exactly, or the amount when numeric.
	Search string
	Page   int64
	Limit  int64
}

// PaymentStore persists payments with their sensitive fields encrypted.
type PaymentStore struct {
	coll  *mongo.Collection
	codec paymentCodec
}

func NewPaymentStore(db *mongo.Database, cipher *fieldcrypt.Cipher) *PaymentStore {
	return &PaymentStore{
		coll:  db.Collection(PaymentsCollection),
		codec: paymentCodec{cipher: cipher},
	}
}

func (s *PaymentStore) Insert(ctx context.Context, payment *models.Payment) error {
	doc, err := s.codec.encode(payment)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return translate(err, "insert payment")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		payment.ID = id
	}
	return nil
}

func (s *PaymentStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc paymentDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translate(err, "find payment")
	}
	return s.codec.decode(&doc)
}

// Replace writes the whole payment in a single document update.
func (s *PaymentStore) Replace(ctx context.Context, payment *models.Payment) error {
	doc, err := s.codec.encode(payment)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": payment.ID}, doc)
	if err != nil {
		return translate(err, "replace payment")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PaymentStore) List(ctx context.Context, q PaymentQuery) ([]models.Payment, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := s.filter(q)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "count payments")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip((page - 1) * q.Limit).SetLimit(q.Limit)
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, translate(err, "find payments")
	}
	defer cursor.Close(ctx)

	payments := make([]models.Payment, 0)
	for cursor.Next(ctx) {
		var doc paymentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, translate(err, "decode payment")
		}
		payment, err := s.codec.decode(&doc)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *payment)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, translate(err, "iterate payments")
	}
	return payments, total, nil
}

func (s *PaymentStore) filter(q PaymentQuery) bson.M {
	filter := bson.M{}
	if q.Status != "" {
		filter["idx.paymentStatus"] = s.codec.index(q.Status)
	}
	if q.Method != "" {
		filter["idx.paymentMethod"] = s.codec.index(q.Method)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		or := bson.A{bson.M{"idx.transactionId": s.codec.index(search)}}
		if amount, err := strconv.ParseFloat(search, 64); err == nil {
			or = append(or, bson.M{"idx.amount": s.codec.index(fieldcrypt.FormatFloat(amount))})
		}
		filter["$or"] = or
	}
	return filter
}
