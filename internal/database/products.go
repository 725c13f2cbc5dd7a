package database

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

// ProductQuery drives catalog listing.
type ProductQuery struct {
	Category        string
	Label           string
	Search          string
	MinPrice        *float64
	MaxPrice        *float64
	Sort            string
	IncludeInactive bool
	Page            int64
	Limit           int64
}

// ProductChanges holds the top level product fields an admin may change.
type ProductChanges struct {
	Title       *string
	Description *string
	Category    *string
	Label       *string
	Tags        *[]string
}

// VariantChanges holds variant fields changed through updateNestedByID.
type VariantChanges struct {
	Stock *int
	MRP   *float64
	Price *float64
}

type ProductStore struct {
	coll *mongo.Collection
}

func NewProductStore(db *mongo.Database) *ProductStore {
	return &ProductStore{coll: db.Collection(ProductsCollection)}
}

func (s *ProductStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product models.Product
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		return nil, translate(err, "find product")
	}
	product.InStock = hasStock(&product)
	return &product, nil
}

func (s *ProductStore) List(ctx context.Context, q ProductQuery) ([]models.Product, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := productFilter(q)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "count products")
	}

	opts := options.Find().SetSort(productSort(q.Sort))
	if q.Limit > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip((page - 1) * q.Limit).SetLimit(q.Limit)
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, translate(err, "find products")
	}
	defer cursor.Close(ctx)

	products := make([]models.Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, 0, translate(err, "decode products")
	}
	for i := range products {
		products[i].InStock = hasStock(&products[i])
	}
	return products, total, nil
}

func (s *ProductStore) Insert(ctx context.Context, product *models.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, product)
	if err != nil {
		return translate(err, "insert product")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		product.ID = id
	}
	product.InStock = hasStock(product)
	return nil
}

func (s *ProductStore) Update(ctx context.Context, id primitive.ObjectID, changes ProductChanges) (*models.Product, error) {
	set := bson.M{"updatedAt": time.Now()}
	if changes.Title != nil {
		set["title"] = *changes.Title
	}
	if changes.Description != nil {
		set["description"] = *changes.Description
	}
	if changes.Category != nil {
		set["category"] = *changes.Category
	}
	if changes.Label != nil {
		set["label"] = *changes.Label
	}
	if changes.Tags != nil {
		set["tags"] = models.StringList(*changes.Tags)
	}
	return s.findOneAndSet(ctx, bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}, set, "update product")
}

// SoftDelete marks the product deleted and inactive.
func (s *ProductStore) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	_, err := s.findOneAndSet(ctx, bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}, bson.M{
		"isDeleted": true,
		"isActive":  false,
		"deletedAt": now,
		"updatedAt": now,
	}, "delete product")
	return err
}

func (s *ProductStore) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Product, error) {
	return s.findOneAndSet(ctx, bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}, bson.M{
		"isActive":  active,
		"updatedAt": time.Now(),
	}, "set product active")
}

// UpdateVariant patches one variant and returns the updated product.
func (s *ProductStore) UpdateVariant(ctx context.Context, productID, variantID primitive.ObjectID, changes VariantChanges) (*models.Product, error) {
	patch := bson.M{}
	if changes.Stock != nil {
		patch["stock"] = *changes.Stock
	}
	if changes.MRP != nil {
		patch["price.mrp"] = *changes.MRP
	}
	if changes.Price != nil {
		patch["price.sellingPrice"] = *changes.Price
	}

	var product models.Product
	if err := updateNestedByID(ctx, s.coll, productID, "variants", variantID, patch, &product); err != nil {
		return nil, err
	}
	product.InStock = hasStock(&product)
	return &product, nil
}

// DecrementStock takes qty units from the variant only when at least qty are
// available. It reports false when the guard did not match.
func (s *ProductStore) DecrementStock(ctx context.Context, productID, variantID primitive.ObjectID, qty int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	available := bson.M{"_id": variantID, "stock": bson.M{"$gte": qty}}
	filter := bson.M{
		"_id":       productID,
		"isActive":  true,
		"isDeleted": bson.M{"$ne": true},
		"variants":  bson.M{"$elemMatch": available},
	}
	update := bson.M{
		"$inc": bson.M{"variants.$.stock": -qty, "sales": qty},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err, "decrement stock")
	}
	return res.MatchedCount == 1, nil
}

// IncrementStock returns qty units to the variant.
func (s *ProductStore) IncrementStock(ctx context.Context, productID, variantID primitive.ObjectID, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"_id": productID, "variants._id": variantID}
	update := bson.M{
		"$inc": bson.M{"variants.$.stock": qty, "sales": -qty},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return translate(err, "increment stock")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates catalog totals and loads the top products by sales and
// by rating.
func (s *ProductStore) Stats(ctx context.Context, top int64) (*models.ProductStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	notDeleted := bson.M{"isDeleted": bson.M{"$ne": true}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: notDeleted}},
		{{Key: "$group", Value: bson.M{
			"_id":            nil,
			"totalProducts":  bson.M{"$sum": 1},
			"activeProducts": bson.M{"$sum": bson.M{"$cond": bson.A{"$isActive", 1, 0}}},
			"totalSales":     bson.M{"$sum": "$sales"},
			"totalReviews":   bson.M{"$sum": "$totalReviews"},
			"averageRating":  bson.M{"$avg": "$avgRating"},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "aggregate product stats")
	}
	defer cursor.Close(ctx)

	stats := &models.ProductStats{}
	if cursor.Next(ctx) {
		if err := cursor.Decode(stats); err != nil {
			return nil, translate(err, "decode product stats")
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, translate(err, "aggregate product stats")
	}

	stats.TopSelling, err = s.topBy(ctx, notDeleted, "sales", top)
	if err != nil {
		return nil, err
	}
	stats.TopRated, err = s.topBy(ctx, notDeleted, "avgRating", top)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *ProductStore) topBy(ctx context.Context, filter bson.M, field string, limit int64) ([]models.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, "find top products")
	}
	defer cursor.Close(ctx)

	products := make([]models.Product, 0)
	if err := cursor.All(ctx, &products); err != nil {
		return nil, translate(err, "decode top products")
	}
	for i := range products {
		products[i].InStock = hasStock(&products[i])
	}
	return products, nil
}

func (s *ProductStore) findOneAndSet(ctx context.Context, filter, set bson.M, op string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product models.Product
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&product); err != nil {
		return nil, translate(err, op)
	}
	product.InStock = hasStock(&product)
	return &product, nil
}

func productFilter(q ProductQuery) bson.M {
	filter := bson.M{"isDeleted": bson.M{"$ne": true}}
	if !q.IncludeInactive {
		filter["isActive"] = true
	}
	if category := strings.TrimSpace(q.Category); category != "" {
		filter["category"] = category
	}
	if label := strings.TrimSpace(q.Label); label != "" {
		filter["label"] = label
	}

	if q.MinPrice != nil || q.MaxPrice != nil {
		price := bson.M{}
		if q.MinPrice != nil {
			price["$gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			price["$lte"] = *q.MaxPrice
		}
		filter["variants"] = bson.M{"$elemMatch": bson.M{"price.sellingPrice": price}}
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		}
	}
	return filter
}

func productSort(sort string) bson.D {
	switch sort {
	case "price":
		return bson.D{{Key: "variants.price.sellingPrice", Value: 1}, {Key: "_id", Value: 1}}
	case "-price":
		return bson.D{{Key: "variants.price.sellingPrice", Value: -1}, {Key: "_id", Value: 1}}
	case "rating":
		return bson.D{{Key: "avgRating", Value: 1}, {Key: "_id", Value: 1}}
	case "-rating":
		return bson.D{{Key: "avgRating", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
}

func hasStock(p *models.Product) bool {
	for _, v := range p.Variants {
		if v.Stock > 0 {
			return true
		}
	}
	return false
}
