package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product labels accepted by the catalog.
var ProductLabels = []string{"best seller", "people's choice", "trending", "new arrival", "limited edition"}

// VariantPrice holds the list price (mrp) and the price the customer pays.
type VariantPrice struct {
	MRP          float64 `bson:"mrp" json:"mrp" validate:"gt=0"`
	SellingPrice float64 `bson:"sellingPrice" json:"sellingPrice" validate:"gt=0,ltefield=MRP"`
}

type VariantAttributes struct {
	WeightInGrams float64 `bson:"weightInGrams,omitempty" json:"weightInGrams,omitempty" validate:"gte=0"`
	Color         string  `bson:"color,omitempty" json:"color,omitempty"`
	Size          string  `bson:"size,omitempty" json:"size,omitempty"`
}

// Variant is a purchasable configuration of a product with its own stock.
type Variant struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Attributes VariantAttributes  `bson:"attributes" json:"attributes"`
	Stock      int                `bson:"stock" json:"stock" validate:"gte=0"`
	Price      VariantPrice       `bson:"price" json:"price"`
}

type Product struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string             `bson:"title" json:"title"`
	Description  string             `bson:"description" json:"description"`
	Category     string             `bson:"category" json:"category"`
	Label        string             `bson:"label,omitempty" json:"label,omitempty"`
	Tags         StringList         `bson:"tags" json:"tags"`
	Variants     []Variant          `bson:"variants" json:"variants"`
	AvgRating    float64            `bson:"avgRating" json:"avgRating"`
	TotalReviews int                `bson:"totalReviews" json:"totalReviews"`
	Sales        int                `bson:"sales" json:"sales"`
	InStock      bool               `bson:"-" json:"inStock"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	IsDeleted    bool               `bson:"isDeleted" json:"isDeleted,omitempty"`
	DeletedAt    *time.Time         `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// FindVariant returns the variant with the given id.
func (p *Product) FindVariant(id primitive.ObjectID) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Purchasable reports whether the product can currently be ordered.
func (p *Product) Purchasable() bool {
	return p.IsActive && !p.IsDeleted
}
