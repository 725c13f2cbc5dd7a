package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DiscountFixed      = "fixed"
	DiscountPercentage = "percentage"
)

type Coupon struct {
	ID                  primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Code                string               `bson:"code" json:"code" validate:"required,min=5,max=20"`
	DiscountType        string               `bson:"discountType" json:"discountType" validate:"oneof=fixed percentage"`
	DiscountValue       float64              `bson:"discountValue" json:"discountValue" validate:"gt=0"`
	MinimumPurchase     float64              `bson:"minimumPurchase" json:"minimumPurchase" validate:"gte=0"`
	MaxDiscountAmount   *float64             `bson:"maxDiscountAmount,omitempty" json:"maxDiscountAmount,omitempty" validate:"omitempty,gt=0"`
	UsageLimit          *int                 `bson:"usageLimit,omitempty" json:"usageLimit,omitempty" validate:"omitempty,gt=0"`
	UsedCount           int                  `bson:"usedCount" json:"usedCount" validate:"gte=0"`
	ExpirationDate      *time.Time           `bson:"expirationDate,omitempty" json:"expirationDate,omitempty"`
	ApplicableProducts  []primitive.ObjectID `bson:"applicableProducts,omitempty" json:"applicableProducts,omitempty"`
	CustomerEligibility []primitive.ObjectID `bson:"customerEligibility,omitempty" json:"customerEligibility,omitempty"`
	Active              bool                 `bson:"active" json:"active"`
	CreatedAt           time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Expired reports whether the coupon expiration instant lies before now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpirationDate != nil && c.ExpirationDate.Before(now)
}

// Exhausted reports whether the usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}
