package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order statuses.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
	OrderCompleted  = "completed"
)

var OrderStatuses = []string{OrderPending, OrderProcessing, OrderShipped, OrderCancelled, OrderCompleted, OrderDelivered}

// Address categories.
const (
	AddressHome  = "home"
	AddressWork  = "work"
	AddressOther = "other"
)

// Address is the shipping address stored on an order and in a user's address
// book. Everything except Description is required.
type Address struct {
	FlatNo      string `bson:"flatNo" json:"flatNo" validate:"required"`
	Street      string `bson:"street" json:"street" validate:"required"`
	City        string `bson:"city" json:"city" validate:"required"`
	State       string `bson:"state" json:"state" validate:"required"`
	Pincode     string `bson:"pincode" json:"pincode" validate:"required"`
	Country     string `bson:"country" json:"country" validate:"required"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Category    string `bson:"category" json:"category" validate:"oneof=home work other"`
}

// VariantSnapshot freezes the variant as it was when the order was placed.
type VariantSnapshot struct {
	VariantID  primitive.ObjectID `bson:"variantId" json:"variantId"`
	Title      string             `bson:"title" json:"title"`
	Attributes VariantAttributes  `bson:"attributes" json:"attributes"`
	UnitPrice  float64            `bson:"unitPrice" json:"unitPrice"`
}

// OrderItem represents a single product entry within an order.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Variant   VariantSnapshot    `bson:"variant" json:"variant"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	LineTotal float64            `bson:"lineTotal" json:"lineTotal"`
}

type AppliedDiscount struct {
	Code   string  `bson:"code" json:"code"`
	Amount float64 `bson:"amount" json:"amount"`
}

type Shipping struct {
	Cost           float64 `bson:"cost" json:"cost"`
	Method         string  `bson:"method,omitempty" json:"method,omitempty"`
	TrackingNumber string  `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
}

type TrackingEntry struct {
	DateAndTime time.Time `bson:"dateAndTime" json:"dateAndTime"`
	Location    string    `bson:"location" json:"location"`
}

type Refund struct {
	IsRefunded bool       `bson:"isRefunded" json:"isRefunded"`
	Amount     float64    `bson:"amount,omitempty" json:"amount,omitempty"`
	Reason     string     `bson:"reason,omitempty" json:"reason,omitempty"`
	RefundedAt *time.Time `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
}

type GiftOptions struct {
	IsGift  bool   `bson:"isGift" json:"isGift"`
	Message string `bson:"message,omitempty" json:"message,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID                    primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OrderNumber           string              `bson:"orderNumber" json:"orderNumber"`
	UserID                primitive.ObjectID  `bson:"userId" json:"userId"`
	Items                 []OrderItem         `bson:"items" json:"items"`
	Address               Address             `bson:"address" json:"address"`
	TotalAmount           float64             `bson:"totalAmount" json:"totalAmount"`
	Discount              *AppliedDiscount    `bson:"discount,omitempty" json:"discount,omitempty"`
	Shipping              Shipping            `bson:"shipping" json:"shipping"`
	PayableAmount         float64             `bson:"payableAmount" json:"payableAmount"`
	Status                string              `bson:"status" json:"status"`
	OrderTracking         []TrackingEntry     `bson:"orderTracking" json:"orderTracking"`
	Refund                Refund              `bson:"refund" json:"refund"`
	CustomerNote          string              `bson:"customerNote,omitempty" json:"customerNote,omitempty"`
	AdminNote             string              `bson:"adminNote,omitempty" json:"adminNote,omitempty"`
	GiftOptions           *GiftOptions        `bson:"giftOptions,omitempty" json:"giftOptions,omitempty"`
	PaymentID             *primitive.ObjectID `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	SettlementPaymentID   *primitive.ObjectID `bson:"settlementPaymentId,omitempty" json:"settlementPaymentId,omitempty"`
	EstimatedDeliveryDate time.Time           `bson:"estimatedDeliveryDate" json:"estimatedDeliveryDate"`
	CreatedAt             time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time           `bson:"updatedAt" json:"updatedAt"`
}
