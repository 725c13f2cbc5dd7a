package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment methods and statuses.
const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentUPI  = "UPI"

	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentUnpaid   = "unpaid"
	PaymentRefunded = "refunded"

	RefundMethodCard = "card"
	RefundMethodUPI  = "UPI"
	RefundMethodBank = "bank"

	RefundPending  = "pending"
	RefundRefunded = "refunded"
)

var (
	PaymentMethods        = []string{PaymentCash, PaymentCard, PaymentUPI}
	PaymentStatuses       = []string{PaymentPending, PaymentPaid, PaymentUnpaid, PaymentRefunded}
	RefundMethods         = []string{RefundMethodCard, RefundMethodUPI, RefundMethodBank}
	PaymentRefundStatuses = []string{RefundPending, RefundRefunded}
)

type RefundAccount struct {
	AccountNumber string `json:"accountNumber" validate:"required,accountno"`
	IFSCCode      string `json:"ifscCode" validate:"required,ifsc"`
	HolderName    string `json:"holderName" validate:"required"`
	BankName      string `json:"bankName" validate:"required"`
}

// Payment is the decoded view of a ledger entry. The stored document keeps
// scalar fields encoded; see database.PaymentStore.
type Payment struct {
	ID                         primitive.ObjectID  `json:"id"`
	PaymentBy                  primitive.ObjectID  `json:"paymentBy"`
	OrderID                    *primitive.ObjectID `json:"orderId,omitempty"`
	PaymentMethod              string              `json:"paymentMethod"`
	PaymentInfo                string              `json:"paymentInfo,omitempty"`
	TransactionID              string              `json:"transactionId"`
	Amount                     float64             `json:"amount"`
	TransactionDateAndTime     time.Time           `json:"transactionDateAndTime"`
	PaymentStatus              string              `json:"paymentStatus"`
	RefundAmount               float64             `json:"refundAmount"`
	PaymentRefundBy            *primitive.ObjectID `json:"paymentRefundBy,omitempty"`
	PaymentRefundMethod        string              `json:"paymentRefundMethod,omitempty"`
	PaymentRefundInfo          string              `json:"paymentRefundInfo,omitempty"`
	PaymentRefundTransactionID string              `json:"paymentRefundTransactionId,omitempty"`
	PaymentRefundDateAndTime   *time.Time          `json:"paymentRefundDateAndTime,omitempty"`
	PaymentRefundStatus        string              `json:"paymentRefundStatus,omitempty"`
	RefundAccount              *RefundAccount      `json:"refundAccount,omitempty"`
	CreatedAt                  time.Time           `json:"createdAt"`
	UpdatedAt                  time.Time           `json:"updatedAt"`
}
