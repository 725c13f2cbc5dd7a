package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/database"
	"storefront/internal/models"
)

// PaymentRecord is an internally created ledger entry.
type PaymentRecord struct {
	PaymentBy primitive.ObjectID
	OrderID   primitive.ObjectID
	Amount    float64
	Method    string
	Status    string
}

type PaymentUpdate struct {
	PaymentMethod              *string               `json:"paymentMethod"`
	PaymentInfo                *string               `json:"paymentInfo"`
	TransactionID              *string               `json:"transactionId"`
	Amount                     *float64              `json:"amount"`
	TransactionDateAndTime     *time.Time            `json:"transactionDateAndTime"`
	PaymentStatus              *string               `json:"paymentStatus"`
	RefundAmount               *float64              `json:"refundAmount"`
	PaymentRefundMethod        *string               `json:"paymentRefundMethod"`
	PaymentRefundInfo          *string               `json:"paymentRefundInfo"`
	PaymentRefundTransactionID *string               `json:"paymentRefundTransactionId"`
	PaymentRefundDateAndTime   *time.Time            `json:"paymentRefundDateAndTime"`
	PaymentRefundStatus        *string               `json:"paymentRefundStatus"`
	RefundAccount              *models.RefundAccount `json:"refundAccount"`
}

type RefundRequest struct {
	RefundAmount               float64               `json:"refundAmount"`
	PaymentRefundMethod        string                `json:"paymentRefundMethod"`
	PaymentRefundInfo          string                `json:"paymentRefundInfo"`
	PaymentRefundTransactionID string                `json:"paymentRefundTransactionId"`
	RefundAccount              *models.RefundAccount `json:"refundAccount"`
}

type PaymentService struct {
	payments PaymentRepository
	log      *zap.Logger
	now      func() time.Time
}

func NewPaymentService(payments PaymentRepository, log *zap.Logger) *PaymentService {
	return &PaymentService{payments: payments, log: log.Named("payment"), now: time.Now}
}

func newTransactionID() string {
	return "TXN-" + uuid.NewString()
}

// Record creates a ledger entry with a fresh transaction id.
func (s *PaymentService) Record(ctx context.Context, rec PaymentRecord) (*models.Payment, error) {
	now := s.now()
	orderID := rec.OrderID
	payment := &models.Payment{
		PaymentBy:              rec.PaymentBy,
		OrderID:                &orderID,
		PaymentMethod:          rec.Method,
		TransactionID:          newTransactionID(),
		Amount:                 rec.Amount,
		TransactionDateAndTime: now,
		PaymentStatus:          rec.Status,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := validatePayment(payment); err != nil {
		return nil, err
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return nil, apperr.As(err)
	}
	s.log.Info("payment recorded",
		zap.String("paymentId", payment.ID.Hex()),
		zap.String("orderId", orderID.Hex()))
	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodePaymentNotFound, "payment not found")
	}
	return payment, nil
}

func (s *PaymentService) List(ctx context.Context, q database.PaymentQuery) ([]models.Payment, Pagination, error) {
	if q.Status != "" && !oneOf(q.Status, models.PaymentStatuses) {
		return nil, Pagination{}, apperr.Validation("validation failed", "status is invalid")
	}
	if q.Method != "" && !oneOf(q.Method, models.PaymentMethods) {
		return nil, Pagination{}, apperr.Validation("validation failed", "method is invalid")
	}
	payments, total, err := s.payments.List(ctx, q)
	if err != nil {
		return nil, Pagination{}, apperr.As(err)
	}
	return payments, Pagination{Page: q.Page, Limit: q.Limit, Total: total}, nil
}

// Update changes any payment field. The merged payment is validated before
// anything is written.
func (s *PaymentService) Update(ctx context.Context, admin auth.Principal, id primitive.ObjectID, in PaymentUpdate) (*models.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&payment.PaymentMethod, in.PaymentMethod)
	setString(&payment.PaymentInfo, in.PaymentInfo)
	setString(&payment.TransactionID, in.TransactionID)
	setString(&payment.PaymentStatus, in.PaymentStatus)
	setString(&payment.PaymentRefundMethod, in.PaymentRefundMethod)
	setString(&payment.PaymentRefundInfo, in.PaymentRefundInfo)
	setString(&payment.PaymentRefundTransactionID, in.PaymentRefundTransactionID)
	setString(&payment.PaymentRefundStatus, in.PaymentRefundStatus)
	if in.Amount != nil {
		payment.Amount = *in.Amount
	}
	if in.RefundAmount != nil {
		payment.RefundAmount = *in.RefundAmount
	}
	if in.TransactionDateAndTime != nil {
		payment.TransactionDateAndTime = *in.TransactionDateAndTime
	}
	if in.PaymentRefundDateAndTime != nil {
		payment.PaymentRefundDateAndTime = in.PaymentRefundDateAndTime
	}
	if in.RefundAccount != nil {
		payment.RefundAccount = in.RefundAccount
	}
	if in.RefundAmount != nil || in.PaymentRefundMethod != nil || in.PaymentRefundStatus != nil || in.RefundAccount != nil {
		adminID := admin.ID
		payment.PaymentRefundBy = &adminID
	}

	if err := validatePayment(payment); err != nil {
		return nil, err
	}
	return s.save(ctx, payment, "payment updated")
}

func (s *PaymentService) ChangeStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.Payment, error) {
	status = strings.TrimSpace(status)
	if !oneOf(status, models.PaymentStatuses) {
		return nil, apperr.Validation("validation failed", "paymentStatus is invalid")
	}
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.PaymentStatus == status {
		return payment, nil
	}
	payment.PaymentStatus = status
	return s.save(ctx, payment, "payment status changed")
}

// Refund marks the payment refunded. All refund fields and both statuses are
// written in one document update; nothing is written when validation fails.
func (s *PaymentService) Refund(ctx context.Context, admin auth.Principal, id primitive.ObjectID, in RefundRequest) (*models.Payment, error) {
	details := make([]string, 0)
	if in.RefundAmount <= 0 {
		details = append(details, "refundAmount must be greater than 0")
	}
	method := strings.TrimSpace(in.PaymentRefundMethod)
	if !oneOf(method, models.RefundMethods) {
		details = append(details, "paymentRefundMethod is invalid")
	}
	if method == models.RefundMethodBank && in.RefundAccount == nil {
		details = append(details, "refundAccount is required")
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details...)
	}

	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.RefundAmount > payment.Amount {
		return nil, apperr.Business(apperr.CodeRefundExceedsAmount, "refund amount exceeds payment amount")
	}

	refunded := *payment
	now := s.now()
	adminID := admin.ID
	refunded.RefundAmount = in.RefundAmount
	refunded.PaymentRefundMethod = method
	refunded.PaymentRefundInfo = strings.TrimSpace(in.PaymentRefundInfo)
	refunded.PaymentRefundTransactionID = strings.TrimSpace(in.PaymentRefundTransactionID)
	if refunded.PaymentRefundTransactionID == "" {
		refunded.PaymentRefundTransactionID = newTransactionID()
	}
	refunded.PaymentRefundDateAndTime = &now
	refunded.PaymentRefundBy = &adminID
	refunded.PaymentRefundStatus = models.RefundRefunded
	refunded.PaymentStatus = models.PaymentRefunded
	if in.RefundAccount != nil {
		refunded.RefundAccount = in.RefundAccount
	}

	if err := validatePayment(&refunded); err != nil {
		return nil, err
	}
	return s.save(ctx, &refunded, "payment refunded")
}

func (s *PaymentService) save(ctx context.Context, payment *models.Payment, event string) (*models.Payment, error) {
	payment.UpdatedAt = s.now()
	if err := s.payments.Replace(ctx, payment); err != nil {
		return nil, storeErr(err, apperr.CodePaymentNotFound, "payment not found")
	}
	s.log.Info(event,
		zap.String("paymentId", payment.ID.Hex()),
		zap.String("status", payment.PaymentStatus))
	return payment, nil
}

func validatePayment(p *models.Payment) error {
	details := make([]string, 0)
	if !oneOf(p.PaymentMethod, models.PaymentMethods) {
		details = append(details, "paymentMethod is invalid")
	}
	if !oneOf(p.PaymentStatus, models.PaymentStatuses) {
		details = append(details, "paymentStatus is invalid")
	}
	if p.Amount < 0 {
		details = append(details, "amount must be zero or greater")
	}
	if p.RefundAmount < 0 {
		details = append(details, "refundAmount must be zero or greater")
	}
	if p.PaymentRefundMethod != "" && !oneOf(p.PaymentRefundMethod, models.RefundMethods) {
		details = append(details, "paymentRefundMethod is invalid")
	}
	if p.PaymentRefundStatus != "" && !oneOf(p.PaymentRefundStatus, models.PaymentRefundStatuses) {
		details = append(details, "paymentRefundStatus is invalid")
	}
	if p.RefundAccount != nil {
		if err := validateStruct(p.RefundAccount); err != nil {
			details = append(details, apperr.As(err).Details...)
		}
	}
	if len(details) > 0 {
		return apperr.Validation("validation failed", details...)
	}
	if p.RefundAmount > p.Amount {
		return apperr.Business(apperr.CodeRefundExceedsAmount, "refund amount exceeds payment amount")
	}
	return nil
}
