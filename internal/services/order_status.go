package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/database"
	"storefront/internal/models"
)

var orderTransitions = map[string][]string{
	models.OrderPending:    {models.OrderProcessing, models.OrderCancelled},
	models.OrderProcessing: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:    {models.OrderDelivered, models.OrderCancelled, models.OrderCompleted},
	models.OrderDelivered:  {models.OrderCompleted},
}

// CanTransition reports whether an order may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return oneOf(to, orderTransitions[from])
}

type TrackingInput struct {
	DateAndTime *time.Time `json:"dateAndTime"`
	Location    string     `json:"location"`
}

type RefundInput struct {
	IsRefunded *bool      `json:"isRefunded"`
	Amount     *float64   `json:"amount"`
	Reason     *string    `json:"reason"`
	RefundedAt *time.Time `json:"refundedAt"`
}

type AdminOrderUpdate struct {
	Status                *string         `json:"status"`
	ShippingCost          *float64        `json:"shippingCost"`
	ShippingMethod        *string         `json:"shippingMethod"`
	TrackingNumber        *string         `json:"trackingNumber"`
	EstimatedDeliveryDate *time.Time      `json:"estimatedDeliveryDate"`
	AdminNote             *string         `json:"adminNote"`
	OrderTracking         []TrackingInput `json:"orderTracking"`
	Refund                *RefundInput    `json:"refund"`
}

// AdminUpdate applies an admin change to an order. A status change is
// written with a compare-and-set on the previous status. Entering delivered
// records the settlement payment; if that fails the status is put back.
func (s *OrderService) AdminUpdate(ctx context.Context, admin auth.Principal, orderID primitive.ObjectID, in AdminOrderUpdate) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound, "order not found")
	}

	changes, target, err := s.adminChanges(order, in)
	if err != nil {
		return nil, err
	}

	previous := order.Status
	expected := ""
	if target != previous {
		expected = previous
	}

	updated, err := s.orders.Update(ctx, orderID, expected, changes)
	if errors.Is(err, database.ErrStatusConflict) {
		return nil, apperr.New(apperr.KindConflict, apperr.CodeStatusConflict, "order status changed concurrently, reload and retry")
	}
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound, "order not found")
	}

	if target != previous {
		s.log.Info("order status changed",
			zap.String("orderNumber", updated.OrderNumber),
			zap.String("from", previous),
			zap.String("to", target),
			zap.String("adminId", admin.ID.Hex()),
		)
	}
	if target == previous || target != models.OrderDelivered {
		return updated, nil
	}
	return s.settle(ctx, updated, previous)
}

func (s *OrderService) settle(ctx context.Context, order *models.Order, previous string) (*models.Order, error) {
	payment, err := s.payments.Record(ctx, PaymentRecord{
		PaymentBy: order.UserID,
		OrderID:   order.ID,
		Amount:    order.PayableAmount,
		Method:    models.PaymentCash,
		Status:    models.PaymentPaid,
	})
	if err != nil {
		s.log.Error("settlement payment failed, reverting status",
			zap.String("orderNumber", order.OrderNumber), zap.Error(err))
		revertCtx := context.WithoutCancel(ctx)
		if _, revertErr := s.orders.Update(revertCtx, order.ID, models.OrderDelivered, database.OrderChanges{Status: &previous}); revertErr != nil {
			s.log.Error("status revert failed", zap.String("orderNumber", order.OrderNumber), zap.Error(revertErr))
		}
		return nil, apperr.As(err)
	}

	settled, err := s.orders.Update(ctx, order.ID, "", database.OrderChanges{SettlementPaymentID: &payment.ID})
	if err != nil {
		s.log.Error("settlement payment not linked to order",
			zap.String("orderNumber", order.OrderNumber),
			zap.String("paymentId", payment.ID.Hex()),
			zap.Error(err))
		order.SettlementPaymentID = &payment.ID
		return order, nil
	}
	s.log.Info("order settled",
		zap.String("orderNumber", settled.OrderNumber),
		zap.String("transactionId", payment.TransactionID))
	return settled, nil
}

// adminChanges validates the request against the current order and builds
// the write. It returns the target status, which equals the current one when
// no transition was asked for.
func (s *OrderService) adminChanges(order *models.Order, in AdminOrderUpdate) (database.OrderChanges, string, error) {
	var changes database.OrderChanges
	target := order.Status
	details := make([]string, 0)

	if in.Status != nil {
		target = strings.ToLower(strings.TrimSpace(*in.Status))
		if !oneOf(target, models.OrderStatuses) {
			return changes, "", apperr.Validation("validation failed", "status is invalid")
		}
		if !CanTransition(order.Status, target) {
			return changes, "", apperr.Business(apperr.CodeInvalidState,
				"cannot change order status from "+order.Status+" to "+target)
		}
		if target != order.Status {
			changes.Status = &target
		}
	}

	if target == models.OrderProcessing && target != order.Status && in.ShippingCost == nil {
		details = append(details, "shippingCost is required when moving to processing")
	}
	if in.ShippingCost != nil {
		if *in.ShippingCost < 0 {
			details = append(details, "shippingCost must be zero or greater")
		} else {
			discount := 0.0
			if order.Discount != nil {
				discount = order.Discount.Amount
			}
			payable := roundMoney(dec(order.TotalAmount).Sub(dec(discount)).Add(dec(*in.ShippingCost)))
			if payable <= 0 {
				return changes, "", apperr.Business(apperr.CodeInvalidAmount, "payable amount must be greater than 0")
			}
			changes.ShippingCost = in.ShippingCost
			changes.PayableAmount = &payable
		}
	}

	for i, entry := range in.OrderTracking {
		location := strings.TrimSpace(entry.Location)
		if entry.DateAndTime == nil || location == "" {
			details = append(details, fmt.Sprintf("orderTracking[%d] needs dateAndTime and location", i))
			continue
		}
		changes.PushTracking = append(changes.PushTracking, models.TrackingEntry{
			DateAndTime: *entry.DateAndTime,
			Location:    location,
		})
	}

	if in.Refund != nil {
		refund, refundDetails := s.mergeRefund(order, *in.Refund)
		details = append(details, refundDetails...)
		changes.Refund = &refund
	}

	if in.ShippingMethod != nil {
		method := strings.TrimSpace(*in.ShippingMethod)
		changes.ShippingMethod = &method
	}
	if in.TrackingNumber != nil {
		number := strings.TrimSpace(*in.TrackingNumber)
		changes.TrackingNumber = &number
	}
	if in.EstimatedDeliveryDate != nil {
		changes.EstimatedDeliveryDate = in.EstimatedDeliveryDate
	}
	if in.AdminNote != nil {
		note := strings.TrimSpace(*in.AdminNote)
		changes.AdminNote = &note
	}

	if len(details) > 0 {
		return changes, "", apperr.Validation("validation failed", details...)
	}
	return changes, target, nil
}

func (s *OrderService) mergeRefund(order *models.Order, in RefundInput) (models.Refund, []string) {
	refund := order.Refund
	details := make([]string, 0)
	if in.Amount != nil {
		if *in.Amount < 0 || *in.Amount > order.PayableAmount {
			details = append(details, "refund.amount must be between 0 and the payable amount")
		}
		refund.Amount = *in.Amount
	}
	if in.Reason != nil {
		refund.Reason = strings.TrimSpace(*in.Reason)
	}
	if in.RefundedAt != nil {
		refund.RefundedAt = in.RefundedAt
	}
	if in.IsRefunded != nil {
		refund.IsRefunded = *in.IsRefunded
		if refund.IsRefunded && refund.RefundedAt == nil {
			now := s.now()
			refund.RefundedAt = &now
		}
	}
	return refund, details
}
