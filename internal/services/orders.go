package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/database"
	"storefront/internal/models"
)

const orderNumberAttempts = 5

type PlaceOrderInput struct {
	Items        []CartItem          `json:"items"`
	Address      *models.Address     `json:"address"`
	AddressID    string              `json:"addressId"`
	CouponCode   string              `json:"couponCode"`
	PaymentID    string              `json:"paymentId"`
	CustomerNote string              `json:"customerNote"`
	GiftOptions  *models.GiftOptions `json:"giftOptions"`
}

// OwnOrderUpdate is what a customer may change on their own order.
type OwnOrderUpdate struct {
	CustomerNote *string             `json:"customerNote"`
	GiftOptions  *models.GiftOptions `json:"giftOptions"`
	PaymentID    *string             `json:"paymentId"`
	Address      *models.Address     `json:"address"`
}

type OrderSettings struct {
	ShippingCost   float64
	DeliveryWindow time.Duration
}

// PaymentLedger is the part of the payment service orders depend on.
type PaymentLedger interface {
	Record(ctx context.Context, rec PaymentRecord) (*models.Payment, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
}

type OrderService struct {
	orders   OrderRepository
	products ProductRepository
	coupons  CouponRepository
	users    UserRepository
	payments PaymentLedger
	notifier OrderNotifier
	settings OrderSettings
	tx       Transactor
	log      *zap.Logger

	now            func() time.Time
	newOrderNumber func(time.Time) string
}

func NewOrderService(
	orders OrderRepository,
	products ProductRepository,
	coupons CouponRepository,
	users UserRepository,
	payments PaymentLedger,
	notifier OrderNotifier,
	settings OrderSettings,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:         orders,
		products:       products,
		coupons:        coupons,
		users:          users,
		payments:       payments,
		notifier:       notifier,
		settings:       settings,
		log:            log.Named("order"),
		now:            time.Now,
		newOrderNumber: generateOrderNumber,
	}
}

// WithTransactor makes placement run stock reservation, coupon redemption and
// the order insert in one transaction. Without it placement undoes partial
// work with compensating writes.
func (s *OrderService) WithTransactor(tx Transactor) *OrderService {
	s.tx = tx
	return s
}

// generateOrderNumber returns ORD-YYYYMMDD-XXXXXXXX.
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

type reservedLine struct {
	productID primitive.ObjectID
	variantID primitive.ObjectID
	quantity  int
}

// Place validates the cart, reserves stock, redeems the coupon and stores
// the order. Every validation runs before the first write.
func (s *OrderService) Place(ctx context.Context, p auth.Principal, in PlaceOrderInput) (*models.Order, error) {
	requests, err := parseCart(in.Items)
	if err != nil {
		return nil, err
	}
	address, err := s.resolveAddress(ctx, p, in.Address, in.AddressID)
	if err != nil {
		return nil, err
	}

	var paymentID *primitive.ObjectID
	if strings.TrimSpace(in.PaymentID) != "" {
		id, err := s.existingPayment(ctx, p, in.PaymentID)
		if err != nil {
			return nil, err
		}
		paymentID = &id
	}

	items, total, err := priceCart(ctx, s.products, requests)
	if err != nil {
		return nil, err
	}

	var (
		coupon   *models.Coupon
		discount DiscountResult
	)
	if code := normalizeCode(in.CouponCode); code != "" {
		coupon, err = s.coupons.FindActiveByCode(ctx, code)
		if err != nil {
			return nil, storeErr(err, apperr.CodeCouponNotFound, "coupon not found")
		}
		discount, err = EvaluateCoupon(coupon, couponLines(items), p.ID, s.now())
		if err != nil {
			return nil, err
		}
	}

	payable := roundMoney(dec(total).Sub(dec(discount.Amount)).Add(dec(s.settings.ShippingCost)))
	if payable <= 0 {
		return nil, apperr.Business(apperr.CodeInvalidAmount, "payable amount must be greater than 0")
	}

	now := s.now()
	order := &models.Order{
		UserID:                p.ID,
		Items:                 items,
		Address:               *address,
		TotalAmount:           total,
		Shipping:              models.Shipping{Cost: s.settings.ShippingCost},
		PayableAmount:         payable,
		Status:                models.OrderPending,
		OrderTracking:         []models.TrackingEntry{},
		CustomerNote:          strings.TrimSpace(in.CustomerNote),
		GiftOptions:           in.GiftOptions,
		PaymentID:             paymentID,
		EstimatedDeliveryDate: now.Add(s.settings.DeliveryWindow),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if coupon != nil {
		order.Discount = &models.AppliedDiscount{Code: coupon.Code, Amount: discount.Amount}
	}

	if s.tx != nil {
		err = s.commitInTransaction(ctx, order, coupon)
	} else {
		err = s.commitWithCompensation(ctx, order, coupon)
	}
	if err != nil {
		return nil, apperr.As(err)
	}

	s.log.Info("order placed",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("userId", p.ID.Hex()),
		zap.Float64("payableAmount", order.PayableAmount),
	)
	if s.notifier != nil && p.Email != "" {
		s.notifier.OrderPlaced(*order, p.Email)
	}
	return order, nil
}

// commitInTransaction writes the order and its stock and coupon effects
// atomically. A duplicate order number aborts the transaction, so each
// attempt starts a fresh one.
func (s *OrderService) commitInTransaction(ctx context.Context, order *models.Order, coupon *models.Coupon) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = s.newOrderNumber(order.CreatedAt)
		err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			order.ID = primitive.NilObjectID
			if _, err := s.reserveStock(txCtx, order.Items); err != nil {
				return err
			}
			if coupon != nil {
				if err := s.redeemCoupon(txCtx, coupon); err != nil {
					return err
				}
			}
			return s.orders.Insert(txCtx, order)
		})
		if !errors.Is(err, database.ErrDuplicate) {
			return err
		}
		s.log.Warn("order number collision", zap.String("orderNumber", order.OrderNumber), zap.Int("attempt", attempt+1))
	}
	return errors.Wrap(err, "could not allocate a unique order number")
}

// commitWithCompensation is used on deployments without transactions. Each
// write is atomic on its own; a later failure undoes the earlier ones.
func (s *OrderService) commitWithCompensation(ctx context.Context, order *models.Order, coupon *models.Coupon) error {
	reserved, err := s.reserveStock(ctx, order.Items)
	if err != nil {
		s.releaseStock(ctx, reserved)
		return err
	}
	if coupon != nil {
		if err := s.redeemCoupon(ctx, coupon); err != nil {
			s.releaseStock(ctx, reserved)
			return err
		}
	}
	if err := s.insertWithNumber(ctx, order); err != nil {
		s.releaseStock(ctx, reserved)
		if coupon != nil {
			s.releaseCoupon(ctx, coupon.ID)
		}
		return err
	}
	return nil
}

func (s *OrderService) insertWithNumber(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = s.newOrderNumber(order.CreatedAt)
		err = s.orders.Insert(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return err
		}
		s.log.Warn("order number collision", zap.String("orderNumber", order.OrderNumber), zap.Int("attempt", attempt+1))
	}
	return errors.Wrap(err, "could not allocate a unique order number")
}

// reserveStock decrements every line. On failure it returns the lines that
// were already taken so the caller can put them back.
func (s *OrderService) reserveStock(ctx context.Context, items []models.OrderItem) ([]reservedLine, error) {
	reserved := make([]reservedLine, 0, len(items))
	for _, item := range items {
		ok, err := s.products.DecrementStock(ctx, item.ProductID, item.Variant.VariantID, item.Quantity)
		if err != nil {
			return reserved, apperr.As(err)
		}
		if !ok {
			return reserved, apperr.Business(apperr.CodeInsufficientStock, "insufficient stock for "+item.Variant.Title)
		}
		reserved = append(reserved, reservedLine{
			productID: item.ProductID,
			variantID: item.Variant.VariantID,
			quantity:  item.Quantity,
		})
	}
	return reserved, nil
}

// redeemCoupon takes one use of coupon. When the guarded increment misses,
// the coupon is read again to report why.
func (s *OrderService) redeemCoupon(ctx context.Context, coupon *models.Coupon) error {
	ok, err := s.coupons.Redeem(ctx, coupon.ID, s.now())
	if err != nil {
		return apperr.As(err)
	}
	if ok {
		return nil
	}

	current, err := s.coupons.FindByID(ctx, coupon.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return apperr.NotFound(apperr.CodeCouponNotFound, "coupon not found")
	case err != nil:
		return apperr.As(err)
	case !current.Active:
		return apperr.NotFound(apperr.CodeCouponNotFound, "coupon not found")
	case current.Expired(s.now()):
		return apperr.Business(apperr.CodeCouponExpired, "coupon has expired")
	default:
		return apperr.Business(apperr.CodeCouponLimitReached, "coupon usage limit reached")
	}
}

// releaseStock puts reserved units back. It runs detached from the request
// so a cancelled client cannot leave stock reserved.
func (s *OrderService) releaseStock(ctx context.Context, reserved []reservedLine) {
	ctx = context.WithoutCancel(ctx)
	for _, line := range reserved {
		if err := s.products.IncrementStock(ctx, line.productID, line.variantID, line.quantity); err != nil {
			s.log.Error("stock rollback failed",
				zap.String("productId", line.productID.Hex()),
				zap.String("variantId", line.variantID.Hex()),
				zap.Int("quantity", line.quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *OrderService) releaseCoupon(ctx context.Context, id primitive.ObjectID) {
	if err := s.coupons.Release(context.WithoutCancel(ctx), id); err != nil {
		s.log.Error("coupon release failed", zap.String("couponId", id.Hex()), zap.Error(err))
	}
}

func (s *OrderService) resolveAddress(ctx context.Context, p auth.Principal, address *models.Address, addressID string) (*models.Address, error) {
	if id := strings.TrimSpace(addressID); id != "" {
		user, err := s.users.FindByID(ctx, p.ID)
		if err != nil {
			return nil, storeErr(err, apperr.CodeNotFound, "user not found")
		}
		saved, ok := user.FindAddress(id)
		if !ok {
			return nil, apperr.New(apperr.KindValidation, apperr.CodeInvalidAddress, "saved address not found")
		}
		a := saved.Address
		return &a, nil
	}
	if address == nil {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeInvalidAddress, "address is required")
	}
	a := normalizeAddress(*address)
	if err := validateAddress(a); err != nil {
		return nil, err
	}
	return &a, nil
}

func normalizeAddress(a models.Address) models.Address {
	a.FlatNo = strings.TrimSpace(a.FlatNo)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Country = strings.TrimSpace(a.Country)
	a.Description = strings.TrimSpace(a.Description)
	a.Category = strings.ToLower(strings.TrimSpace(a.Category))
	if a.Category == "" {
		a.Category = models.AddressOther
	}
	return a
}

func validateAddress(a models.Address) error {
	if err := validateStruct(a); err != nil {
		appErr := apperr.As(err)
		return &apperr.Error{
			Kind:    apperr.KindValidation,
			Code:    apperr.CodeInvalidAddress,
			Message: "address is incomplete",
			Details: appErr.Details,
		}
	}
	return nil
}

// existingPayment resolves a payment reference the caller may attach to an
// order: it must exist and have been made by the caller.
func (s *OrderService) existingPayment(ctx context.Context, p auth.Principal, raw string) (primitive.ObjectID, error) {
	id, err := parseID(raw, "paymentId")
	if err != nil {
		return primitive.NilObjectID, err
	}
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if payment.PaymentBy != p.ID {
		return primitive.NilObjectID, apperr.New(apperr.KindForbidden, apperr.CodeForbidden, "payment belongs to another user")
	}
	return id, nil
}

// UpdateOwn lets the owner change notes, gift options and the payment
// reference at any time, and the address while the order is pending.
func (s *OrderService) UpdateOwn(ctx context.Context, p auth.Principal, orderID primitive.ObjectID, in OwnOrderUpdate) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound, "order not found")
	}
	if order.UserID != p.ID {
		return nil, apperr.New(apperr.KindForbidden, apperr.CodeForbidden, "order belongs to another user")
	}

	var (
		changes        database.OrderChanges
		expectedStatus string
		touched        bool
	)
	if in.CustomerNote != nil {
		note := strings.TrimSpace(*in.CustomerNote)
		changes.CustomerNote = &note
		touched = true
	}
	if in.GiftOptions != nil {
		changes.GiftOptions = in.GiftOptions
		touched = true
	}
	if in.PaymentID != nil {
		id, err := s.existingPayment(ctx, p, *in.PaymentID)
		if err != nil {
			return nil, err
		}
		changes.PaymentID = &id
		touched = true
	}
	if in.Address != nil {
		if order.Status != models.OrderPending {
			return nil, apperr.Business(apperr.CodeInvalidState, "address can only be changed while the order is pending")
		}
		a := normalizeAddress(*in.Address)
		if err := validateAddress(a); err != nil {
			return nil, err
		}
		changes.Address = &a
		expectedStatus = models.OrderPending
		touched = true
	}
	if !touched {
		return nil, apperr.Validation("validation failed", "no fields to update")
	}

	updated, err := s.orders.Update(ctx, orderID, expectedStatus, changes)
	if errors.Is(err, database.ErrStatusConflict) {
		return nil, apperr.Business(apperr.CodeInvalidState, "address can only be changed while the order is pending")
	}
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound, "order not found")
	}
	s.log.Info("order updated by owner", zap.String("orderNumber", updated.OrderNumber))
	return updated, nil
}

// ListMine returns the caller's orders, newest first, optionally bounded by
// creation date.
func (s *OrderService) ListMine(ctx context.Context, p auth.Principal, from, to *time.Time) ([]models.Order, error) {
	orders, err := s.orders.List(ctx, database.OrderQuery{UserID: &p.ID, From: from, To: to})
	if err != nil {
		return nil, apperr.As(err)
	}
	return orders, nil
}

// GetMine returns one of the caller's orders. Orders of other users are
// reported as not found.
func (s *OrderService) GetMine(ctx context.Context, p auth.Principal, orderID primitive.ObjectID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound, "order not found")
	}
	if order.UserID != p.ID {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
	}
	return order, nil
}

func (s *OrderService) AdminList(ctx context.Context, q database.OrderQuery) ([]models.Order, error) {
	if q.Status != "" && !oneOf(q.Status, models.OrderStatuses) {
		return nil, apperr.Validation("validation failed", "status is invalid")
	}
	orders, err := s.orders.List(ctx, q)
	if err != nil {
		return nil, apperr.As(err)
	}
	return orders, nil
}

func (s *OrderService) AdminGet(ctx context.Context, orderID primitive.ObjectID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound, "order not found")
	}
	return order, nil
}
