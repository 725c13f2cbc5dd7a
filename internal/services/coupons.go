package services

import (
	"context"
	"encoding/json"
	"sort"
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

type CouponInput struct {
	Code                string     `json:"code"`
	DiscountType        string     `json:"discountType"`
	DiscountValue       float64    `json:"discountValue"`
	MinimumPurchase     float64    `json:"minimumPurchase"`
	MaxDiscountAmount   *float64   `json:"maxDiscountAmount"`
	UsageLimit          *int       `json:"usageLimit"`
	ExpirationDate      *time.Time `json:"expirationDate"`
	ApplicableProducts  []string   `json:"applicableProducts"`
	CustomerEligibility []string   `json:"customerEligibility"`
	Active              *bool      `json:"active"`
}

// PreviewInput asks what a coupon would take off either a cart or a plain
// total.
type PreviewInput struct {
	Code        string     `json:"code"`
	Items       []CartItem `json:"items"`
	TotalAmount *float64   `json:"totalAmount"`
}

type CouponPreview struct {
	Code          string  `json:"code"`
	TotalAmount   float64 `json:"totalAmount"`
	EligibleTotal float64 `json:"eligibleTotal"`
	Discount      float64 `json:"discount"`
	AmountAfter   float64 `json:"amountAfterDiscount"`
}

var couponUpdatableFields = map[string]bool{
	"code":                true,
	"discountType":        true,
	"discountValue":       true,
	"expirationDate":      true,
	"minimumPurchase":     true,
	"maxDiscountAmount":   true,
	"usageLimit":          true,
	"applicableProducts":  true,
	"customerEligibility": true,
	"active":              true,
}

type CouponService struct {
	coupons  CouponRepository
	products ProductRepository
	log      *zap.Logger
	now      func() time.Time
}

func NewCouponService(coupons CouponRepository, products ProductRepository, log *zap.Logger) *CouponService {
	return &CouponService{coupons: coupons, products: products, log: log.Named("coupon"), now: time.Now}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *CouponService) Create(ctx context.Context, in CouponInput) (*models.Coupon, error) {
	applicable, err := parseIDList(in.ApplicableProducts, "applicableProducts")
	if err != nil {
		return nil, err
	}
	eligible, err := parseIDList(in.CustomerEligibility, "customerEligibility")
	if err != nil {
		return nil, err
	}

	now := s.now()
	coupon := &models.Coupon{
		Code:                normalizeCode(in.Code),
		DiscountType:        in.DiscountType,
		DiscountValue:       in.DiscountValue,
		MinimumPurchase:     in.MinimumPurchase,
		MaxDiscountAmount:   in.MaxDiscountAmount,
		UsageLimit:          in.UsageLimit,
		ExpirationDate:      in.ExpirationDate,
		ApplicableProducts:  applicable,
		CustomerEligibility: eligible,
		Active:              in.Active == nil || *in.Active,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	if err := s.coupons.Insert(ctx, coupon); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeCouponCodeTaken, "coupon code already exists")
		}
		return nil, apperr.As(err)
	}
	s.log.Info("coupon created", zap.String("code", coupon.Code))
	return coupon, nil
}

// Update applies a partial update. Only the fields in couponUpdatableFields
// may be present; the merged coupon is validated as a whole.
func (s *CouponService) Update(ctx context.Context, id primitive.ObjectID, patch map[string]json.RawMessage) (*models.Coupon, error) {
	if len(patch) == 0 {
		return nil, apperr.Validation("validation failed", "no fields to update")
	}
	unknown := make([]string, 0)
	for key := range patch {
		if !couponUpdatableFields[key] {
			unknown = append(unknown, key+" cannot be updated")
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperr.Validation("validation failed", unknown...)
	}

	coupon, err := s.coupons.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeCouponNotFound, "coupon not found")
	}
	if err := applyCouponPatch(coupon, patch); err != nil {
		return nil, err
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	if err := s.coupons.Save(ctx, coupon); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeCouponCodeTaken, "coupon code already exists")
		}
		return nil, storeErr(err, apperr.CodeCouponNotFound, "coupon not found")
	}
	s.log.Info("coupon updated", zap.String("code", coupon.Code))
	return coupon, nil
}

// ListValid returns active coupons that have not expired.
func (s *CouponService) ListValid(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := s.coupons.ListValid(ctx, s.now())
	if err != nil {
		return nil, apperr.As(err)
	}
	return coupons, nil
}

// Deactivate soft deletes the coupon.
func (s *CouponService) Deactivate(ctx context.Context, id primitive.ObjectID) error {
	if err := s.coupons.Deactivate(ctx, id); err != nil {
		return storeErr(err, apperr.CodeCouponNotFound, "coupon not found")
	}
	s.log.Info("coupon deactivated", zap.String("couponId", id.Hex()))
	return nil
}

// Preview evaluates a coupon without redeeming it.
func (s *CouponService) Preview(ctx context.Context, p auth.Principal, in PreviewInput) (*CouponPreview, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, apperr.Validation("validation failed", "code is required")
	}

	var (
		lines []CartLine
		total float64
	)
	switch {
	case len(in.Items) > 0:
		requests, err := parseCart(in.Items)
		if err != nil {
			return nil, err
		}
		items, cartTotal, err := priceCart(ctx, s.products, requests)
		if err != nil {
			return nil, err
		}
		lines, total = couponLines(items), cartTotal
	case in.TotalAmount != nil:
		if *in.TotalAmount <= 0 {
			return nil, apperr.Validation("validation failed", "totalAmount must be greater than 0")
		}
		total = roundMoney(dec(*in.TotalAmount))
		lines = []CartLine{{Subtotal: total}}
	default:
		return nil, apperr.Validation("validation failed", "items or totalAmount is required")
	}

	coupon, err := s.lookup(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	result, err := EvaluateCoupon(coupon, lines, p.ID, s.now())
	if err != nil {
		return nil, err
	}

	return &CouponPreview{
		Code:          coupon.Code,
		TotalAmount:   total,
		EligibleTotal: result.EligibleTotal,
		Discount:      result.Amount,
		AmountAfter:   roundMoney(dec(total).Sub(dec(result.Amount))),
	}, nil
}

func (s *CouponService) lookup(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.coupons.FindActiveByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, storeErr(err, apperr.CodeCouponNotFound, "coupon not found")
	}
	return coupon, nil
}

func validateCoupon(c *models.Coupon) error {
	if err := validateStruct(c); err != nil {
		return err
	}
	details := make([]string, 0)
	if c.DiscountType == models.DiscountPercentage && c.DiscountValue > 100 {
		details = append(details, "discountValue must not exceed 100 for percentage coupons")
	}
	if c.DiscountType == models.DiscountFixed && c.MaxDiscountAmount != nil {
		details = append(details, "maxDiscountAmount is only allowed for percentage coupons")
	}
	if c.UsageLimit != nil && c.UsedCount > *c.UsageLimit {
		details = append(details, "usageLimit must not be below usedCount")
	}
	if len(details) > 0 {
		return apperr.Validation("validation failed", details...)
	}
	return nil
}

func applyCouponPatch(c *models.Coupon, patch map[string]json.RawMessage) error {
	details := make([]string, 0)
	decode := func(key string, dst interface{}) {
		if err := json.Unmarshal(patch[key], dst); err != nil {
			details = append(details, key+" is invalid")
		}
	}

	for key := range patch {
		switch key {
		case "code":
			var code string
			decode(key, &code)
			c.Code = normalizeCode(code)
		case "discountType":
			decode(key, &c.DiscountType)
		case "discountValue":
			decode(key, &c.DiscountValue)
		case "expirationDate":
			c.ExpirationDate = nil
			decode(key, &c.ExpirationDate)
		case "minimumPurchase":
			decode(key, &c.MinimumPurchase)
		case "maxDiscountAmount":
			c.MaxDiscountAmount = nil
			decode(key, &c.MaxDiscountAmount)
		case "usageLimit":
			c.UsageLimit = nil
			decode(key, &c.UsageLimit)
		case "applicableProducts", "customerEligibility":
			var raw []string
			decode(key, &raw)
			ids, err := parseIDList(raw, key)
			if err != nil {
				details = append(details, key+" is invalid")
				continue
			}
			if key == "applicableProducts" {
				c.ApplicableProducts = ids
			} else {
				c.CustomerEligibility = ids
			}
		case "active":
			decode(key, &c.Active)
		}
	}
	if len(details) > 0 {
		sort.Strings(details)
		return apperr.Validation("validation failed", details...)
	}
	return nil
}

func parseIDList(raw []string, field string) ([]primitive.ObjectID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, value := range raw {
		id, err := parseID(value, field)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
