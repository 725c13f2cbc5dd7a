package services

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// CartLine is a priced cart entry as seen by the coupon evaluator.
type CartLine struct {
	ProductID primitive.ObjectID
	Subtotal  float64
}

type DiscountResult struct {
	Amount        float64 `json:"discount"`
	EligibleTotal float64 `json:"eligibleTotal"`
}

// EvaluateCoupon computes the discount coupon grants on lines for customer.
// It has no side effects; redemption happens when the order is stored.
func EvaluateCoupon(coupon *models.Coupon, lines []CartLine, customer primitive.ObjectID, now time.Time) (DiscountResult, error) {
	if coupon.Expired(now) {
		return DiscountResult{}, apperr.Business(apperr.CodeCouponExpired, "coupon has expired")
	}
	if coupon.Exhausted() {
		return DiscountResult{}, apperr.Business(apperr.CodeCouponLimitReached, "coupon usage limit reached")
	}
	if len(coupon.CustomerEligibility) > 0 && !containsID(coupon.CustomerEligibility, customer) {
		return DiscountResult{}, apperr.Business(apperr.CodeCouponNotEligible, "you are not eligible for this coupon")
	}

	eligible := decimal.Zero
	if len(coupon.ApplicableProducts) > 0 {
		for _, line := range lines {
			if containsID(coupon.ApplicableProducts, line.ProductID) {
				eligible = eligible.Add(dec(line.Subtotal))
			}
		}
		if !eligible.IsPositive() {
			return DiscountResult{}, apperr.Business(apperr.CodeCouponNotApplicable, "coupon does not apply to any product in the cart")
		}
	} else {
		for _, line := range lines {
			eligible = eligible.Add(dec(line.Subtotal))
		}
	}

	if eligible.LessThan(dec(coupon.MinimumPurchase)) {
		return DiscountResult{}, apperr.Business(apperr.CodeCouponBelowMinimum, "cart total is below the coupon minimum purchase")
	}

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case models.DiscountPercentage:
		discount = eligible.Mul(dec(coupon.DiscountValue)).Div(decimal.NewFromInt(100))
		if coupon.MaxDiscountAmount != nil {
			discount = decimal.Min(discount, dec(*coupon.MaxDiscountAmount))
		}
	default:
		discount = dec(coupon.DiscountValue)
	}
	discount = decimal.Min(discount, eligible)

	return DiscountResult{
		Amount:        roundMoney(discount),
		EligibleTotal: roundMoney(eligible),
	}, nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
