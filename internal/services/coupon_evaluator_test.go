package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func save10() *models.Coupon {
	return &models.Coupon{
		Code:              "SAVE10",
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     10,
		MinimumPurchase:   100,
		MaxDiscountAmount: floatPtr(20),
		Active:            true,
	}
}

func TestEvaluatePercentageCoupon(t *testing.T) {
	result, err := EvaluateCoupon(save10(), []CartLine{{Subtotal: 150}}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 15.0, result.Amount)
	assert.Equal(t, 150.0, result.EligibleTotal)
}

func TestEvaluateCapsAtMaxDiscount(t *testing.T) {
	result, err := EvaluateCoupon(save10(), []CartLine{{Subtotal: 500}}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 20.0, result.Amount)
}

func TestEvaluateFixedNeverExceedsEligibleTotal(t *testing.T) {
	coupon := &models.Coupon{Code: "FLAT500", DiscountType: models.DiscountFixed, DiscountValue: 500, Active: true}
	result, err := EvaluateCoupon(coupon, []CartLine{{Subtotal: 120}}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 120.0, result.Amount)
}

func TestEvaluateFixedIgnoresMaxDiscount(t *testing.T) {
	coupon := &models.Coupon{
		Code:              "FLAT50",
		DiscountType:      models.DiscountFixed,
		DiscountValue:     50,
		MaxDiscountAmount: floatPtr(20),
		Active:            true,
	}
	result, err := EvaluateCoupon(coupon, []CartLine{{Subtotal: 200}}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Amount)
}

func TestEvaluateRoundsHalfUp(t *testing.T) {
	coupon := &models.Coupon{Code: "THIRD", DiscountType: models.DiscountPercentage, DiscountValue: 12.5, Active: true}
	result, err := EvaluateCoupon(coupon, []CartLine{{Subtotal: 0.9}}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	// 0.1125 rounds to 0.11
	assert.Equal(t, 0.11, result.Amount)

	result, err = EvaluateCoupon(coupon, []CartLine{{Subtotal: 1.0}}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	// 0.125 rounds to 0.13
	assert.Equal(t, 0.13, result.Amount)
}

func TestEvaluateFailures(t *testing.T) {
	customer := primitive.NewObjectID()
	other := primitive.NewObjectID()
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name   string
		mutate func(c *models.Coupon)
		lines  []CartLine
		code   apperr.Code
	}{
		{
			name:   "expired",
			mutate: func(c *models.Coupon) { c.ExpirationDate = &past },
			code:   apperr.CodeCouponExpired,
		},
		{
			name: "limit reached",
			mutate: func(c *models.Coupon) {
				c.UsageLimit = intPtr(1)
				c.UsedCount = 1
			},
			code: apperr.CodeCouponLimitReached,
		},
		{
			name:   "customer not eligible",
			mutate: func(c *models.Coupon) { c.CustomerEligibility = []primitive.ObjectID{other} },
			code:   apperr.CodeCouponNotEligible,
		},
		{
			name:   "no applicable product",
			mutate: func(c *models.Coupon) { c.ApplicableProducts = []primitive.ObjectID{other} },
			code:   apperr.CodeCouponNotApplicable,
		},
		{
			name:   "below minimum",
			mutate: func(c *models.Coupon) {},
			lines:  []CartLine{{Subtotal: 99.99}},
			code:   apperr.CodeCouponBelowMinimum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := save10()
			tt.mutate(coupon)
			lines := tt.lines
			if lines == nil {
				lines = []CartLine{{ProductID: primitive.NewObjectID(), Subtotal: 150}}
			}
			_, err := EvaluateCoupon(coupon, lines, customer, testNow)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.True(t, apperr.IsKind(err, apperr.KindBusinessRule))
		})
	}
}

func TestEvaluateApplicableProductsOnlyCountsMatchingLines(t *testing.T) {
	shirt := primitive.NewObjectID()
	coupon := save10()
	coupon.MinimumPurchase = 0
	coupon.MaxDiscountAmount = nil
	coupon.ApplicableProducts = []primitive.ObjectID{shirt}

	result, err := EvaluateCoupon(coupon, []CartLine{
		{ProductID: shirt, Subtotal: 200},
		{ProductID: primitive.NewObjectID(), Subtotal: 1000},
	}, primitive.NewObjectID(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 200.0, result.EligibleTotal)
	assert.Equal(t, 20.0, result.Amount)
}

func TestEvaluateEligibleCustomer(t *testing.T) {
	customer := primitive.NewObjectID()
	coupon := save10()
	coupon.CustomerEligibility = []primitive.ObjectID{customer}

	_, err := EvaluateCoupon(coupon, []CartLine{{Subtotal: 150}}, customer, testNow)
	assert.NoError(t, err)
}
