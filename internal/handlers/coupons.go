package handlers

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/services"
)

type Coupons interface {
	Create(ctx context.Context, in services.CouponInput) (*models.Coupon, error)
	Update(ctx context.Context, id primitive.ObjectID, patch map[string]json.RawMessage) (*models.Coupon, error)
	ListValid(ctx context.Context) ([]models.Coupon, error)
	Deactivate(ctx context.Context, id primitive.ObjectID) error
	Preview(ctx context.Context, p auth.Principal, in services.PreviewInput) (*services.CouponPreview, error)
}

func CreateCoupon(coupons Coupons) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /coupons"
		defer handlePanic(c, route)

		var req services.CouponInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coupon, err := coupons.Create(ctx, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondCreated(c, "coupon created", coupon)
	}
}

// UpdateCoupon takes the raw body so fields outside the allow-list can be
// reported by name.
func UpdateCoupon(coupons Coupons) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /coupons/:id"
		defer handlePanic(c, route)

		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var patch map[string]json.RawMessage
		if !bindJSON(c, route, &patch) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		coupon, err := coupons.Update(ctx, id, patch)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "coupon updated", coupon)
	}
}

func GetValidCoupons(coupons Coupons) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /coupons/valid"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := coupons.ListValid(ctx)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", list)
	}
}

func DeleteCoupon(coupons Coupons) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /coupons/:id"
		defer handlePanic(c, route)

		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := coupons.Deactivate(ctx, id); err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "coupon deactivated", nil)
	}
}

func ApplyCoupon(coupons Coupons) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /coupons/apply"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
		var req services.PreviewInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		preview, err := coupons.Preview(ctx, p, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "coupon applied", preview)
	}
}
