package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/services"
)

type Payments interface {
	List(ctx context.Context, q database.PaymentQuery) ([]models.Payment, services.Pagination, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	Update(ctx context.Context, admin auth.Principal, id primitive.ObjectID, in services.PaymentUpdate) (*models.Payment, error)
	ChangeStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.Payment, error)
	Refund(ctx context.Context, admin auth.Principal, id primitive.ObjectID, in services.RefundRequest) (*models.Payment, error)
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
}

func GetPayments(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/payments"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, pagination, err := payments.List(ctx, database.PaymentQuery{
			Status: strings.TrimSpace(c.Query("status")),
			Method: strings.TrimSpace(c.Query("method")),
			Search: strings.TrimSpace(c.Query("search")),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", gin.H{"payments": list, "pagination": pagination})
	}
}

func GetPayment(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/payments/:id"
		defer handlePanic(c, route)

		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		payment, err := payments.Get(ctx, id)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", payment)
	}
}

func UpdatePayment(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/payments/:id"
		defer handlePanic(c, route)

		admin, ok := principal(c, route)
		if !ok {
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req services.PaymentUpdate
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		payment, err := payments.Update(ctx, admin, id, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "payment updated", payment)
	}
}

func UpdatePaymentStatus(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/payments/:id/status"
		defer handlePanic(c, route)

		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req paymentStatusRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		payment, err := payments.ChangeStatus(ctx, id, req.PaymentStatus)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "payment status updated", payment)
	}
}

func RefundPayment(payments Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/payments/:id/refund"
		defer handlePanic(c, route)

		admin, ok := principal(c, route)
		if !ok {
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req services.RefundRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		payment, err := payments.Refund(ctx, admin, id, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "payment refunded", payment)
	}
}
