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

type AdminOrders interface {
	AdminList(ctx context.Context, q database.OrderQuery) ([]models.Order, error)
	AdminGet(ctx context.Context, orderID primitive.ObjectID) (*models.Order, error)
	AdminUpdate(ctx context.Context, admin auth.Principal, orderID primitive.ObjectID, in services.AdminOrderUpdate) (*models.Order, error)
}

func GetAllOrders(orders AdminOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/orders"
		defer handlePanic(c, route)

		from, err := parseDateParam(c.Query("startDate"), "startDate", false)
		if err != nil {
			respondError(c, route, err)
			return
		}
		to, err := parseDateParam(c.Query("endDate"), "endDate", true)
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := orders.AdminList(ctx, database.OrderQuery{
			Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
			From:   from,
			To:     to,
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", list)
	}
}

func GetOrder(orders AdminOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/orders/:orderId"
		defer handlePanic(c, route)

		orderID, err := paramID(c, "orderId")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.AdminGet(ctx, orderID)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", order)
	}
}

func UpdateOrder(orders AdminOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/orders/:orderId"
		defer handlePanic(c, route)

		admin, ok := principal(c, route)
		if !ok {
			return
		}
		orderID, err := paramID(c, "orderId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req services.AdminOrderUpdate
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.AdminUpdate(ctx, admin, orderID, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "order updated", order)
	}
}
