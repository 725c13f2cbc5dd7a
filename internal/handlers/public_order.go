package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/services"
)

// CustomerOrders is the order surface available to customers.
type CustomerOrders interface {
	Place(ctx context.Context, p auth.Principal, in services.PlaceOrderInput) (*models.Order, error)
	UpdateOwn(ctx context.Context, p auth.Principal, orderID primitive.ObjectID, in services.OwnOrderUpdate) (*models.Order, error)
	ListMine(ctx context.Context, p auth.Principal, from, to *time.Time) ([]models.Order, error)
	GetMine(ctx context.Context, p auth.Principal, orderID primitive.ObjectID) (*models.Order, error)
}

func CreateOrder(orders CustomerOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
		var req services.PlaceOrderInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.Place(ctx, p, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondCreated(c, "order placed", order)
	}
}

func UpdateMyOrder(orders CustomerOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:orderId"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
		orderID, err := paramID(c, "orderId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req services.OwnOrderUpdate
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.UpdateOwn(ctx, p, orderID, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "order updated", order)
	}
}

func GetMyOrders(orders CustomerOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/me"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
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

		list, err := orders.ListMine(ctx, p, from, to)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", list)
	}
}

func GetMyOrder(orders CustomerOrders) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:orderId"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
		orderID, err := paramID(c, "orderId")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.GetMine(ctx, p, orderID)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", order)
	}
}
