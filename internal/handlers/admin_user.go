package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/services"
)

type UserDirectory interface {
	ListUsers(ctx context.Context, q database.UserQuery) ([]models.User, services.Pagination, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// GetUsers lists customer accounts. search matches email, name, phone and
// saved address city, state or pincode.
func GetUsers(users UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/users"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondError(c, route, err)
			return
		}
		active, err := parseBoolParam(c.Query("isActive"), "isActive")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, pagination, err := users.ListUsers(ctx, database.UserQuery{
			Search: strings.TrimSpace(c.Query("search")),
			Active: active,
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", gin.H{"users": list, "pagination": pagination})
	}
}

func GetUser(users UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/users/:userId"
		defer handlePanic(c, route)

		id, err := paramID(c, "userId")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := users.GetUser(ctx, id)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", user)
	}
}
