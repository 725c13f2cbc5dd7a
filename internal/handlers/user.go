package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/services"
)

type Addresses interface {
	List(ctx context.Context, p auth.Principal) ([]models.SavedAddress, error)
	Add(ctx context.Context, p auth.Principal, in services.AddressInput) (*models.SavedAddress, error)
	Update(ctx context.Context, p auth.Principal, id string, in services.AddressInput) (*models.SavedAddress, error)
	Delete(ctx context.Context, p auth.Principal, id string) error
}

func GetMe(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /auth/me"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := identity.Me(ctx, p)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", user)
	}
}

func GetAddresses(addresses Addresses) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/addresses"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := addresses.List(ctx, p)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", list)
	}
}

func AddAddress(addresses Addresses) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/addresses"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
		var req services.AddressInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		address, err := addresses.Add(ctx, p, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondCreated(c, "address added", address)
	}
}

func UpdateAddress(addresses Addresses) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /user/addresses/:id"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}
		var req services.AddressInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		address, err := addresses.Update(ctx, p, strings.TrimSpace(c.Param("id")), req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "address updated", address)
	}
}

func DeleteAddress(addresses Addresses) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /user/addresses/:id"
		defer handlePanic(c, route)

		p, ok := principal(c, route)
		if !ok {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := addresses.Delete(ctx, p, strings.TrimSpace(c.Param("id"))); err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "address deleted", nil)
	}
}
