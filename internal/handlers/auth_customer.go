package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/services"
)

type Identity interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, p auth.Principal) (*models.User, error)
	AdminLogin(ctx context.Context, email, password string) (string, error)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func Register(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"
		defer handlePanic(c, route)

		var req services.RegisterInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		session, err := identity.Register(ctx, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondCreated(c, "registered", session)
	}
}

func Login(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/login"
		defer handlePanic(c, route)

		var req loginRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		session, err := identity.Login(ctx, req.Email, req.Password)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", session)
	}
}

// Refresh rotates the refresh token; the presented token stops working.
func Refresh(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/refresh"
		defer handlePanic(c, route)

		var req refreshRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		session, err := identity.Refresh(ctx, req.RefreshToken)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", session)
	}
}

func Logout(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/logout"
		defer handlePanic(c, route)

		var req refreshRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := identity.Logout(ctx, req.RefreshToken); err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "logged out", nil)
	}
}
