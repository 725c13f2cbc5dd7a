package middleware

import (
	"github.com/gin-gonic/gin"

	"storefront/internal/auth"
)

// UserAuth validates customer tokens. Admin tokens are signed for another
// audience and are rejected here.
func UserAuth(tokens TokenParser) gin.HandlerFunc {
	return AuthGuard(tokens, auth.RoleCustomer)
}
