package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/auth"
)

const (
	principalKey = "principal"
	tokenCookie  = "token"
)

// TokenParser validates a raw token for one role namespace.
type TokenParser interface {
	Parse(raw string, expected auth.Role) (auth.Principal, error)
}

// AuthGuard accepts requests carrying a valid token for role, read from the
// Authorization header or the token cookie, and stores the principal on the
// context.
func AuthGuard(tokens TokenParser, role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := tokenFromRequest(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "missing token")
			return
		}

		principal, err := tokens.Parse(raw, role)
		if err != nil {
			RequestLog(c).Info("token rejected", zap.String("role", string(role)), zap.Error(err))
			abortJSON(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func AdminAuth(tokens TokenParser) gin.HandlerFunc {
	return AuthGuard(tokens, auth.RoleAdmin)
}

// PrincipalFrom returns the principal stored by AuthGuard.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := value.(auth.Principal)
	return p, ok
}

func tokenFromRequest(c *gin.Context) (string, bool) {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		return auth.BearerToken(header)
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie), true
	}
	return "", false
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
