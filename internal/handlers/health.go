package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Health reports 503 while the database cannot be reached.
func Health(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /healthz"

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			respondError(c, route, apperr.Wrap(apperr.KindUnavailable, apperr.CodeUnavailable, "database unavailable", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
	}
}
