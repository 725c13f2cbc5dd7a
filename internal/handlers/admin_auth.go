package handlers

import (
	"github.com/gin-gonic/gin"
)

func AdminLogin(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/auth/login"
		defer handlePanic(c, route)

		var req loginRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		token, err := identity.AdminLogin(ctx, req.Email, req.Password)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", gin.H{"accessToken": token})
	}
}
