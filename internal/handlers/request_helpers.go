package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/middleware"
)

// requestTimeout bounds one request. Each store call carries its own shorter
// timeout underneath.
const requestTimeout = 15 * time.Second

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		middleware.RequestLog(c).Error("panic recovered", zap.String("route", route), zap.Any("panic", r), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}

func respondOK(c *gin.Context, message string, data interface{}) {
	respondData(c, http.StatusOK, message, data)
}

func respondCreated(c *gin.Context, message string, data interface{}) {
	respondData(c, http.StatusCreated, message, data)
}

func respondData(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// respondError writes err as the standard failure body. Internal errors only
// expose a generic message; the cause is logged.
func respondError(c *gin.Context, route string, err error) {
	appErr := apperr.As(err)
	log := middleware.RequestLog(c).With(zap.String("route", route), zap.String("code", string(appErr.Code)))

	switch appErr.Kind {
	case apperr.KindInternal, apperr.KindUnavailable:
		log.Error("request failed", zap.Error(appErr))
	default:
		log.Info("request rejected", zap.String("reason", appErr.Message))
	}

	body := gin.H{
		"success": false,
		"message": appErr.Message,
		"code":    appErr.Code,
	}
	if len(appErr.Details) > 0 {
		body["errors"] = appErr.Details
	}
	c.AbortWithStatusJSON(appErr.Status(), body)
}

func respondValidationError(c *gin.Context, route string, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		respondError(c, route, apperr.Validation("validation failed", details...))
		return
	}
	respondError(c, route, apperr.Validation("invalid request body", err.Error()))
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// bindJSON decodes the body into dst and answers 400 on failure.
func bindJSON(c *gin.Context, route string, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondValidationError(c, route, err)
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("validation failed", name+" is invalid")
	}
	return id, nil
}

// principal returns the caller set by the auth middleware.
func principal(c *gin.Context, route string) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		respondError(c, route, apperr.New(apperr.KindUnauthorized, apperr.CodeUnauthorized, "unauthorized"))
		return auth.Principal{}, false
	}
	return p, true
}
