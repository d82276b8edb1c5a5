package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/lexi/pkg/auth"
	"github.com/codeready-toolchain/lexi/pkg/services"
)

// mapServiceError maps service-layer errors to an HTTP status and message.
func mapServiceError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	if errors.Is(err, services.ErrInvalidInput) {
		return http.StatusBadRequest, err.Error()
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		return http.StatusUnauthorized, "invalid token"
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, services.ErrForbidden) {
		return http.StatusForbidden, "operation not permitted"
	}
	if errors.Is(err, services.ErrConflict) || errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, "resource already exists or conflicts with current state"
	}
	if errors.Is(err, services.ErrUpstreamTimeout) {
		return http.StatusGatewayTimeout, "upstream service timed out"
	}
	var upstream *services.UpstreamError
	if errors.As(err, &upstream) {
		slog.Warn("Upstream service error", "service", upstream.Service, "status", upstream.StatusCode)
		return http.StatusBadGateway, upstream.Service + " request failed"
	}

	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}

// abortWithError writes the mapped error response.
func abortWithError(c *gin.Context, err error) {
	status, msg := mapServiceError(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func abortBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
