package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// exchangeTokenHandler handles POST /api/auth/token/exchange.
func (s *Server) exchangeTokenHandler(c *gin.Context) {
	if s.exchanger == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token exchange is not configured"})
		return
	}
	var req ExchangeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}

	result, err := s.exchanger.ExchangeCode(c.Request.Context(), req.Code, req.Nonce)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// refreshTokenHandler handles POST /api/auth/token/refresh.
func (s *Server) refreshTokenHandler(c *gin.Context) {
	if s.exchanger == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token exchange is not configured"})
		return
	}
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}

	result, err := s.exchanger.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
