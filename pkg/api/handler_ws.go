package api

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler upgrades to a WebSocket and hands the connection to the relay.
// Browsers cannot set headers on the handshake, so the token may also come
// from the access_token query parameter.
func (s *Server) wsHandler(c *gin.Context) {
	if s.relay == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "WebSocket not available"})
		return
	}

	token := bearerToken(c)
	if token == "" {
		token = c.Query("access_token")
	}
	id, err := s.authenticate(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: wsOriginPatterns(s.cfg),
	})
	if err != nil {
		// Accept has already written the response
		slog.Warn("WebSocket handshake failed", "user_id", id.UserID, "error", err)
		return
	}

	// HandleConnection blocks until the WebSocket closes.
	s.relay.HandleConnection(c.Request.Context(), conn, id.UserID)
}
