package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/lexi/pkg/models"
)

// queryAgentHandler handles POST /api/ai/agent/query. The answer is
// returned to the caller only; nothing is appended to the chat.
func (s *Server) queryAgentHandler(c *gin.Context) {
	var req models.QueryAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if req.ChatID == "" || req.Query == "" {
		abortBadRequest(c, "chatId and query are required")
		return
	}

	result, err := s.agent.QueryAgent(c.Request.Context(), callerID(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
