package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// syncRepositoriesHandler handles GET /cron-trigger-syncrepos, for external
// schedulers.
func (s *Server) syncRepositoriesHandler(c *gin.Context) {
	count, err := s.reconciler.SyncRepositories(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Count: count})
}

// resetEmbeddingStatusHandler handles GET /cron-trigger-resetembeddingstatus.
func (s *Server) resetEmbeddingStatusHandler(c *gin.Context) {
	reset, err := s.reconciler.ResetEmbeddingStatus(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if reset == nil {
		reset = []string{}
	}
	c.JSON(http.StatusOK, ResetResponse{Reset: reset})
}
