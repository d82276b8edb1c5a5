package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/lexi/pkg/database"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/codeready-toolchain/lexi/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"

	healthProbeKey = "lexi||health||probe"
)

// healthHandler handles GET /health.
// Only lexi's own components (state store, database) are checked. The AI
// backend and the repository host are excluded so an outage there does not
// get lexi restarted.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.store != nil {
		if _, err := s.store.Get(ctx, healthProbeKey); err != nil && !errors.Is(err, statestore.ErrKeyNotFound) {
			status = healthStatusUnhealthy
			checks["state_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["state_store"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.dbClient != nil {
		if pool, err := database.Health(ctx, s.dbClient.DB()); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy, Pool: pool}
		}
	}

	resp := &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	}
	if s.relay != nil {
		resp.ActiveConnections = s.relay.ActiveConnections()
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, resp)
}
