package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visadesk/internal/cache"
	"visadesk/internal/database"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     *database.Database
	cache  *cache.Cache
	logger *zap.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *database.Database, cacheClient *cache.Cache, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheClient, logger: logger.Named("health_handler")}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{"database": "ok", "cache": "ok"}
	status := http.StatusOK

	if err := h.db.Health(c.Request.Context()); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Health(c.Request.Context()); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}
