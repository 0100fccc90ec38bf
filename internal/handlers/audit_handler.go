package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"visadesk/internal/models"
	"visadesk/internal/repository"
)

// AuditHandler serves the compliance log query endpoint.
type AuditHandler struct {
	audit  *repository.AuditRepository
	logger *zap.Logger
}

// NewAuditHandler creates an audit handler.
func NewAuditHandler(audit *repository.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger.Named("audit_handler")}
}

// List handles GET /api/v1/audit-logs.
func (h *AuditHandler) List(c *gin.Context) {
	filter := &models.AuditLogFilter{}
	if actor := c.Query("actor"); actor != "" {
		filter.Actor = &actor
	}
	if action := c.Query("action"); action != "" {
		filter.Action = &action
	}
	if resourceType := c.Query("resourceType"); resourceType != "" {
		filter.ResourceType = &resourceType
	}
	if raw := c.Query("resourceId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resourceId"})
			return
		}
		filter.ResourceID = &id
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		filter.Since = &since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until timestamp"})
			return
		}
		filter.Until = &until
	}

	result, err := h.audit.List(c.Request.Context(), filter, paginateFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
