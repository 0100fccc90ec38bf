// Package handlers contains the gin HTTP handlers.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/database"
	"visadesk/internal/models"
	"visadesk/internal/repository"
)

// respondError maps the error taxonomy onto HTTP status codes. Wrapped
// causes are matched, so repositories and services can add context freely.
func respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.Is(err, models.ErrIndexOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyLocked),
		errors.Is(err, models.ErrNotLocked),
		errors.Is(err, models.ErrCaseLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case models.IsPersistence(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return value, true
}

func paginateFromQuery(c *gin.Context) *database.Paginate {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return database.NewPaginate(limit, offset)
}

// actorFromRequest identifies who performed a mutation for the audit log.
// Authentication is handled upstream; the header is trusted as-is.
func actorFromRequest(c *gin.Context) string {
	if actor := c.GetHeader("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}

// recordAudit writes a compliance log entry. Audit failures never fail the
// request; they are logged and dropped.
func recordAudit(c *gin.Context, audit *repository.AuditRepository, logger *zap.Logger,
	action, resourceType string, resourceID uuid.UUID, oldValues, newValues models.JSONB) {
	entry := &models.AuditLog{
		ID:           uuid.New(),
		Actor:        actorFromRequest(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		CreatedAt:    time.Now().UTC(),
	}
	if err := audit.Record(c.Request.Context(), entry); err != nil {
		logger.Warn("Failed to record audit entry",
			zap.String("action", action),
			zap.Error(err))
	}
}
