package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"visadesk/internal/alerting"
	"visadesk/internal/cache"
	"visadesk/internal/models"
	"visadesk/internal/repository"
)

// AlertHandler serves the alert append/resolve endpoints and the
// flattened cross-case feed.
type AlertHandler struct {
	manager *alerting.Manager
	audit   *repository.AuditRepository
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewAlertHandler creates an alert handler.
func NewAlertHandler(manager *alerting.Manager, audit *repository.AuditRepository, cacheClient *cache.Cache, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{manager: manager, audit: audit, cache: cacheClient, logger: logger.Named("alert_handler")}
}

// Append handles POST /api/v1/cases/:id/alerts.
func (h *AlertHandler) Append(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req models.AppendAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	visaCase, err := h.manager.Append(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.cache.InvalidatePrefix(c.Request.Context(), "alerts:")
	c.JSON(http.StatusCreated, visaCase)
}

// Resolve handles PATCH /api/v1/cases/:id/alerts/:index.
func (h *AlertHandler) Resolve(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	index, ok := parseIntParam(c, "index")
	if !ok {
		return
	}
	var req models.ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	visaCase, err := h.manager.Resolve(c.Request.Context(), id, index, req.Resolved)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, h.logger, "alert.resolve", "case", id,
		nil, models.JSONB{"alertIndex": index, "resolved": req.Resolved})
	h.cache.InvalidatePrefix(c.Request.Context(), "alerts:")
	c.JSON(http.StatusOK, visaCase)
}

// Feed handles GET /api/v1/alerts.
func (h *AlertHandler) Feed(c *gin.Context) {
	filter := &models.AlertFilter{}
	if resolved := c.Query("resolved"); resolved != "" {
		value := resolved == "true"
		filter.Resolved = &value
	}
	if severity := c.Query("severity"); severity != "" {
		value := models.Severity(severity)
		filter.Severity = &value
	}
	if caseID := c.Query("caseId"); caseID != "" {
		id, err := uuid.Parse(caseID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid caseId"})
			return
		}
		filter.CaseID = &id
	}

	cacheKey := fmt.Sprintf("alerts:feed:%s:%s:%s",
		c.Query("resolved"), c.Query("severity"), c.Query("caseId"))
	var cached []models.AlertFeedEntry
	if h.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, gin.H{"data": cached})
		return
	}

	entries, err := h.manager.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	h.cache.SetJSON(c.Request.Context(), cacheKey, entries)
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
