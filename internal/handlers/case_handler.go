package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/cache"
	"visadesk/internal/lifecycle"
	"visadesk/internal/metrics"
	"visadesk/internal/models"
	"visadesk/internal/repository"
)

// CaseHandler serves the visa case endpoints.
type CaseHandler struct {
	cases     *repository.CaseRepository
	timeline  *repository.TimelineRepository
	clients   *repository.ClientRepository
	audit     *repository.AuditRepository
	lifecycle *lifecycle.Controller
	collector *metrics.Collector
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewCaseHandler creates a case handler.
func NewCaseHandler(
	cases *repository.CaseRepository,
	timeline *repository.TimelineRepository,
	clients *repository.ClientRepository,
	audit *repository.AuditRepository,
	controller *lifecycle.Controller,
	collector *metrics.Collector,
	cacheClient *cache.Cache,
	logger *zap.Logger,
) *CaseHandler {
	return &CaseHandler{
		cases:     cases,
		timeline:  timeline,
		clients:   clients,
		audit:     audit,
		lifecycle: controller,
		collector: collector,
		cache:     cacheClient,
		logger:    logger.Named("case_handler"),
	}
}

// Create handles POST /api/v1/cases.
func (h *CaseHandler) Create(c *gin.Context) {
	var req models.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// A known client fills in the name/email snapshot taken at creation.
	if req.ClientID != uuid.Nil && (req.ClientName == "" || req.ClientEmail == "") {
		client, err := h.clients.GetByID(c.Request.Context(), req.ClientID)
		if err != nil {
			respondError(c, err)
			return
		}
		if req.ClientName == "" {
			req.ClientName = client.Name
		}
		if req.ClientEmail == "" {
			req.ClientEmail = client.Email
		}
	}

	visaCase, err := h.cases.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, h.logger, "case.create", "case", visaCase.ID,
		nil, models.JSONB{"caseNumber": visaCase.CaseNumber, "visaType": visaCase.VisaType})

	h.collector.CasesCreated.Inc()
	h.invalidateDashboards(c)
	h.logger.Info("Case created",
		zap.String("case_number", visaCase.CaseNumber),
		zap.String("visa_type", visaCase.VisaType))

	c.JSON(http.StatusCreated, visaCase)
}

// List handles GET /api/v1/cases.
func (h *CaseHandler) List(c *gin.Context) {
	filter := &models.CaseFilter{}
	for _, status := range c.QueryArray("status") {
		filter.Statuses = append(filter.Statuses, models.CaseStatus(status))
	}
	for _, priority := range c.QueryArray("priority") {
		filter.Priorities = append(filter.Priorities, models.Priority(priority))
	}
	if visaType := c.Query("visaType"); visaType != "" {
		filter.VisaType = &visaType
	}
	if country := c.Query("country"); country != "" {
		filter.Country = &country
	}
	if clientID := c.Query("clientId"); clientID != "" {
		id, err := uuid.Parse(clientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clientId"})
			return
		}
		filter.ClientID = &id
	}
	if search := c.Query("search"); search != "" {
		filter.Search = &search
	}

	result, err := h.cases.List(c.Request.Context(), filter, paginateFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /api/v1/cases/:id.
func (h *CaseHandler) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	visaCase, err := h.cases.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// GetByNumber handles GET /api/v1/cases/number/:caseNumber.
func (h *CaseHandler) GetByNumber(c *gin.Context) {
	visaCase, err := h.cases.GetByCaseNumber(c.Request.Context(), c.Param("caseNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// Update handles PATCH /api/v1/cases/:id.
func (h *CaseHandler) Update(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if _, err := h.editableCase(c, id); err != nil {
		respondError(c, err)
		return
	}

	visaCase, err := h.cases.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// Delete handles DELETE /api/v1/cases/:id.
func (h *CaseHandler) Delete(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	visaCase, err := h.cases.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.cases.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	recordAudit(c, h.audit, h.logger, "case.delete", "case", id,
		models.JSONB{"caseNumber": visaCase.CaseNumber, "status": string(visaCase.Status)}, nil)
	h.invalidateDashboards(c)
	h.logger.Info("Case deleted", zap.String("case_id", id.String()))
	c.Status(http.StatusNoContent)
}

// Transition handles POST /api/v1/cases/:id/transition.
func (h *CaseHandler) Transition(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req models.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	visaCase, err := h.lifecycle.Transition(c.Request.Context(), id, req.Status, actorFromRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.collector.CaseTransitions.WithLabelValues(string(req.Status)).Inc()
	h.invalidateDashboards(c)
	c.JSON(http.StatusOK, visaCase)
}

// Lock handles POST /api/v1/cases/:id/lock.
func (h *CaseHandler) Lock(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	visaCase, err := h.lifecycle.Lock(c.Request.Context(), id, actorFromRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// Unlock handles POST /api/v1/cases/:id/unlock.
func (h *CaseHandler) Unlock(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	visaCase, err := h.lifecycle.Unlock(c.Request.Context(), id, actorFromRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// AppendNote handles POST /api/v1/cases/:id/notes.
func (h *CaseHandler) AppendNote(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req models.AppendNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if _, err := h.editableCase(c, id); err != nil {
		respondError(c, err)
		return
	}

	visaCase, err := h.cases.AppendNote(c.Request.Context(), id, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// UpdateDocument handles PATCH /api/v1/cases/:id/documents/:index.
func (h *CaseHandler) UpdateDocument(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	index, ok := parseIntParam(c, "index")
	if !ok {
		return
	}
	var req models.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	visaCase, err := h.editableCase(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if index < 0 || index >= len(visaCase.Documents) {
		respondError(c, errors.Wrapf(models.ErrIndexOutOfRange,
			"document index %d, case has %d documents", index, len(visaCase.Documents)))
		return
	}

	doc := &visaCase.Documents[index]
	if req.Uploaded != nil {
		doc.Uploaded = *req.Uploaded
		if *req.Uploaded && doc.UploadDate == nil {
			now := time.Now().UTC()
			doc.UploadDate = &now
		}
		if !*req.Uploaded {
			doc.UploadDate = nil
			doc.FileURL = nil
		}
	}
	if req.FileURL != nil {
		doc.FileURL = req.FileURL
	}
	if req.ExpiryDate != nil {
		doc.ExpiryDate = req.ExpiryDate
	}
	if req.Notes != nil {
		doc.Notes = req.Notes
	}

	if err := h.cases.SaveDocuments(c.Request.Context(), id, visaCase.Documents); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// CompleteChecklistItem handles PATCH /api/v1/cases/:id/checklist/:index.
func (h *CaseHandler) CompleteChecklistItem(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	index, ok := parseIntParam(c, "index")
	if !ok {
		return
	}
	var req models.CompleteChecklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	visaCase, err := h.editableCase(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if index < 0 || index >= len(visaCase.ChecklistItems) {
		respondError(c, errors.Wrapf(models.ErrIndexOutOfRange,
			"checklist index %d, case has %d items", index, len(visaCase.ChecklistItems)))
		return
	}

	item := &visaCase.ChecklistItems[index]
	if req.Completed && !item.Completed {
		now := time.Now().UTC()
		item.CompletedDate = &now
	}
	if !req.Completed {
		item.CompletedDate = nil
	}
	item.Completed = req.Completed
	if req.Notes != nil {
		item.Notes = req.Notes
	}

	if err := h.cases.SaveChecklist(c.Request.Context(), id, visaCase.ChecklistItems); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visaCase)
}

// Timeline handles GET /api/v1/cases/:id/timeline.
func (h *CaseHandler) Timeline(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.cases.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	entries, err := h.timeline.ListByCase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// editableCase loads a case and rejects the edit if it is locked.
func (h *CaseHandler) editableCase(c *gin.Context, id uuid.UUID) (*models.VisaCase, error) {
	visaCase, err := h.cases.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if visaCase.Locked {
		return nil, errors.Wrapf(models.ErrCaseLocked, "case %s", visaCase.CaseNumber)
	}
	return visaCase, nil
}

func (h *CaseHandler) invalidateDashboards(c *gin.Context) {
	h.cache.InvalidatePrefix(c.Request.Context(), "reports:")
	h.cache.InvalidatePrefix(c.Request.Context(), "alerts:")
}
