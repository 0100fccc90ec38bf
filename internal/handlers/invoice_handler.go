package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"visadesk/internal/billing"
	"visadesk/internal/metrics"
	"visadesk/internal/models"
	"visadesk/internal/repository"
)

// InvoiceHandler serves the billing endpoints.
type InvoiceHandler struct {
	billing   *billing.Service
	invoices  *repository.InvoiceRepository
	audit     *repository.AuditRepository
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewInvoiceHandler creates an invoice handler.
func NewInvoiceHandler(billingSvc *billing.Service, invoices *repository.InvoiceRepository, audit *repository.AuditRepository, collector *metrics.Collector, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		billing:   billingSvc,
		invoices:  invoices,
		audit:     audit,
		collector: collector,
		logger:    logger.Named("invoice_handler"),
	}
}

// Create handles POST /api/v1/invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req models.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	invoice, err := h.billing.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.collector.InvoicesIssued.Inc()
	c.JSON(http.StatusCreated, invoice)
}

// List handles GET /api/v1/invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	var clientID *uuid.UUID
	if raw := c.Query("clientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clientId"})
			return
		}
		clientID = &id
	}
	var status *models.InvoiceStatus
	if raw := c.Query("status"); raw != "" {
		value := models.InvoiceStatus(raw)
		status = &value
	}

	result, err := h.invoices.List(c.Request.Context(), clientID, status, paginateFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get handles GET /api/v1/invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// Transition handles POST /api/v1/invoices/:id/transition.
func (h *InvoiceHandler) Transition(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req models.InvoiceTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	invoice, err := h.billing.Transition(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	recordAudit(c, h.audit, h.logger, "invoice.transition", "invoice", id,
		nil, models.JSONB{"invoiceNumber": invoice.InvoiceNumber, "status": string(invoice.Status)})
	c.JSON(http.StatusOK, invoice)
}
