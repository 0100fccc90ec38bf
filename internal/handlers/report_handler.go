package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visadesk/internal/cache"
	"visadesk/internal/repository"
)

// ReportHandler serves aggregated dashboard numbers.
type ReportHandler struct {
	cases    *repository.CaseRepository
	invoices *repository.InvoiceRepository
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewReportHandler creates a report handler.
func NewReportHandler(cases *repository.CaseRepository, invoices *repository.InvoiceRepository, cacheClient *cache.Cache, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{cases: cases, invoices: invoices, cache: cacheClient, logger: logger.Named("report_handler")}
}

// Summary handles GET /api/v1/reports/summary.
func (h *ReportHandler) Summary(c *gin.Context) {
	const cacheKey = "reports:summary"

	var cached map[string]interface{}
	if h.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, err := h.cases.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	invoiceTotals, err := h.invoices.TotalsByStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	stats["invoiceTotalsByStatus"] = invoiceTotals

	h.cache.SetJSON(c.Request.Context(), cacheKey, stats)
	c.JSON(http.StatusOK, stats)
}
