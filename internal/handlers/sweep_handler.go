package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visadesk/internal/cache"
	"visadesk/internal/scheduler"
	"visadesk/internal/sweep"
)

// SweepHandler exposes the on-demand sweep endpoints and scheduler
// statistics. The same sweeps also run on their cron schedules.
type SweepHandler struct {
	sweeper   *sweep.ReminderSweeper
	auditor   *sweep.DocumentAuditor
	scheduler *scheduler.Scheduler
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewSweepHandler creates a sweep handler.
func NewSweepHandler(
	sweeper *sweep.ReminderSweeper,
	auditor *sweep.DocumentAuditor,
	sched *scheduler.Scheduler,
	cacheClient *cache.Cache,
	logger *zap.Logger,
) *SweepHandler {
	return &SweepHandler{
		sweeper:   sweeper,
		auditor:   auditor,
		scheduler: sched,
		cache:     cacheClient,
		logger:    logger.Named("sweep_handler"),
	}
}

// RunReminderSweep handles POST /api/v1/sweeps/reminders.
func (h *SweepHandler) RunReminderSweep(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	h.cache.InvalidatePrefix(c.Request.Context(), "alerts:")
	h.cache.InvalidatePrefix(c.Request.Context(), "reports:")
	c.JSON(http.StatusOK, result)
}

// RunDocumentAudit handles POST /api/v1/sweeps/documents.
func (h *SweepHandler) RunDocumentAudit(c *gin.Context) {
	result, err := h.auditor.Audit(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	h.cache.InvalidatePrefix(c.Request.Context(), "alerts:")
	h.cache.InvalidatePrefix(c.Request.Context(), "reports:")
	c.JSON(http.StatusOK, result)
}

// SchedulerStats handles GET /api/v1/sweeps/schedule.
func (h *SweepHandler) SchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.scheduler.Stats()})
}
