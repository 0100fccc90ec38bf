package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"visadesk/internal/billing"
	"visadesk/internal/metrics"
	"visadesk/internal/sweep"
)

// Task ids used for registration and the on-demand run endpoints.
const (
	TaskReminderSweep  = "reminder_sweep"
	TaskDocumentAudit  = "document_audit"
	TaskInvoiceOverdue = "invoice_overdue"
)

// ReminderSweepHandler fires due reminders on a schedule.
type ReminderSweepHandler struct {
	sweeper   *sweep.ReminderSweeper
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewReminderSweepHandler creates the reminder sweep task.
func NewReminderSweepHandler(sweeper *sweep.ReminderSweeper, collector *metrics.Collector, logger *zap.Logger) *ReminderSweepHandler {
	return &ReminderSweepHandler{sweeper: sweeper, collector: collector, logger: logger}
}

func (h *ReminderSweepHandler) Name() string { return "Reminder Sweep" }

func (h *ReminderSweepHandler) Execute(ctx context.Context) error {
	start := time.Now()
	result, err := h.sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	h.collector.RemindersTriggered.Add(float64(result.TriggeredCount))
	h.collector.SweepFailures.WithLabelValues(TaskReminderSweep).Add(float64(len(result.Errors)))
	h.collector.SweepDuration.WithLabelValues(TaskReminderSweep).Observe(time.Since(start).Seconds())
	return nil
}

// DocumentAuditHandler runs the completeness audit on a schedule.
type DocumentAuditHandler struct {
	auditor   *sweep.DocumentAuditor
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewDocumentAuditHandler creates the document audit task.
func NewDocumentAuditHandler(auditor *sweep.DocumentAuditor, collector *metrics.Collector, logger *zap.Logger) *DocumentAuditHandler {
	return &DocumentAuditHandler{auditor: auditor, collector: collector, logger: logger}
}

func (h *DocumentAuditHandler) Name() string { return "Document Completeness Audit" }

func (h *DocumentAuditHandler) Execute(ctx context.Context) error {
	start := time.Now()
	result, err := h.auditor.Audit(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	h.collector.AuditAlertsGenerated.WithLabelValues("expired").Add(float64(result.ExpiredCount))
	h.collector.AuditAlertsGenerated.WithLabelValues("expiring").Add(float64(result.ExpiringCount))
	h.collector.AuditAlertsGenerated.WithLabelValues("missing").Add(float64(result.MissingCount))
	h.collector.SweepFailures.WithLabelValues(TaskDocumentAudit).Add(float64(len(result.Errors)))
	h.collector.SweepDuration.WithLabelValues(TaskDocumentAudit).Observe(time.Since(start).Seconds())
	return nil
}

// InvoiceOverdueHandler flips past-due sent invoices to overdue.
type InvoiceOverdueHandler struct {
	billing   *billing.Service
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewInvoiceOverdueHandler creates the overdue invoice task.
func NewInvoiceOverdueHandler(billingSvc *billing.Service, collector *metrics.Collector, logger *zap.Logger) *InvoiceOverdueHandler {
	return &InvoiceOverdueHandler{billing: billingSvc, collector: collector, logger: logger}
}

func (h *InvoiceOverdueHandler) Name() string { return "Invoice Overdue Check" }

func (h *InvoiceOverdueHandler) Execute(ctx context.Context) error {
	start := time.Now()
	_, err := h.billing.MarkOverdue(ctx, time.Now().UTC())
	h.collector.SweepDuration.WithLabelValues(TaskInvoiceOverdue).Observe(time.Since(start).Seconds())
	return err
}
