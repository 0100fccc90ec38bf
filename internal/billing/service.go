// Package billing issues service invoices and enforces their status
// lifecycle.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

// transitions is the legal progression of an invoice. Paid and cancelled
// are terminal.
var transitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceDraft:         {models.InvoiceSent, models.InvoiceCancelled},
	models.InvoiceSent:          {models.InvoiceOverdue, models.InvoicePartiallyPaid, models.InvoicePaid, models.InvoiceCancelled},
	models.InvoiceOverdue:       {models.InvoicePartiallyPaid, models.InvoicePaid, models.InvoiceCancelled},
	models.InvoicePartiallyPaid: {models.InvoicePaid, models.InvoiceCancelled},
	models.InvoicePaid:          {},
	models.InvoiceCancelled:     {},
}

// CanTransition reports whether an invoice may move between two statuses.
func CanTransition(from, to models.InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvoiceStore is the persistence surface the billing service needs.
type InvoiceStore interface {
	NextInvoiceNumber(ctx context.Context, year int) (string, error)
	Insert(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	SaveStatus(ctx context.Context, invoice *models.Invoice) error
	MarkOverdue(ctx context.Context, now time.Time) ([]string, error)
}

// Service creates invoices and drives their lifecycle.
type Service struct {
	invoices InvoiceStore
	logger   *zap.Logger
}

// NewService creates a billing service.
func NewService(invoices InvoiceStore, logger *zap.Logger) *Service {
	return &Service{invoices: invoices, logger: logger.Named("billing")}
}

// Create issues a draft invoice. Line amounts and totals are computed
// here; amounts are minor currency units throughout.
func (s *Service) Create(ctx context.Context, req *models.CreateInvoiceRequest) (*models.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, models.NewValidationError("items", "must not be empty")
	}
	if req.Tax < 0 {
		return nil, models.NewValidationError("tax", "must not be negative")
	}
	if req.DueDate.IsZero() {
		return nil, models.NewValidationError("dueDate", "is required")
	}

	now := time.Now().UTC()
	issueDate := now
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	var subtotal int64
	items := make(models.InvoiceItemList, len(req.Items))
	for i, item := range req.Items {
		if item.Description == "" {
			return nil, models.NewValidationError("items", fmt.Sprintf("item %d has no description", i))
		}
		if item.Quantity <= 0 {
			return nil, models.NewValidationError("items", fmt.Sprintf("item %d has non-positive quantity", i))
		}
		if item.UnitPrice < 0 {
			return nil, models.NewValidationError("items", fmt.Sprintf("item %d has negative unit price", i))
		}
		item.Amount = int64(item.Quantity) * item.UnitPrice
		items[i] = item
		subtotal += item.Amount
	}

	// Invoice numbers are re-read on conflict so a concurrent creation's
	// committed number is seen and skipped.
	for attempt := 0; attempt < 3; attempt++ {
		number, err := s.invoices.NextInvoiceNumber(ctx, issueDate.Year())
		if err != nil {
			return nil, err
		}

		invoice := &models.Invoice{
			ID:            uuid.New(),
			InvoiceNumber: number,
			ClientID:      req.ClientID,
			CaseID:        req.CaseID,
			Items:         items,
			Subtotal:      subtotal,
			Tax:           req.Tax,
			Total:         subtotal + req.Tax,
			Status:        models.InvoiceDraft,
			IssueDate:     issueDate,
			DueDate:       req.DueDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = s.invoices.Insert(ctx, invoice)
		if err == nil {
			s.logger.Info("Invoice issued",
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.Int64("total", invoice.Total))
			return invoice, nil
		}
		if !errors.Is(err, models.ErrNumberConflict) {
			return nil, err
		}
	}
	return nil, models.NewPersistenceError("create invoice", errors.Wrap(models.ErrNumberConflict, "invoice number allocation kept conflicting"))
}

// Transition moves an invoice to newStatus. The paid date is stamped on
// first entry to paid and never moves afterwards.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, newStatus models.InvoiceStatus) (*models.Invoice, error) {
	switch newStatus {
	case models.InvoiceDraft, models.InvoiceSent, models.InvoiceOverdue,
		models.InvoicePartiallyPaid, models.InvoicePaid, models.InvoiceCancelled:
	default:
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown invoice status %q", newStatus))
	}

	invoice, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(invoice.Status, newStatus) {
		return nil, errors.Wrapf(models.ErrInvalidTransition, "invoice %s -> %s", invoice.Status, newStatus)
	}

	now := time.Now().UTC()
	invoice.Status = newStatus
	invoice.UpdatedAt = now
	if newStatus == models.InvoicePaid && invoice.PaidDate == nil {
		invoice.PaidDate = &now
	}

	if err := s.invoices.SaveStatus(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// MarkOverdue flips sent invoices past their due date to overdue and
// returns how many were affected. Run on a schedule.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) ([]string, error) {
	numbers, err := s.invoices.MarkOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(numbers) > 0 {
		s.logger.Info("Invoices marked overdue", zap.Strings("invoice_numbers", numbers))
	}
	return numbers, nil
}
