package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/database"
	"visadesk/internal/models"
)

// InvoiceRepository persists billing documents.
type InvoiceRepository struct {
	*database.Repository
}

// NewInvoiceRepository creates an invoice repository.
func NewInvoiceRepository(db *database.Database, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{Repository: database.NewRepository(db, logger)}
}

const invoiceColumns = `
	id, invoice_number, client_id, case_id, items, subtotal, tax, total,
	status, issue_date, due_date, paid_date, created_at, updated_at`

// Insert writes a fully built invoice. Number allocation and total
// calculation live in the billing service.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (
			:id, :invoice_number, :client_id, :case_id, :items, :subtotal, :tax, :total,
			:status, :issue_date, :due_date, :paid_date, :created_at, :updated_at
		)`
	if _, err := r.DB().NamedExecContext(ctx, query, invoice); err != nil {
		if isUniqueViolation(err) {
			// A concurrent creation won the number; retryable.
			return models.NewPersistenceError("insert invoice",
				errors.Wrap(models.ErrNumberConflict, invoice.InvoiceNumber))
		}
		return models.NewPersistenceError("insert invoice", err)
	}
	return nil
}

// NextInvoiceNumber allocates the next INV-<year>-<seq> number, one past
// the highest suffix in use.
func (r *InvoiceRepository) NextInvoiceNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", year)
	var numbers []string
	if err := r.DB().SelectContext(ctx, &numbers, `SELECT invoice_number FROM invoices WHERE invoice_number LIKE $1 || '%'`, prefix); err != nil {
		return "", models.NewPersistenceError("allocate invoice number", err)
	}
	return nextInSeries(prefix, numbers), nil
}

// GetByID retrieves an invoice by id.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if err := r.DB().GetContext(ctx, &invoice, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(models.ErrNotFound, "invoice %s", id)
		}
		return nil, models.NewPersistenceError("get invoice", err)
	}
	return &invoice, nil
}

// List retrieves invoices, optionally narrowed to one client or status.
func (r *InvoiceRepository) List(ctx context.Context, clientID *uuid.UUID, status *models.InvoiceStatus, paginate *database.Paginate) (*database.PaginatedResult, error) {
	whereClause := "1=1"
	var args []interface{}

	if clientID != nil {
		args = append(args, *clientID)
		whereClause += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		whereClause += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM invoices WHERE %s", whereClause)
	if err := r.DB().GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, models.NewPersistenceError("count invoices", err)
	}

	args = append(args, paginate.Limit, paginate.Offset)
	dataQuery := fmt.Sprintf(`
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE %s
		ORDER BY issue_date DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args))

	var invoices []models.Invoice
	if err := r.DB().SelectContext(ctx, &invoices, dataQuery, args...); err != nil {
		return nil, models.NewPersistenceError("list invoices", err)
	}
	return database.NewPaginatedResult(invoices, total, paginate), nil
}

// SaveStatus persists an invoice's status fields.
func (r *InvoiceRepository) SaveStatus(ctx context.Context, invoice *models.Invoice) error {
	query := `UPDATE invoices SET status = $1, paid_date = $2, updated_at = $3 WHERE id = $4`
	result, err := r.DB().ExecContext(ctx, query, invoice.Status, invoice.PaidDate, invoice.UpdatedAt, invoice.ID)
	if err != nil {
		return models.NewPersistenceError("save invoice status", err)
	}
	return requireRow(result, "invoice")
}

// TotalsByStatus sums invoice totals per status for reporting.
func (r *InvoiceRepository) TotalsByStatus(ctx context.Context) (map[string]int64, error) {
	totals := make(map[string]int64)
	rows, err := r.DB().NamedQueryContext(ctx, `
		SELECT status, COALESCE(SUM(total), 0) AS total
		FROM invoices
		GROUP BY status`, map[string]interface{}{})
	if err != nil {
		return nil, models.NewPersistenceError("sum invoice totals", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var total int64
		if err := rows.Scan(&status, &total); err != nil {
			return nil, models.NewPersistenceError("scan invoice totals", err)
		}
		totals[status] = total
	}
	return totals, nil
}

// MarkOverdue flips sent invoices past their due date to overdue and
// returns the affected invoice numbers.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.DB().NamedQueryContext(ctx, `
		UPDATE invoices
		SET status = :overdue, updated_at = :now
		WHERE status = :sent AND due_date < :now
		RETURNING invoice_number`,
		map[string]interface{}{
			"overdue": models.InvoiceOverdue,
			"sent":    models.InvoiceSent,
			"now":     now,
		})
	if err != nil {
		return nil, models.NewPersistenceError("mark invoices overdue", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, models.NewPersistenceError("scan overdue invoices", err)
		}
		numbers = append(numbers, number)
	}
	return numbers, nil
}
