package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/catalog"
	"visadesk/internal/database"
	"visadesk/internal/models"
)

// CaseRepository handles visa case persistence. A case row carries its
// documents, checklist, reminders and alerts as JSONB columns, so any
// combination of those collections can be rewritten in one atomic UPDATE.
type CaseRepository struct {
	*database.Repository
}

// NewCaseRepository creates a case repository.
func NewCaseRepository(db *database.Database, logger *zap.Logger) *CaseRepository {
	return &CaseRepository{Repository: database.NewRepository(db, logger)}
}

const caseColumns = `
	id, case_number, client_id, client_name, client_email, visa_type, country,
	status, priority, locked, locked_date, application_date, submission_date,
	decision_date, expected_decision_date, documents, checklist_items,
	reminders, alerts, notes, created_at, updated_at`

// Create generates a case number, seeds the catalog collections for the
// requested visa type and inserts the case. Collections are seeded exactly
// once here; afterwards they are only mutated item by item.
func (r *CaseRepository) Create(ctx context.Context, req *models.CreateCaseRequest) (*models.VisaCase, error) {
	if req.VisaType == "" {
		return nil, models.NewValidationError("visaType", "must not be empty")
	}
	if req.ClientName == "" {
		return nil, models.NewValidationError("clientName", "must not be empty")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, models.NewValidationError("priority", fmt.Sprintf("unknown priority %q", req.Priority))
	}

	now := time.Now().UTC()
	visaCase := &models.VisaCase{
		ID:                   uuid.New(),
		ClientID:             req.ClientID,
		ClientName:           req.ClientName,
		ClientEmail:          req.ClientEmail,
		VisaType:             req.VisaType,
		Country:              req.Country,
		Status:               models.StatusDraft,
		Priority:             req.Priority,
		ApplicationDate:      now,
		ExpectedDecisionDate: req.ExpectedDecisionDate,
		Documents:            catalog.StandardDocuments(req.VisaType),
		ChecklistItems:       catalog.ChecklistItems(req.VisaType),
		Reminders:            catalog.StandardReminders(req.VisaType, now),
		Alerts:               models.AlertList{},
		Notes:                pq.StringArray(req.Notes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if visaCase.Notes == nil {
		visaCase.Notes = pq.StringArray{}
	}

	query := `
		INSERT INTO cases (` + caseColumns + `
		) VALUES (
			:id, :case_number, :client_id, :client_name, :client_email, :visa_type, :country,
			:status, :priority, :locked, :locked_date, :application_date, :submission_date,
			:decision_date, :expected_decision_date, :documents, :checklist_items,
			:reminders, :alerts, :notes, :created_at, :updated_at
		)`

	// Case numbers continue from the highest suffix in use; the unique
	// index protects against concurrent intakes, so retry on conflict
	// (the re-read sees the winner's number and moves past it).
	for attempt := 0; attempt < 3; attempt++ {
		number, err := r.nextCaseNumber(ctx, now.Year())
		if err != nil {
			return nil, err
		}
		visaCase.CaseNumber = number

		_, err = r.DB().NamedExecContext(ctx, query, visaCase)
		if err == nil {
			return visaCase, nil
		}
		if !isUniqueViolation(err) {
			return nil, models.NewPersistenceError("create case", err)
		}
	}
	return nil, models.NewPersistenceError("create case", errors.Wrap(models.ErrNumberConflict, "case number allocation kept conflicting"))
}

func (r *CaseRepository) nextCaseNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("VC-%d-", year)
	var numbers []string
	if err := r.DB().SelectContext(ctx, &numbers, `SELECT case_number FROM cases WHERE case_number LIKE $1 || '%'`, prefix); err != nil {
		return "", models.NewPersistenceError("allocate case number", err)
	}
	return nextInSeries(prefix, numbers), nil
}

// GetByID retrieves a case by internal id.
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VisaCase, error) {
	var visaCase models.VisaCase
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	if err := r.DB().GetContext(ctx, &visaCase, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(models.ErrNotFound, "case %s", id)
		}
		return nil, models.NewPersistenceError("get case", err)
	}
	return &visaCase, nil
}

// GetByCaseNumber retrieves a case by its human-readable case number.
func (r *CaseRepository) GetByCaseNumber(ctx context.Context, caseNumber string) (*models.VisaCase, error) {
	var visaCase models.VisaCase
	query := `SELECT ` + caseColumns + ` FROM cases WHERE case_number = $1`
	if err := r.DB().GetContext(ctx, &visaCase, query, caseNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(models.ErrNotFound, "case %s", caseNumber)
		}
		return nil, models.NewPersistenceError("get case", err)
	}
	return &visaCase, nil
}

// Update applies the editable scalar fields of a case.
func (r *CaseRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateCaseRequest) (*models.VisaCase, error) {
	setParts := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	if req.Country != nil {
		args = append(args, *req.Country)
		setParts = append(setParts, fmt.Sprintf("country = $%d", len(args)))
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, models.NewValidationError("priority", fmt.Sprintf("unknown priority %q", *req.Priority))
		}
		args = append(args, *req.Priority)
		setParts = append(setParts, fmt.Sprintf("priority = $%d", len(args)))
	}
	if req.ExpectedDecisionDate != nil {
		args = append(args, *req.ExpectedDecisionDate)
		setParts = append(setParts, fmt.Sprintf("expected_decision_date = $%d", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE cases SET %s WHERE id = $%d`, strings.Join(setParts, ", "), len(args))

	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewPersistenceError("update case", err)
	}
	if err := requireRow(result, "case"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a case permanently. There is no soft delete for cases;
// removal is an explicit administrative action.
func (r *CaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.DB().ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return models.NewPersistenceError("delete case", err)
	}
	return requireRow(result, "case")
}

// List retrieves cases with filtering and pagination.
func (r *CaseRepository) List(ctx context.Context, filter *models.CaseFilter, paginate *database.Paginate) (*database.PaginatedResult, error) {
	whereConditions := []string{"1=1"}
	var args []interface{}

	if filter != nil {
		if len(filter.Statuses) > 0 {
			values := make([]string, len(filter.Statuses))
			for i, s := range filter.Statuses {
				values[i] = string(s)
			}
			args = append(args, pq.Array(values))
			whereConditions = append(whereConditions, fmt.Sprintf("status = ANY($%d)", len(args)))
		}
		if len(filter.Priorities) > 0 {
			values := make([]string, len(filter.Priorities))
			for i, p := range filter.Priorities {
				values[i] = string(p)
			}
			args = append(args, pq.Array(values))
			whereConditions = append(whereConditions, fmt.Sprintf("priority = ANY($%d)", len(args)))
		}
		if filter.VisaType != nil {
			args = append(args, *filter.VisaType)
			whereConditions = append(whereConditions, fmt.Sprintf("visa_type = $%d", len(args)))
		}
		if filter.Country != nil {
			args = append(args, *filter.Country)
			whereConditions = append(whereConditions, fmt.Sprintf("country = $%d", len(args)))
		}
		if filter.ClientID != nil {
			args = append(args, *filter.ClientID)
			whereConditions = append(whereConditions, fmt.Sprintf("client_id = $%d", len(args)))
		}
		if filter.Search != nil && *filter.Search != "" {
			args = append(args, "%"+*filter.Search+"%")
			whereConditions = append(whereConditions,
				fmt.Sprintf("(case_number ILIKE $%d OR client_name ILIKE $%d)", len(args), len(args)))
		}
	}

	whereClause := strings.Join(whereConditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM cases WHERE %s", whereClause)
	if err := r.DB().GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, models.NewPersistenceError("count cases", err)
	}

	args = append(args, paginate.Limit, paginate.Offset)
	dataQuery := fmt.Sprintf(`
		SELECT `+caseColumns+`
		FROM cases
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args))

	var cases []models.VisaCase
	if err := r.DB().SelectContext(ctx, &cases, dataQuery, args...); err != nil {
		return nil, models.NewPersistenceError("list cases", err)
	}

	return database.NewPaginatedResult(cases, total, paginate), nil
}

// ListAll retrieves every case, used by the agency-wide sweeps.
func (r *CaseRepository) ListAll(ctx context.Context, after uuid.UUID, limit int) ([]*models.VisaCase, error) {
	var cases []*models.VisaCase
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id > $1 ORDER BY id LIMIT $2`
	if err := r.DB().SelectContext(ctx, &cases, query, after, limit); err != nil {
		return nil, models.NewPersistenceError("list all cases", err)
	}
	return cases, nil
}

// ListWithDueReminders retrieves cases holding at least one incomplete
// reminder due on or before the given instant. Keyset paging by id keeps
// the sweep's writes from shifting later pages under it.
func (r *CaseRepository) ListWithDueReminders(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*models.VisaCase, error) {
	var cases []*models.VisaCase
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE id > $2
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(reminders) AS r(reminder)
			WHERE (r.reminder->>'completed')::boolean = false
			  AND (r.reminder->>'dueDate')::timestamptz <= $1
		)
		ORDER BY id
		LIMIT $3`
	if err := r.DB().SelectContext(ctx, &cases, query, now, after, limit); err != nil {
		return nil, models.NewPersistenceError("list due reminder cases", err)
	}
	return cases, nil
}

// SaveStatus persists the decision-status fields of a case.
func (r *CaseRepository) SaveStatus(ctx context.Context, c *models.VisaCase) error {
	query := `
		UPDATE cases
		SET status = $1, submission_date = $2, decision_date = $3, updated_at = $4
		WHERE id = $5`
	result, err := r.DB().ExecContext(ctx, query, c.Status, c.SubmissionDate, c.DecisionDate, c.UpdatedAt, c.ID)
	if err != nil {
		return models.NewPersistenceError("save case status", err)
	}
	return requireRow(result, "case")
}

// SaveLock persists the lock fields of a case.
func (r *CaseRepository) SaveLock(ctx context.Context, c *models.VisaCase) error {
	query := `UPDATE cases SET locked = $1, locked_date = $2, updated_at = $3 WHERE id = $4`
	result, err := r.DB().ExecContext(ctx, query, c.Locked, c.LockedDate, c.UpdatedAt, c.ID)
	if err != nil {
		return models.NewPersistenceError("save case lock", err)
	}
	return requireRow(result, "case")
}

// AppendNote appends a free-text note to the case log.
func (r *CaseRepository) AppendNote(ctx context.Context, id uuid.UUID, note string) (*models.VisaCase, error) {
	if note == "" {
		return nil, models.NewValidationError("note", "must not be empty")
	}
	query := `UPDATE cases SET notes = array_append(notes, $1), updated_at = $2 WHERE id = $3`
	result, err := r.DB().ExecContext(ctx, query, note, time.Now().UTC(), id)
	if err != nil {
		return nil, models.NewPersistenceError("append note", err)
	}
	if err := requireRow(result, "case"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// SaveDocuments rewrites a case's document list.
func (r *CaseRepository) SaveDocuments(ctx context.Context, id uuid.UUID, docs models.DocumentList) error {
	query := `UPDATE cases SET documents = $1, updated_at = $2 WHERE id = $3`
	result, err := r.DB().ExecContext(ctx, query, docs, time.Now().UTC(), id)
	if err != nil {
		return models.NewPersistenceError("save documents", err)
	}
	return requireRow(result, "case")
}

// SaveChecklist rewrites a case's checklist.
func (r *CaseRepository) SaveChecklist(ctx context.Context, id uuid.UUID, items models.ChecklistList) error {
	query := `UPDATE cases SET checklist_items = $1, updated_at = $2 WHERE id = $3`
	result, err := r.DB().ExecContext(ctx, query, items, time.Now().UTC(), id)
	if err != nil {
		return models.NewPersistenceError("save checklist", err)
	}
	return requireRow(result, "case")
}

// SaveAlerts rewrites a case's alert list.
func (r *CaseRepository) SaveAlerts(ctx context.Context, id uuid.UUID, alerts models.AlertList) error {
	query := `UPDATE cases SET alerts = $1, updated_at = $2 WHERE id = $3`
	result, err := r.DB().ExecContext(ctx, query, alerts, time.Now().UTC(), id)
	if err != nil {
		return models.NewPersistenceError("save alerts", err)
	}
	return requireRow(result, "case")
}

// SaveReminderSweep rewrites a case's reminders and alerts in a single
// statement. The sweep relies on this being one write: a reminder is only
// marked complete in the same update that appends its alert.
func (r *CaseRepository) SaveReminderSweep(ctx context.Context, id uuid.UUID, reminders models.ReminderList, alerts models.AlertList) error {
	query := `UPDATE cases SET reminders = $1, alerts = $2, updated_at = $3 WHERE id = $4`
	result, err := r.DB().ExecContext(ctx, query, reminders, alerts, time.Now().UTC(), id)
	if err != nil {
		return models.NewPersistenceError("save reminder sweep", err)
	}
	return requireRow(result, "case")
}

// AlertFeed returns alerts flattened across cases, newest first, each
// annotated with its parent case and its index in that case's alert list.
func (r *CaseRepository) AlertFeed(ctx context.Context, filter *models.AlertFilter) ([]models.AlertFeedEntry, error) {
	whereConditions := []string{"1=1"}
	var args []interface{}

	if filter != nil {
		if filter.Resolved != nil {
			args = append(args, *filter.Resolved)
			whereConditions = append(whereConditions, fmt.Sprintf("(a.alert->>'resolved')::boolean = $%d", len(args)))
		}
		if filter.Severity != nil {
			args = append(args, string(*filter.Severity))
			whereConditions = append(whereConditions, fmt.Sprintf("a.alert->>'severity' = $%d", len(args)))
		}
		if filter.CaseID != nil {
			args = append(args, *filter.CaseID)
			whereConditions = append(whereConditions, fmt.Sprintf("c.id = $%d", len(args)))
		}
	}

	query := fmt.Sprintf(`
		SELECT c.id AS case_id, c.case_number, c.client_name, c.status AS case_status,
		       a.ord - 1 AS alert_index, a.alert AS alert_json
		FROM cases c,
		     jsonb_array_elements(c.alerts) WITH ORDINALITY AS a(alert, ord)
		WHERE %s
		ORDER BY a.alert->>'triggeredDate' DESC`,
		strings.Join(whereConditions, " AND "))

	type feedRow struct {
		CaseID     uuid.UUID         `db:"case_id"`
		CaseNumber string            `db:"case_number"`
		ClientName string            `db:"client_name"`
		CaseStatus models.CaseStatus `db:"case_status"`
		AlertIndex int               `db:"alert_index"`
		AlertJSON  []byte            `db:"alert_json"`
	}

	var rows []feedRow
	if err := r.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, models.NewPersistenceError("alert feed", err)
	}

	entries := make([]models.AlertFeedEntry, 0, len(rows))
	for _, row := range rows {
		var alert models.Alert
		if err := json.Unmarshal(row.AlertJSON, &alert); err != nil {
			return nil, errors.Wrap(err, "failed to decode alert")
		}
		entries = append(entries, models.AlertFeedEntry{
			Alert:      alert,
			AlertIndex: row.AlertIndex,
			CaseID:     row.CaseID,
			CaseNumber: row.CaseNumber,
			ClientName: row.ClientName,
			CaseStatus: row.CaseStatus,
		})
	}
	return entries, nil
}

// Stats aggregates case counts for reporting.
func (r *CaseRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	byStatus, err := r.countBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	stats["byStatus"] = byStatus

	byPriority, err := r.countBy(ctx, "priority")
	if err != nil {
		return nil, err
	}
	stats["byPriority"] = byPriority

	var overdueReminders int64
	err = r.DB().GetContext(ctx, &overdueReminders, `
		SELECT COUNT(*)
		FROM cases c, jsonb_array_elements(c.reminders) AS r(reminder)
		WHERE (r.reminder->>'completed')::boolean = false
		  AND (r.reminder->>'dueDate')::timestamptz <= NOW()`)
	if err != nil {
		return nil, models.NewPersistenceError("count overdue reminders", err)
	}
	stats["overdueReminders"] = overdueReminders

	unresolvedBySeverity := make(map[string]int64)
	rows, err := r.DB().NamedQueryContext(ctx, `
		SELECT a.alert->>'severity' AS severity, COUNT(*) AS count
		FROM cases c, jsonb_array_elements(c.alerts) AS a(alert)
		WHERE (a.alert->>'resolved')::boolean = false
		GROUP BY a.alert->>'severity'`, map[string]interface{}{})
	if err != nil {
		return nil, models.NewPersistenceError("count unresolved alerts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, models.NewPersistenceError("scan alert counts", err)
		}
		unresolvedBySeverity[severity] = count
	}
	stats["unresolvedAlertsBySeverity"] = unresolvedBySeverity

	return stats, nil
}

func (r *CaseRepository) countBy(ctx context.Context, column string) (map[string]int64, error) {
	counts := make(map[string]int64)
	query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM cases GROUP BY %s`, column, column)
	rows, err := r.DB().NamedQueryContext(ctx, query, map[string]interface{}{})
	if err != nil {
		return nil, models.NewPersistenceError("count cases by "+column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, models.NewPersistenceError("scan case counts", err)
		}
		counts[key] = count
	}
	return counts, nil
}

func requireRow(result sql.Result, resource string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.NewPersistenceError("rows affected", err)
	}
	if rowsAffected == 0 {
		return errors.Wrap(models.ErrNotFound, resource)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
