package repository

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"visadesk/internal/database"
	"visadesk/internal/models"
)

// AuditRepository persists the append-only compliance log.
type AuditRepository struct {
	*database.Repository
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(db *database.Database, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{Repository: database.NewRepository(db, logger)}
}

const auditColumns = `id, actor, action, resource_type, resource_id, old_values, new_values, created_at`

// Record appends an audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES (:id, :actor, :action, :resource_type, :resource_id, :old_values, :new_values, :created_at)`
	if _, err := r.DB().NamedExecContext(ctx, query, entry); err != nil {
		return models.NewPersistenceError("record audit entry", err)
	}
	return nil
}

// List retrieves audit entries newest first.
func (r *AuditRepository) List(ctx context.Context, filter *models.AuditLogFilter, paginate *database.Paginate) (*database.PaginatedResult, error) {
	whereConditions := []string{"1=1"}
	var args []interface{}

	if filter != nil {
		if filter.Actor != nil {
			args = append(args, *filter.Actor)
			whereConditions = append(whereConditions, fmt.Sprintf("actor = $%d", len(args)))
		}
		if filter.Action != nil {
			args = append(args, *filter.Action)
			whereConditions = append(whereConditions, fmt.Sprintf("action = $%d", len(args)))
		}
		if filter.ResourceType != nil {
			args = append(args, *filter.ResourceType)
			whereConditions = append(whereConditions, fmt.Sprintf("resource_type = $%d", len(args)))
		}
		if filter.ResourceID != nil {
			args = append(args, *filter.ResourceID)
			whereConditions = append(whereConditions, fmt.Sprintf("resource_id = $%d", len(args)))
		}
		if filter.Since != nil {
			args = append(args, *filter.Since)
			whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", len(args)))
		}
		if filter.Until != nil {
			args = append(args, *filter.Until)
			whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", len(args)))
		}
	}

	whereClause := strings.Join(whereConditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs WHERE %s", whereClause)
	if err := r.DB().GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, models.NewPersistenceError("count audit logs", err)
	}

	args = append(args, paginate.Limit, paginate.Offset)
	dataQuery := fmt.Sprintf(`
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args))

	var entries []models.AuditLog
	if err := r.DB().SelectContext(ctx, &entries, dataQuery, args...); err != nil {
		return nil, models.NewPersistenceError("list audit logs", err)
	}
	return database.NewPaginatedResult(entries, total, paginate), nil
}
