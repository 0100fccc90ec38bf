package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"visadesk/internal/database"
	"visadesk/internal/models"
)

// TimelineRepository persists the append-only status history of cases.
type TimelineRepository struct {
	*database.Repository
}

// NewTimelineRepository creates a timeline repository.
func NewTimelineRepository(db *database.Database, logger *zap.Logger) *TimelineRepository {
	return &TimelineRepository{Repository: database.NewRepository(db, logger)}
}

// Append inserts a timeline entry. Entries are never updated or deleted.
func (r *TimelineRepository) Append(ctx context.Context, entry *models.TimelineEntry) error {
	query := `
		INSERT INTO case_timeline (id, case_id, date, status, title, description, created_at)
		VALUES (:id, :case_id, :date, :status, :title, :description, :created_at)`
	if _, err := r.DB().NamedExecContext(ctx, query, entry); err != nil {
		return models.NewPersistenceError("append timeline entry", err)
	}
	return nil
}

// ListByCase retrieves a case's timeline oldest first.
func (r *TimelineRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	query := `
		SELECT id, case_id, date, status, title, description, created_at
		FROM case_timeline
		WHERE case_id = $1
		ORDER BY date ASC`
	if err := r.DB().SelectContext(ctx, &entries, query, caseID); err != nil {
		return nil, models.NewPersistenceError("list timeline", err)
	}
	return entries, nil
}
