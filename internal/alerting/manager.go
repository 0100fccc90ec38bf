// Package alerting manages the per-case alert lists and the flattened
// cross-case alert feed.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

// CaseStore is the persistence surface the manager needs. Alerts live
// inside their case row, so every mutation rewrites that case's list.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.VisaCase, error)
	SaveAlerts(ctx context.Context, id uuid.UUID, alerts models.AlertList) error
	AlertFeed(ctx context.Context, filter *models.AlertFilter) ([]models.AlertFeedEntry, error)
}

// Manager appends, resolves and queries alerts. The alert list is
// append-only; resolution only flips the resolved flag in place, so
// indexes handed out to callers stay stable.
type Manager struct {
	cases  CaseStore
	logger *zap.Logger
}

// NewManager creates an alert manager.
func NewManager(cases CaseStore, logger *zap.Logger) *Manager {
	return &Manager{cases: cases, logger: logger.Named("alerting")}
}

// Append adds a manual alert to a case. The triggered date and resolved
// state are set here regardless of what the caller supplied.
func (m *Manager) Append(ctx context.Context, caseID uuid.UUID, req *models.AppendAlertRequest) (*models.VisaCase, error) {
	if req.Type == "" {
		return nil, models.NewValidationError("type", "must not be empty")
	}
	if req.Message == "" {
		return nil, models.NewValidationError("message", "must not be empty")
	}
	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	if !severity.Valid() {
		return nil, models.NewValidationError("severity", fmt.Sprintf("unknown severity %q", severity))
	}

	visaCase, err := m.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	alert := models.Alert{
		Type:          req.Type,
		Message:       req.Message,
		Severity:      severity,
		DocumentID:    req.DocumentID,
		TriggeredDate: time.Now().UTC(),
		Resolved:      false,
	}
	visaCase.Alerts = append(visaCase.Alerts, alert)

	if err := m.cases.SaveAlerts(ctx, visaCase.ID, visaCase.Alerts); err != nil {
		return nil, err
	}

	m.logger.Info("Alert appended",
		zap.String("case_number", visaCase.CaseNumber),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))

	return visaCase, nil
}

// Resolve sets the resolved flag of the alert at the given index. The
// index is validated against the freshly loaded case, not against
// whatever listing the caller saw. Resolving stamps the resolved date
// once; un-resolving keeps the old date as a trace of the last
// resolution.
func (m *Manager) Resolve(ctx context.Context, caseID uuid.UUID, index int, resolved bool) (*models.VisaCase, error) {
	visaCase, err := m.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(visaCase.Alerts) {
		return nil, errors.Wrapf(models.ErrIndexOutOfRange,
			"alert index %d, case %s has %d alerts", index, visaCase.CaseNumber, len(visaCase.Alerts))
	}

	alert := &visaCase.Alerts[index]
	if resolved && !alert.Resolved {
		now := time.Now().UTC()
		alert.ResolvedDate = &now
	}
	alert.Resolved = resolved

	if err := m.cases.SaveAlerts(ctx, visaCase.ID, visaCase.Alerts); err != nil {
		return nil, err
	}
	return visaCase, nil
}

// Query returns the flattened cross-case alert feed.
func (m *Manager) Query(ctx context.Context, filter *models.AlertFilter) ([]models.AlertFeedEntry, error) {
	return m.cases.AlertFeed(ctx, filter)
}
