// Package lifecycle gates and timestamps visa case status transitions.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

// transitions is the legal forward progression of a case's decision status.
// Approved and rejected are terminal.
var transitions = map[models.CaseStatus][]models.CaseStatus{
	models.StatusDraft:     {models.StatusSubmitted},
	models.StatusSubmitted: {models.StatusInProcess},
	models.StatusInProcess: {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:  {},
	models.StatusRejected:  {},
}

// CanTransition reports whether a case may move from one status to another.
func CanTransition(from, to models.CaseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CaseStore is the persistence surface the controller needs.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.VisaCase, error)
	SaveStatus(ctx context.Context, c *models.VisaCase) error
	SaveLock(ctx context.Context, c *models.VisaCase) error
}

// TimelineStore appends immutable transition events for audit display.
type TimelineStore interface {
	Append(ctx context.Context, entry *models.TimelineEntry) error
}

// AuditStore records compliance log entries. Audit failures never block a
// transition; they are logged and dropped.
type AuditStore interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

// Controller enforces the case lifecycle. The locked flag is orthogonal to
// decision status: locking is reversible while decisions are not, and a
// locked case rejects transitions until unlocked.
type Controller struct {
	cases    CaseStore
	timeline TimelineStore
	audit    AuditStore
	logger   *zap.Logger
}

// New creates a lifecycle controller.
func New(cases CaseStore, timeline TimelineStore, audit AuditStore, logger *zap.Logger) *Controller {
	return &Controller{
		cases:    cases,
		timeline: timeline,
		audit:    audit,
		logger:   logger.Named("lifecycle"),
	}
}

// Transition moves a case to newStatus. Repeating the current terminal
// status is a no-op success; every other repeat or skip fails with
// ErrInvalidTransition. SubmissionDate and DecisionDate are stamped exactly
// once, on first entry to the corresponding state.
func (c *Controller) Transition(ctx context.Context, caseID uuid.UUID, newStatus models.CaseStatus, actor string) (*models.VisaCase, error) {
	if !newStatus.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", newStatus))
	}

	visaCase, err := c.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if visaCase.Status == newStatus && newStatus.Terminal() {
		return visaCase, nil
	}

	if visaCase.Locked {
		return nil, errors.Wrapf(models.ErrCaseLocked, "case %s", visaCase.CaseNumber)
	}

	if !CanTransition(visaCase.Status, newStatus) {
		return nil, errors.Wrapf(models.ErrInvalidTransition, "%s -> %s", visaCase.Status, newStatus)
	}

	now := time.Now().UTC()
	oldStatus := visaCase.Status
	visaCase.Status = newStatus
	visaCase.UpdatedAt = now

	switch newStatus {
	case models.StatusSubmitted:
		if visaCase.SubmissionDate == nil {
			visaCase.SubmissionDate = &now
		}
	case models.StatusApproved, models.StatusRejected:
		if visaCase.DecisionDate == nil {
			visaCase.DecisionDate = &now
		}
	}

	if err := c.cases.SaveStatus(ctx, visaCase); err != nil {
		return nil, err
	}

	entry := &models.TimelineEntry{
		ID:          uuid.New(),
		CaseID:      visaCase.ID,
		Date:        now,
		Status:      string(newStatus),
		Title:       fmt.Sprintf("Status changed to %s", newStatus),
		Description: fmt.Sprintf("Case %s moved from %s to %s", visaCase.CaseNumber, oldStatus, newStatus),
		CreatedAt:   now,
	}
	if err := c.timeline.Append(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "failed to append timeline entry")
	}

	c.recordAudit(ctx, actor, "case.transition", visaCase.ID,
		models.JSONB{"status": string(oldStatus)},
		models.JSONB{"status": string(newStatus)})

	c.logger.Info("Case status transitioned",
		zap.String("case_number", visaCase.CaseNumber),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)))

	return visaCase, nil
}

// Lock suspends editability of a case. Locking an already-locked case fails
// with ErrAlreadyLocked.
func (c *Controller) Lock(ctx context.Context, caseID uuid.UUID, actor string) (*models.VisaCase, error) {
	visaCase, err := c.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if visaCase.Locked {
		return nil, errors.Wrapf(models.ErrAlreadyLocked, "case %s", visaCase.CaseNumber)
	}

	now := time.Now().UTC()
	visaCase.Locked = true
	visaCase.LockedDate = &now
	visaCase.UpdatedAt = now

	if err := c.cases.SaveLock(ctx, visaCase); err != nil {
		return nil, err
	}

	c.recordAudit(ctx, actor, "case.lock", visaCase.ID, nil, models.JSONB{"locked": true})
	return visaCase, nil
}

// Unlock restores editability. Unlocking an unlocked case fails with
// ErrNotLocked. Decision status is untouched either way.
func (c *Controller) Unlock(ctx context.Context, caseID uuid.UUID, actor string) (*models.VisaCase, error) {
	visaCase, err := c.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !visaCase.Locked {
		return nil, errors.Wrapf(models.ErrNotLocked, "case %s", visaCase.CaseNumber)
	}

	now := time.Now().UTC()
	visaCase.Locked = false
	visaCase.LockedDate = nil
	visaCase.UpdatedAt = now

	if err := c.cases.SaveLock(ctx, visaCase); err != nil {
		return nil, err
	}

	c.recordAudit(ctx, actor, "case.unlock", visaCase.ID, models.JSONB{"locked": true}, models.JSONB{"locked": false})
	return visaCase, nil
}

func (c *Controller) recordAudit(ctx context.Context, actor, action string, resourceID uuid.UUID, oldValues, newValues models.JSONB) {
	entry := &models.AuditLog{
		ID:           uuid.New(),
		Actor:        actor,
		Action:       action,
		ResourceType: "case",
		ResourceID:   &resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.audit.Record(ctx, entry); err != nil {
		c.logger.Warn("Failed to record audit entry",
			zap.String("action", action),
			zap.Error(err))
	}
}
