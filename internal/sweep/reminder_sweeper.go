// Package sweep contains the batch passes that run over all cases: the
// reminder sweep and the document completeness audit.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

// CaseStore is the persistence surface the sweeps need. The list methods
// page by case id keyset (cases with id greater than after, in id order)
// so a sweep that mutates the rows it just read never skips cases.
type CaseStore interface {
	ListWithDueReminders(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*models.VisaCase, error)
	ListAll(ctx context.Context, after uuid.UUID, limit int) ([]*models.VisaCase, error)
	SaveReminderSweep(ctx context.Context, id uuid.UUID, reminders models.ReminderList, alerts models.AlertList) error
	SaveAlerts(ctx context.Context, id uuid.UUID, alerts models.AlertList) error
}

const defaultBatchSize = 500

// TriggeredReminder identifies one fired reminder for observability.
type TriggeredReminder struct {
	CaseID     uuid.UUID           `json:"caseId"`
	CaseNumber string              `json:"caseNumber"`
	Type       models.ReminderType `json:"type"`
	Message    string              `json:"message"`
	DueDate    time.Time           `json:"dueDate"`
}

// SweepResult reports the outcome of one reminder sweep.
type SweepResult struct {
	TriggeredCount     int                 `json:"triggeredCount"`
	TriggeredReminders []TriggeredReminder `json:"triggeredReminders"`
	Errors             []string            `json:"errors,omitempty"`
}

// ReminderSweeper fires due reminders across all cases.
type ReminderSweeper struct {
	cases     CaseStore
	batchSize int
	logger    *zap.Logger
}

// NewReminderSweeper creates a reminder sweeper reading cases in batches
// of batchSize.
func NewReminderSweeper(cases CaseStore, batchSize int, logger *zap.Logger) *ReminderSweeper {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ReminderSweeper{cases: cases, batchSize: batchSize, logger: logger.Named("reminder_sweep")}
}

// Sweep completes every due, incomplete reminder and appends one alert per
// fired reminder. A reminder fires at most once: completion and the alert
// are written together in a single update per case, so an interrupted
// sweep either leaves the reminder pending for the next run or commits
// both. One case failing to persist does not abort the rest of the batch.
func (s *ReminderSweeper) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{TriggeredReminders: []TriggeredReminder{}}

	scanned := 0
	var after uuid.UUID
	for {
		dueCases, err := s.cases.ListWithDueReminders(ctx, now, after, s.batchSize)
		if err != nil {
			return nil, err
		}
		if len(dueCases) == 0 {
			break
		}
		scanned += len(dueCases)
		after = dueCases[len(dueCases)-1].ID

		for _, visaCase := range dueCases {
			triggered := fireDueReminders(visaCase, now)
			if len(triggered) == 0 {
				continue
			}

			if err := s.cases.SaveReminderSweep(ctx, visaCase.ID, visaCase.Reminders, visaCase.Alerts); err != nil {
				s.logger.Error("Failed to persist reminder sweep for case",
					zap.String("case_number", visaCase.CaseNumber),
					zap.Error(err))
				result.Errors = append(result.Errors,
					fmt.Sprintf("case %s: %v", visaCase.CaseNumber, err))
				continue
			}

			result.TriggeredCount += len(triggered)
			result.TriggeredReminders = append(result.TriggeredReminders, triggered...)
		}

		if len(dueCases) < s.batchSize {
			break
		}
	}

	s.logger.Info("Reminder sweep finished",
		zap.Int("cases_scanned", scanned),
		zap.Int("triggered", result.TriggeredCount),
		zap.Int("failures", len(result.Errors)))

	return result, nil
}

// fireDueReminders mutates the case in memory: due reminders are marked
// complete and a deadline-warning alert is appended for each.
func fireDueReminders(visaCase *models.VisaCase, now time.Time) []TriggeredReminder {
	var triggered []TriggeredReminder

	for i := range visaCase.Reminders {
		reminder := &visaCase.Reminders[i]
		if reminder.Completed || reminder.DueDate.After(now) {
			continue
		}

		completedAt := now
		reminder.Completed = true
		reminder.CompletedDate = &completedAt

		visaCase.Alerts = append(visaCase.Alerts, models.Alert{
			Type:          models.AlertDeadlineWarning,
			Message:       fmt.Sprintf("Reminder: %s", reminder.Message),
			Severity:      models.SeverityWarning,
			TriggeredDate: now,
			Resolved:      false,
		})

		triggered = append(triggered, TriggeredReminder{
			CaseID:     visaCase.ID,
			CaseNumber: visaCase.CaseNumber,
			Type:       reminder.Type,
			Message:    reminder.Message,
			DueDate:    reminder.DueDate,
		})
	}

	return triggered
}
