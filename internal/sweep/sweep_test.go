package sweep

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

// fakeStore keeps committed state separate from the copies it hands out,
// so an uncommitted in-memory mutation never leaks back into the store.
type fakeStore struct {
	cases      map[uuid.UUID]*models.VisaCase
	failFor    map[uuid.UUID]error
	sweepSaves int
	alertSaves int
	listCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cases:   make(map[uuid.UUID]*models.VisaCase),
		failFor: make(map[uuid.UUID]error),
	}
}

func (f *fakeStore) add(c *models.VisaCase) {
	f.cases[c.ID] = c
}

func (f *fakeStore) snapshot(c *models.VisaCase) *models.VisaCase {
	cp := *c
	cp.Documents = append(models.DocumentList{}, c.Documents...)
	cp.Reminders = append(models.ReminderList{}, c.Reminders...)
	cp.Alerts = append(models.AlertList{}, c.Alerts...)
	return &cp
}

// page mimics the repository's keyset paging: id order, ids greater than
// after, at most limit matches.
func (f *fakeStore) page(after uuid.UUID, limit int, match func(*models.VisaCase) bool) []*models.VisaCase {
	f.listCalls++
	ids := make([]uuid.UUID, 0, len(f.cases))
	for id := range f.cases {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var out []*models.VisaCase
	for _, id := range ids {
		if bytes.Compare(id[:], after[:]) <= 0 {
			continue
		}
		if !match(f.cases[id]) {
			continue
		}
		out = append(out, f.snapshot(f.cases[id]))
		if len(out) == limit {
			break
		}
	}
	return out
}

func (f *fakeStore) ListWithDueReminders(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]*models.VisaCase, error) {
	return f.page(after, limit, func(c *models.VisaCase) bool {
		for _, r := range c.Reminders {
			if !r.Completed && !r.DueDate.After(now) {
				return true
			}
		}
		return false
	}), nil
}

func (f *fakeStore) ListAll(_ context.Context, after uuid.UUID, limit int) ([]*models.VisaCase, error) {
	return f.page(after, limit, func(*models.VisaCase) bool { return true }), nil
}

func (f *fakeStore) SaveReminderSweep(_ context.Context, id uuid.UUID, reminders models.ReminderList, alerts models.AlertList) error {
	if err := f.failFor[id]; err != nil {
		return err
	}
	f.sweepSaves++
	f.cases[id].Reminders = reminders
	f.cases[id].Alerts = alerts
	return nil
}

func (f *fakeStore) SaveAlerts(_ context.Context, id uuid.UUID, alerts models.AlertList) error {
	if err := f.failFor[id]; err != nil {
		return err
	}
	f.alertSaves++
	f.cases[id].Alerts = alerts
	return nil
}

func caseWithReminders(number string, reminders ...models.Reminder) *models.VisaCase {
	return &models.VisaCase{
		ID:         uuid.New(),
		CaseNumber: number,
		VisaType:   "tourist",
		Status:     models.StatusInProcess,
		Reminders:  models.ReminderList(reminders),
		Alerts:     models.AlertList{},
	}
}

func TestReminderSweeper_Sweep(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("fires due reminders and appends one alert each", func(t *testing.T) {
		store := newFakeStore()
		c := caseWithReminders("VC-2025-0001",
			models.Reminder{Type: models.ReminderFollowUp, Message: "Follow up with embassy", DueDate: now.Add(-time.Hour)},
			models.Reminder{Type: models.ReminderInterviewPrep, Message: "Prepare interview", DueDate: now.Add(48 * time.Hour)},
		)
		store.add(c)

		sweeper := NewReminderSweeper(store, 0, zap.NewNop())
		result, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)

		assert.Equal(t, 1, result.TriggeredCount)
		require.Len(t, result.TriggeredReminders, 1)
		assert.Equal(t, "VC-2025-0001", result.TriggeredReminders[0].CaseNumber)
		assert.Equal(t, models.ReminderFollowUp, result.TriggeredReminders[0].Type)

		saved := store.cases[c.ID]
		assert.True(t, saved.Reminders[0].Completed)
		require.NotNil(t, saved.Reminders[0].CompletedDate)
		assert.False(t, saved.Reminders[1].Completed)

		require.Len(t, saved.Alerts, 1)
		assert.Equal(t, models.AlertDeadlineWarning, saved.Alerts[0].Type)
		assert.Equal(t, "Reminder: Follow up with embassy", saved.Alerts[0].Message)
		assert.Equal(t, models.SeverityWarning, saved.Alerts[0].Severity)
		assert.False(t, saved.Alerts[0].Resolved)

		// Both collections land in one write per case.
		assert.Equal(t, 1, store.sweepSaves)
	})

	t.Run("immediate re-run triggers nothing", func(t *testing.T) {
		store := newFakeStore()
		c := caseWithReminders("VC-2025-0001",
			models.Reminder{Type: models.ReminderFollowUp, Message: "Follow up", DueDate: now.Add(-time.Hour)},
			models.Reminder{Type: models.ReminderDocumentDeadline, Message: "Collect documents", DueDate: now.Add(-time.Minute)},
		)
		store.add(c)

		sweeper := NewReminderSweeper(store, 0, zap.NewNop())
		first, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 2, first.TriggeredCount)

		second, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 0, second.TriggeredCount)
		assert.Len(t, store.cases[c.ID].Alerts, 2)
	})

	t.Run("one failing case does not abort the batch", func(t *testing.T) {
		store := newFakeStore()
		broken := caseWithReminders("VC-2025-0001",
			models.Reminder{Type: models.ReminderFollowUp, Message: "Follow up", DueDate: now.Add(-time.Hour)})
		healthy := caseWithReminders("VC-2025-0002",
			models.Reminder{Type: models.ReminderFollowUp, Message: "Follow up", DueDate: now.Add(-time.Hour)})
		store.add(broken)
		store.add(healthy)
		store.failFor[broken.ID] = errors.New("connection reset")

		sweeper := NewReminderSweeper(store, 0, zap.NewNop())
		result, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)

		assert.Equal(t, 1, result.TriggeredCount)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "VC-2025-0001")

		// The failed case's reminder stays pending and refires next sweep.
		assert.False(t, store.cases[broken.ID].Reminders[0].Completed)
		assert.Empty(t, store.cases[broken.ID].Alerts)

		delete(store.failFor, broken.ID)
		retry, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 1, retry.TriggeredCount)
	})

	t.Run("sweeps every case across batches", func(t *testing.T) {
		store := newFakeStore()
		for i := 0; i < 5; i++ {
			store.add(caseWithReminders(fmt.Sprintf("VC-2025-%04d", i+1),
				models.Reminder{Type: models.ReminderFollowUp, Message: "Follow up", DueDate: now.Add(-time.Hour)}))
		}

		sweeper := NewReminderSweeper(store, 2, zap.NewNop())
		result, err := sweeper.Sweep(context.Background(), now)
		require.NoError(t, err)

		assert.Equal(t, 5, result.TriggeredCount)
		assert.Equal(t, 5, store.sweepSaves)
		// Pages of 2, 2 and 1.
		assert.Equal(t, 3, store.listCalls)
	})
}

func TestDocumentAuditor_Audit(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	t.Run("missing required business document", func(t *testing.T) {
		store := newFakeStore()
		c := &models.VisaCase{
			ID:         uuid.New(),
			CaseNumber: "VC-2025-0003",
			VisaType:   "business",
			Status:     models.StatusInProcess,
			Documents: models.DocumentList{
				{Name: "Bank statements", Type: "financial", Required: true, Uploaded: false},
			},
			Alerts: models.AlertList{},
		}
		store.add(c)

		auditor := NewDocumentAuditor(store, window, 0, zap.NewNop())
		result, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, result.MissingCount, result.GeneratedAlertCount)

		var missing []models.Alert
		for _, alert := range store.cases[c.ID].Alerts {
			if alert.Type == models.AlertDocumentMissing && alert.DocumentID == "MISSING-VC-2025-0003-financial" {
				missing = append(missing, alert)
			}
		}
		require.Len(t, missing, 1)
		assert.Equal(t, models.SeverityHigh, missing[0].Severity)

		// Immediate re-run must not duplicate the pair.
		again, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 0, again.GeneratedAlertCount)
	})

	t.Run("uploaded document satisfies its category", func(t *testing.T) {
		store := newFakeStore()
		c := &models.VisaCase{
			ID:         uuid.New(),
			CaseNumber: "VC-2025-0004",
			VisaType:   "tourist",
			Status:     models.StatusInProcess,
			Alerts:     models.AlertList{},
		}
		for _, category := range []string{"identity", "photo", "application-form", "itinerary", "accommodation", "financial", "insurance"} {
			c.Documents = append(c.Documents, models.VisaDocument{
				Name: category, Type: category, Required: true, Uploaded: true,
			})
		}
		store.add(c)

		auditor := NewDocumentAuditor(store, window, 0, zap.NewNop())
		result, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 0, result.MissingCount)
	})

	t.Run("expiry scan classifies expired and expiring", func(t *testing.T) {
		store := newFakeStore()
		expired := now.Add(-24 * time.Hour)
		expiring := now.Add(3 * 24 * time.Hour)
		farOut := now.Add(60 * 24 * time.Hour)
		c := &models.VisaCase{
			ID:         uuid.New(),
			CaseNumber: "VC-2025-0005",
			VisaType:   "unknown",
			Status:     models.StatusInProcess,
			Documents: models.DocumentList{
				{Name: "Passport copy", Type: "identity", Uploaded: true, ExpiryDate: &expired},
				{Name: "Travel insurance", Type: "insurance", Uploaded: true, ExpiryDate: &expiring},
				{Name: "Bank statements", Type: "financial", Uploaded: true, ExpiryDate: &farOut},
				{Name: "Photograph", Type: "photo", Uploaded: true},
			},
			Alerts: models.AlertList{},
		}
		store.add(c)

		auditor := NewDocumentAuditor(store, window, 0, zap.NewNop())
		result, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 1, result.ExpiredCount)
		assert.Equal(t, 1, result.ExpiringCount)

		alerts := store.cases[c.ID].Alerts
		require.Len(t, alerts, 2)
		assert.Equal(t, models.AlertDocumentExpired, alerts[0].Type)
		assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
		assert.Equal(t, "Passport copy", alerts[0].DocumentID)
		assert.Equal(t, models.AlertDocumentExpiring, alerts[1].Type)
		assert.Equal(t, models.SeverityMedium, alerts[1].Severity)
	})

	t.Run("resolved alerts do not suppress new ones", func(t *testing.T) {
		store := newFakeStore()
		resolvedAt := now.Add(-time.Hour)
		c := &models.VisaCase{
			ID:         uuid.New(),
			CaseNumber: "VC-2025-0006",
			VisaType:   "business",
			Status:     models.StatusInProcess,
			Documents:  models.DocumentList{},
			Alerts: models.AlertList{
				{
					Type:          models.AlertDocumentMissing,
					Message:       "Required financial document is missing",
					Severity:      models.SeverityHigh,
					DocumentID:    "MISSING-VC-2025-0006-financial",
					TriggeredDate: now.Add(-48 * time.Hour),
					Resolved:      true,
					ResolvedDate:  &resolvedAt,
				},
			},
		}
		store.add(c)

		auditor := NewDocumentAuditor(store, window, 0, zap.NewNop())
		result, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.MissingCount, 1)

		var active int
		for _, alert := range store.cases[c.ID].Alerts {
			if alert.DocumentID == "MISSING-VC-2025-0006-financial" && !alert.Resolved {
				active++
			}
		}
		assert.Equal(t, 1, active)
	})

	t.Run("persistence failure discards that case's alerts", func(t *testing.T) {
		store := newFakeStore()
		c := &models.VisaCase{
			ID:         uuid.New(),
			CaseNumber: "VC-2025-0007",
			VisaType:   "business",
			Status:     models.StatusInProcess,
			Documents:  models.DocumentList{},
			Alerts:     models.AlertList{},
		}
		store.add(c)
		store.failFor[c.ID] = errors.New("write conflict")

		auditor := NewDocumentAuditor(store, window, 0, zap.NewNop())
		result, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 0, result.GeneratedAlertCount)
		require.Len(t, result.Errors, 1)
		assert.Empty(t, store.cases[c.ID].Alerts)
	})

	t.Run("audits every case across batches", func(t *testing.T) {
		store := newFakeStore()
		for i := 0; i < 3; i++ {
			store.add(&models.VisaCase{
				ID:         uuid.New(),
				CaseNumber: fmt.Sprintf("VC-2025-%04d", i+1),
				VisaType:   "business",
				Status:     models.StatusInProcess,
				Documents:  models.DocumentList{},
				Alerts:     models.AlertList{},
			})
		}

		auditor := NewDocumentAuditor(store, window, 1, zap.NewNop())
		result, err := auditor.Audit(context.Background(), now)
		require.NoError(t, err)

		// Every case is missing all seven required business categories.
		assert.Equal(t, 3*7, result.MissingCount)
		assert.Equal(t, 3, store.alertSaves)
		// Three full pages plus the empty page that ends the scan.
		assert.Equal(t, 4, store.listCalls)
	})
}
