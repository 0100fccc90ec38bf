package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visadesk/internal/models"
)

type fakeCaseStore struct {
	cases map[uuid.UUID]*models.VisaCase
}

func (f *fakeCaseStore) GetByID(_ context.Context, id uuid.UUID) (*models.VisaCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	cp.Alerts = append(models.AlertList{}, c.Alerts...)
	return &cp, nil
}

func (f *fakeCaseStore) SaveAlerts(_ context.Context, id uuid.UUID, alerts models.AlertList) error {
	f.cases[id].Alerts = alerts
	return nil
}

func (f *fakeCaseStore) AlertFeed(_ context.Context, filter *models.AlertFilter) ([]models.AlertFeedEntry, error) {
	var entries []models.AlertFeedEntry
	for _, c := range f.cases {
		for i, alert := range c.Alerts {
			if filter != nil {
				if filter.Resolved != nil && alert.Resolved != *filter.Resolved {
					continue
				}
				if filter.Severity != nil && alert.Severity != *filter.Severity {
					continue
				}
				if filter.CaseID != nil && c.ID != *filter.CaseID {
					continue
				}
			}
			entries = append(entries, models.AlertFeedEntry{
				Alert:      alert,
				AlertIndex: i,
				CaseID:     c.ID,
				CaseNumber: c.CaseNumber,
				ClientName: c.ClientName,
				CaseStatus: c.Status,
			})
		}
	}
	return entries, nil
}

func newTestManager() (*Manager, *fakeCaseStore, *models.VisaCase) {
	store := &fakeCaseStore{cases: make(map[uuid.UUID]*models.VisaCase)}
	c := &models.VisaCase{
		ID:         uuid.New(),
		CaseNumber: "VC-2025-0001",
		ClientName: "Ada Example",
		Status:     models.StatusInProcess,
		Alerts:     models.AlertList{},
	}
	store.cases[c.ID] = c
	return NewManager(store, zap.NewNop()), store, c
}

func TestManager_Append(t *testing.T) {
	t.Run("appends with server-side trigger date and unresolved state", func(t *testing.T) {
		mgr, store, c := newTestManager()

		updated, err := mgr.Append(context.Background(), c.ID, &models.AppendAlertRequest{
			Type:     models.AlertManual,
			Message:  "Client requested expedited handling",
			Severity: models.SeverityHigh,
		})
		require.NoError(t, err)
		require.Len(t, updated.Alerts, 1)

		alert := store.cases[c.ID].Alerts[0]
		assert.Equal(t, models.AlertManual, alert.Type)
		assert.Equal(t, models.SeverityHigh, alert.Severity)
		assert.False(t, alert.Resolved)
		assert.Nil(t, alert.ResolvedDate)
		assert.WithinDuration(t, time.Now(), alert.TriggeredDate, time.Minute)
	})

	t.Run("defaults severity to medium", func(t *testing.T) {
		mgr, store, c := newTestManager()

		_, err := mgr.Append(context.Background(), c.ID, &models.AppendAlertRequest{
			Type:    models.AlertManual,
			Message: "note",
		})
		require.NoError(t, err)
		assert.Equal(t, models.SeverityMedium, store.cases[c.ID].Alerts[0].Severity)
	})

	t.Run("rejects empty type and message", func(t *testing.T) {
		mgr, _, c := newTestManager()

		_, err := mgr.Append(context.Background(), c.ID, &models.AppendAlertRequest{Message: "x"})
		assert.True(t, models.IsValidation(err))

		_, err = mgr.Append(context.Background(), c.ID, &models.AppendAlertRequest{Type: models.AlertManual})
		assert.True(t, models.IsValidation(err))
	})

	t.Run("missing case returns not found", func(t *testing.T) {
		mgr, _, _ := newTestManager()
		_, err := mgr.Append(context.Background(), uuid.New(), &models.AppendAlertRequest{
			Type: models.AlertManual, Message: "x",
		})
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestManager_Resolve(t *testing.T) {
	seedAlert := func(c *models.VisaCase) {
		c.Alerts = append(c.Alerts, models.Alert{
			Type:          models.AlertDeadlineWarning,
			Message:       "Reminder: follow up",
			Severity:      models.SeverityWarning,
			TriggeredDate: time.Now().UTC().Add(-time.Hour),
		})
	}

	t.Run("resolving stamps the resolved date", func(t *testing.T) {
		mgr, store, c := newTestManager()
		seedAlert(c)

		updated, err := mgr.Resolve(context.Background(), c.ID, 0, true)
		require.NoError(t, err)
		assert.True(t, updated.Alerts[0].Resolved)
		require.NotNil(t, updated.Alerts[0].ResolvedDate)
		assert.True(t, store.cases[c.ID].Alerts[0].Resolved)
	})

	t.Run("un-resolving keeps the last resolved date", func(t *testing.T) {
		mgr, _, c := newTestManager()
		seedAlert(c)

		resolved, err := mgr.Resolve(context.Background(), c.ID, 0, true)
		require.NoError(t, err)
		firstDate := *resolved.Alerts[0].ResolvedDate

		reopened, err := mgr.Resolve(context.Background(), c.ID, 0, false)
		require.NoError(t, err)
		assert.False(t, reopened.Alerts[0].Resolved)
		require.NotNil(t, reopened.Alerts[0].ResolvedDate)
		assert.Equal(t, firstDate, *reopened.Alerts[0].ResolvedDate)
	})

	t.Run("re-resolving does not move the resolved date", func(t *testing.T) {
		mgr, _, c := newTestManager()
		seedAlert(c)

		first, err := mgr.Resolve(context.Background(), c.ID, 0, true)
		require.NoError(t, err)
		firstDate := *first.Alerts[0].ResolvedDate

		second, err := mgr.Resolve(context.Background(), c.ID, 0, true)
		require.NoError(t, err)
		assert.Equal(t, firstDate, *second.Alerts[0].ResolvedDate)
	})

	t.Run("out of range index fails", func(t *testing.T) {
		mgr, _, c := newTestManager()
		seedAlert(c)

		_, err := mgr.Resolve(context.Background(), c.ID, 1, true)
		assert.True(t, errors.Is(err, models.ErrIndexOutOfRange))

		_, err = mgr.Resolve(context.Background(), c.ID, -1, true)
		assert.True(t, errors.Is(err, models.ErrIndexOutOfRange))
	})
}

func TestManager_Query(t *testing.T) {
	mgr, store, c := newTestManager()
	c.Alerts = models.AlertList{
		{Type: models.AlertManual, Message: "a", Severity: models.SeverityHigh, TriggeredDate: time.Now()},
		{Type: models.AlertDocumentExpired, Message: "b", Severity: models.SeverityHigh, TriggeredDate: time.Now(), Resolved: true},
	}

	other := &models.VisaCase{
		ID:         uuid.New(),
		CaseNumber: "VC-2025-0002",
		Status:     models.StatusDraft,
		Alerts: models.AlertList{
			{Type: models.AlertDocumentMissing, Message: "c", Severity: models.SeverityMedium, TriggeredDate: time.Now()},
		},
	}
	store.cases[other.ID] = other

	unresolved := false
	entries, err := mgr.Query(context.Background(), &models.AlertFilter{Resolved: &unresolved})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	high := models.SeverityHigh
	entries, err = mgr.Query(context.Background(), &models.AlertFilter{Severity: &high})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = mgr.Query(context.Background(), &models.AlertFilter{CaseID: &other.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "VC-2025-0002", entries[0].CaseNumber)
	assert.Equal(t, 0, entries[0].AlertIndex)
}
