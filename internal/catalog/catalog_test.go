package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visadesk/internal/models"
)

func TestStandardDocuments(t *testing.T) {
	t.Run("tourist gets base plus type-specific documents", func(t *testing.T) {
		docs := StandardDocuments(VisaTourist)
		require.Len(t, docs, 7)

		// Base documents come first.
		assert.Equal(t, "identity", docs[0].Type)
		assert.Equal(t, "photo", docs[1].Type)
		assert.Equal(t, "application-form", docs[2].Type)

		for _, doc := range docs {
			assert.False(t, doc.Uploaded, "documents must start not uploaded")
			assert.Nil(t, doc.UploadDate)
		}
	})

	t.Run("unknown visa type falls back to base set", func(t *testing.T) {
		docs := StandardDocuments("diplomatic")
		require.Len(t, docs, 3)
		assert.Equal(t, "identity", docs[0].Type)
	})

	t.Run("matching is case-sensitive", func(t *testing.T) {
		assert.Len(t, StandardDocuments("Tourist"), 3)
		assert.Len(t, StandardDocuments("tourist"), 7)
	})

	t.Run("repeated calls yield identical output", func(t *testing.T) {
		for _, vt := range []string{VisaTourist, VisaBusiness, VisaStudent, VisaWork, "unknown"} {
			assert.Equal(t, StandardDocuments(vt), StandardDocuments(vt))
		}
	})

	t.Run("business includes a required financial document", func(t *testing.T) {
		var found bool
		for _, doc := range StandardDocuments(VisaBusiness) {
			if doc.Type == "financial" && doc.Required {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestChecklistItems(t *testing.T) {
	items := ChecklistItems(VisaStudent)
	require.NotEmpty(t, items)
	for _, item := range items {
		assert.False(t, item.Completed, "checklist items must start incomplete")
		assert.Nil(t, item.CompletedDate)
	}

	base := ChecklistItems("unknown")
	assert.Len(t, base, len(baseChecklist))
	assert.Equal(t, len(base)+2, len(items))
}

func TestStandardReminders(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("known types get the fixed schedule", func(t *testing.T) {
		reminders := StandardReminders(VisaTourist, now)
		require.Len(t, reminders, 3)

		assert.Equal(t, models.ReminderFollowUp, reminders[0].Type)
		assert.Equal(t, now.Add(14*24*time.Hour), reminders[0].DueDate)
		assert.Equal(t, models.ReminderInterviewPrep, reminders[1].Type)
		assert.Equal(t, now.Add(21*24*time.Hour), reminders[1].DueDate)
		assert.Equal(t, models.ReminderDocumentDeadline, reminders[2].Type)
		assert.Equal(t, now.Add(30*24*time.Hour), reminders[2].DueDate)

		for _, rem := range reminders {
			assert.False(t, rem.Completed)
		}
	})

	t.Run("offsets are identical across visa types", func(t *testing.T) {
		tourist := StandardReminders(VisaTourist, now)
		work := StandardReminders(VisaWork, now)
		require.Equal(t, len(tourist), len(work))
		for i := range tourist {
			assert.Equal(t, tourist[i].DueDate, work[i].DueDate)
		}
	})

	t.Run("unknown visa type gets no reminders", func(t *testing.T) {
		assert.Empty(t, StandardReminders("transit", now))
	})
}

func TestRequiredDocumentTypes(t *testing.T) {
	types := RequiredDocumentTypes(VisaBusiness)
	assert.Contains(t, types, "financial")
	assert.Contains(t, types, "identity")

	// The optional language test must not appear for students.
	assert.NotContains(t, RequiredDocumentTypes(VisaStudent), "language")
}
