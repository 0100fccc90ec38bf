// Package catalog maps a visa type to the documents, checklist items and
// reminders a new case starts with. The tables are fixed in code; lookups
// are pure and safe to call any number of times. Unknown visa types fall
// back to the base sets, which is deliberate rather than an error.
package catalog

import (
	"time"

	"visadesk/internal/models"
)

// Known visa type keys. Matching is exact and case-sensitive.
const (
	VisaTourist  = "tourist"
	VisaBusiness = "business"
	VisaStudent  = "student"
	VisaWork     = "work"
)

// Reminder offsets from case creation. The offsets are the same for every
// visa type; kept that way for compatibility with existing data.
const (
	FollowUpOffset         = 14 * 24 * time.Hour
	InterviewPrepOffset    = 21 * 24 * time.Hour
	DocumentDeadlineOffset = 30 * 24 * time.Hour
)

var baseDocuments = []models.VisaDocument{
	{Name: "Passport copy", Type: "identity", Required: true},
	{Name: "Passport photographs", Type: "photo", Required: true},
	{Name: "Completed application form", Type: "application-form", Required: true},
}

var typeDocuments = map[string][]models.VisaDocument{
	VisaTourist: {
		{Name: "Travel itinerary", Type: "itinerary", Required: true},
		{Name: "Hotel booking confirmation", Type: "accommodation", Required: true},
		{Name: "Bank statements (3 months)", Type: "financial", Required: true},
		{Name: "Travel insurance certificate", Type: "insurance", Required: true},
	},
	VisaBusiness: {
		{Name: "Invitation letter", Type: "invitation", Required: true},
		{Name: "Company registration certificate", Type: "company", Required: true},
		{Name: "Bank statements (6 months)", Type: "financial", Required: true},
		{Name: "Employment verification letter", Type: "employment", Required: true},
	},
	VisaStudent: {
		{Name: "Admission letter", Type: "admission", Required: true},
		{Name: "Academic transcripts", Type: "academic", Required: true},
		{Name: "Proof of funds", Type: "financial", Required: true},
		{Name: "Language test results", Type: "language", Required: false},
	},
	VisaWork: {
		{Name: "Employment contract", Type: "contract", Required: true},
		{Name: "Professional qualifications", Type: "qualifications", Required: true},
		{Name: "Bank statements (6 months)", Type: "financial", Required: true},
		{Name: "Police clearance certificate", Type: "clearance", Required: true},
	},
}

var baseChecklist = []models.ChecklistItem{
	{Category: "intake", Item: "Verify passport validity (6+ months remaining)"},
	{Category: "intake", Item: "Collect and verify client contact details"},
	{Category: "forms", Item: "Review application form for completeness"},
	{Category: "billing", Item: "Issue service invoice"},
}

var typeChecklist = map[string][]models.ChecklistItem{
	VisaTourist: {
		{Category: "travel", Item: "Confirm return travel booking"},
		{Category: "travel", Item: "Verify travel insurance coverage dates"},
	},
	VisaBusiness: {
		{Category: "business", Item: "Verify invitation letter against host company registry"},
		{Category: "business", Item: "Confirm employer sponsorship details"},
	},
	VisaStudent: {
		{Category: "education", Item: "Verify institution accreditation"},
		{Category: "education", Item: "Confirm tuition payment evidence"},
	},
	VisaWork: {
		{Category: "employment", Item: "Verify job offer and contract terms"},
		{Category: "employment", Item: "Check work permit quota availability"},
	},
}

// StandardDocuments returns the document checklist a case of the given visa
// type starts with. Every entry starts not uploaded.
func StandardDocuments(visaType string) []models.VisaDocument {
	return concatDocuments(baseDocuments, typeDocuments[visaType])
}

// ChecklistItems returns the operator checklist for the given visa type.
// Every item starts incomplete.
func ChecklistItems(visaType string) []models.ChecklistItem {
	out := make([]models.ChecklistItem, 0, len(baseChecklist)+len(typeChecklist[visaType]))
	out = append(out, baseChecklist...)
	out = append(out, typeChecklist[visaType]...)
	return out
}

// StandardReminders returns the reminder schedule for the given visa type,
// with due dates computed from now. There is no base reminder set; unknown
// visa types start with no reminders.
func StandardReminders(visaType string, now time.Time) []models.Reminder {
	if _, known := typeDocuments[visaType]; !known {
		return nil
	}
	return []models.Reminder{
		{
			Type:    models.ReminderFollowUp,
			Message: "Follow up with client on outstanding documents",
			DueDate: now.Add(FollowUpOffset),
		},
		{
			Type:    models.ReminderInterviewPrep,
			Message: "Schedule interview preparation session",
			DueDate: now.Add(InterviewPrepOffset),
		},
		{
			Type:    models.ReminderDocumentDeadline,
			Message: "Document collection deadline",
			DueDate: now.Add(DocumentDeadlineOffset),
		},
	}
}

// RequiredDocumentTypes returns the distinct required document categories
// for a visa type, used by the completeness audit.
func RequiredDocumentTypes(visaType string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, doc := range StandardDocuments(visaType) {
		if doc.Required && !seen[doc.Type] {
			seen[doc.Type] = true
			out = append(out, doc.Type)
		}
	}
	return out
}

func concatDocuments(base, extra []models.VisaDocument) []models.VisaDocument {
	out := make([]models.VisaDocument, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}
