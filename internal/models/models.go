package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// VisaCase is the aggregate root for a visa application tracked from intake
// to decision. Documents, checklist items, reminders and alerts are owned
// value collections embedded in the case row as JSONB; they have no identity
// or lifecycle outside their parent.
type VisaCase struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	CaseNumber           string         `json:"caseId" db:"case_number"`
	ClientID             uuid.UUID      `json:"clientId" db:"client_id"`
	ClientName           string         `json:"clientName" db:"client_name"`
	ClientEmail          string         `json:"clientEmail" db:"client_email"`
	VisaType             string         `json:"visaType" db:"visa_type"`
	Country              string         `json:"country" db:"country"`
	Status               CaseStatus     `json:"status" db:"status"`
	Priority             Priority       `json:"priority" db:"priority"`
	Locked               bool           `json:"locked" db:"locked"`
	LockedDate           *time.Time     `json:"lockedDate,omitempty" db:"locked_date"`
	ApplicationDate      time.Time      `json:"applicationDate" db:"application_date"`
	SubmissionDate       *time.Time     `json:"submissionDate,omitempty" db:"submission_date"`
	DecisionDate         *time.Time     `json:"decisionDate,omitempty" db:"decision_date"`
	ExpectedDecisionDate *time.Time     `json:"expectedDecisionDate,omitempty" db:"expected_decision_date"`
	Documents            DocumentList   `json:"documents" db:"documents"`
	ChecklistItems       ChecklistList  `json:"checklistItems" db:"checklist_items"`
	Reminders            ReminderList   `json:"reminders" db:"reminders"`
	Alerts               AlertList      `json:"alerts" db:"alerts"`
	Notes                pq.StringArray `json:"notes" db:"notes"`
	CreatedAt            time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time      `json:"updatedAt" db:"updated_at"`
}

// VisaDocument is a single entry in a case's document checklist.
type VisaDocument struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Uploaded   bool       `json:"uploaded"`
	UploadDate *time.Time `json:"uploadDate,omitempty"`
	FileURL    *string    `json:"fileUrl,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	Required   bool       `json:"required"`
	Notes      *string    `json:"notes,omitempty"`
}

// ChecklistItem is a manual operator task, not a document.
type ChecklistItem struct {
	Category      string     `json:"category"`
	Item          string     `json:"item"`
	Completed     bool       `json:"completed"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// Reminder is a time-triggered task. Once due it fires exactly once,
// producing an alert, and never reverts to incomplete.
type Reminder struct {
	Type          ReminderType `json:"type"`
	Message       string       `json:"message"`
	DueDate       time.Time    `json:"dueDate"`
	Completed     bool         `json:"completed"`
	CompletedDate *time.Time   `json:"completedDate,omitempty"`
}

// Alert is a system-synthesized notice requiring human attention. The list
// is append-only; only the resolved/resolvedDate fields mutate afterwards.
type Alert struct {
	Type          AlertType  `json:"type"`
	Message       string     `json:"message"`
	Severity      Severity   `json:"severity"`
	DocumentID    string     `json:"documentId,omitempty"`
	TriggeredDate time.Time  `json:"triggeredDate"`
	Resolved      bool       `json:"resolved"`
	ResolvedDate  *time.Time `json:"resolvedDate,omitempty"`
}

// TimelineEntry is an immutable audit-display event appended on every
// status transition. Entries are never rewritten.
type TimelineEntry struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CaseID      uuid.UUID `json:"caseId" db:"case_id"`
	Date        time.Time `json:"date" db:"date"`
	Status      string    `json:"status" db:"status"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Client is an agency client in the registry. Cases hold a denormalized
// name/email snapshot taken at creation time.
type Client struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Phone          *string   `json:"phone,omitempty" db:"phone"`
	PassportNumber *string   `json:"passportNumber,omitempty" db:"passport_number"`
	Nationality    *string   `json:"nationality,omitempty" db:"nationality"`
	Notes          *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Invoice is a billing document with a validated status lifecycle.
type Invoice struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	InvoiceNumber string          `json:"invoiceNumber" db:"invoice_number"`
	ClientID      uuid.UUID       `json:"clientId" db:"client_id"`
	CaseID        *uuid.UUID      `json:"caseId,omitempty" db:"case_id"`
	Items         InvoiceItemList `json:"items" db:"items"`
	Subtotal      int64           `json:"subtotal" db:"subtotal"`
	Tax           int64           `json:"tax" db:"tax"`
	Total         int64           `json:"total" db:"total"`
	Status        InvoiceStatus   `json:"status" db:"status"`
	IssueDate     time.Time       `json:"issueDate" db:"issue_date"`
	DueDate       time.Time       `json:"dueDate" db:"due_date"`
	PaidDate      *time.Time      `json:"paidDate,omitempty" db:"paid_date"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// InvoiceItem is a single billed line. Amounts are minor currency units.
type InvoiceItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Amount      int64  `json:"amount"`
}

// AuditLog is an append-only compliance record of a mutating operation.
type AuditLog struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Actor        string     `json:"actor" db:"actor"`
	Action       string     `json:"action" db:"action"`
	ResourceType string     `json:"resourceType" db:"resource_type"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty" db:"resource_id"`
	OldValues    JSONB      `json:"oldValues,omitempty" db:"old_values"`
	NewValues    JSONB      `json:"newValues,omitempty" db:"new_values"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// Enum types

type CaseStatus string

const (
	StatusDraft     CaseStatus = "draft"
	StatusSubmitted CaseStatus = "submitted"
	StatusInProcess CaseStatus = "in-process"
	StatusApproved  CaseStatus = "approved"
	StatusRejected  CaseStatus = "rejected"
)

// Terminal reports whether s is a decision state that can never change.
func (s CaseStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known case status.
func (s CaseStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusInProcess, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ReminderType string

const (
	ReminderDocumentDeadline ReminderType = "document-deadline"
	ReminderFollowUp         ReminderType = "follow-up"
	ReminderInterviewPrep    ReminderType = "interview-prep"
)

type AlertType string

const (
	AlertDeadlineWarning  AlertType = "deadline-warning"
	AlertDocumentExpired  AlertType = "expired"
	AlertDocumentExpiring AlertType = "expiring"
	AlertDocumentMissing  AlertType = "missing"
	AlertManual           AlertType = "manual"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityWarning, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceSent          InvoiceStatus = "sent"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoicePartiallyPaid InvoiceStatus = "partially-paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

// Custom types for database handling. The embedded case collections are
// stored as JSONB columns so that reminders and alerts can be rewritten in
// a single atomic UPDATE per case.

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), j)
	}
	return json.Unmarshal(bytes, j)
}

type DocumentList []VisaDocument

func (l DocumentList) Value() (driver.Value, error)  { return listValue(l) }
func (l *DocumentList) Scan(value interface{}) error { return listScan(value, l) }

type ChecklistList []ChecklistItem

func (l ChecklistList) Value() (driver.Value, error)  { return listValue(l) }
func (l *ChecklistList) Scan(value interface{}) error { return listScan(value, l) }

type ReminderList []Reminder

func (l ReminderList) Value() (driver.Value, error)  { return listValue(l) }
func (l *ReminderList) Scan(value interface{}) error { return listScan(value, l) }

type AlertList []Alert

func (l AlertList) Value() (driver.Value, error)  { return listValue(l) }
func (l *AlertList) Scan(value interface{}) error { return listScan(value, l) }

type InvoiceItemList []InvoiceItem

func (l InvoiceItemList) Value() (driver.Value, error)  { return listValue(l) }
func (l *InvoiceItemList) Scan(value interface{}) error { return listScan(value, l) }

func listValue(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

func listScan(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("unsupported scan type %T", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, dest)
}

// Request and response DTOs

type CreateCaseRequest struct {
	ClientID             uuid.UUID  `json:"clientId"`
	ClientName           string     `json:"clientName"`
	ClientEmail          string     `json:"clientEmail"`
	VisaType             string     `json:"visaType"`
	Country              string     `json:"country"`
	Priority             Priority   `json:"priority,omitempty"`
	ExpectedDecisionDate *time.Time `json:"expectedDecisionDate,omitempty"`
	Notes                []string   `json:"notes,omitempty"`
}

type UpdateCaseRequest struct {
	Country              *string    `json:"country,omitempty"`
	Priority             *Priority  `json:"priority,omitempty"`
	ExpectedDecisionDate *time.Time `json:"expectedDecisionDate,omitempty"`
}

type TransitionRequest struct {
	Status CaseStatus `json:"status"`
}

type AppendNoteRequest struct {
	Note string `json:"note"`
}

type UpdateDocumentRequest struct {
	Uploaded   *bool      `json:"uploaded,omitempty"`
	FileURL    *string    `json:"fileUrl,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

type CompleteChecklistItemRequest struct {
	Completed bool    `json:"completed"`
	Notes     *string `json:"notes,omitempty"`
}

type AppendAlertRequest struct {
	Type       AlertType `json:"type"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
}

type ResolveAlertRequest struct {
	Resolved bool `json:"resolved"`
}

type CreateClientRequest struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          *string `json:"phone,omitempty"`
	PassportNumber *string `json:"passportNumber,omitempty"`
	Nationality    *string `json:"nationality,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

type UpdateClientRequest struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	PassportNumber *string `json:"passportNumber,omitempty"`
	Nationality    *string `json:"nationality,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

type CreateInvoiceRequest struct {
	ClientID  uuid.UUID     `json:"clientId"`
	CaseID    *uuid.UUID    `json:"caseId,omitempty"`
	Items     []InvoiceItem `json:"items"`
	Tax       int64         `json:"tax"`
	DueDate   time.Time     `json:"dueDate"`
	IssueDate *time.Time    `json:"issueDate,omitempty"`
}

type InvoiceTransitionRequest struct {
	Status InvoiceStatus `json:"status"`
}

// CaseFilter narrows case list queries.
type CaseFilter struct {
	Statuses   []CaseStatus `json:"statuses,omitempty"`
	Priorities []Priority   `json:"priorities,omitempty"`
	VisaType   *string      `json:"visaType,omitempty"`
	Country    *string      `json:"country,omitempty"`
	ClientID   *uuid.UUID   `json:"clientId,omitempty"`
	Search     *string      `json:"search,omitempty"`
}

// AlertFilter narrows the flattened cross-case alert feed.
type AlertFilter struct {
	Resolved *bool      `json:"resolved,omitempty"`
	Severity *Severity  `json:"severity,omitempty"`
	CaseID   *uuid.UUID `json:"caseId,omitempty"`
}

// AlertFeedEntry is one alert annotated with its parent case for display.
type AlertFeedEntry struct {
	Alert
	AlertIndex int        `json:"alertIndex"`
	CaseID     uuid.UUID  `json:"caseId"`
	CaseNumber string     `json:"caseNumber"`
	ClientName string     `json:"clientName"`
	CaseStatus CaseStatus `json:"caseStatus"`
}

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	Actor        *string    `json:"actor,omitempty"`
	Action       *string    `json:"action,omitempty"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *uuid.UUID `json:"resourceId,omitempty"`
	Since        *time.Time `json:"since,omitempty"`
	Until        *time.Time `json:"until,omitempty"`
}
