package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"visadesk/internal/catalog"
	"visadesk/internal/models"
)

// AuditResult reports the outcome of one document completeness audit.
type AuditResult struct {
	GeneratedAlertCount int      `json:"generatedAlertCount"`
	ExpiredCount        int      `json:"expiredCount"`
	ExpiringCount       int      `json:"expiringCount"`
	MissingCount        int      `json:"missingCount"`
	Errors              []string `json:"errors,omitempty"`
}

// DocumentAuditor runs the agency-wide expiry scan and the per-case
// missing-document scan.
type DocumentAuditor struct {
	cases         CaseStore
	warningWindow time.Duration
	batchSize     int
	logger        *zap.Logger
}

// NewDocumentAuditor creates a document auditor. warningWindow is how far
// ahead of expiry the expiring alert fires; cases are read in batches of
// batchSize.
func NewDocumentAuditor(cases CaseStore, warningWindow time.Duration, batchSize int, logger *zap.Logger) *DocumentAuditor {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &DocumentAuditor{
		cases:         cases,
		warningWindow: warningWindow,
		batchSize:     batchSize,
		logger:        logger.Named("document_audit"),
	}
}

// Audit scans every case for expired, expiring and missing documents and
// appends the synthesized alerts. Before appending, an alert is checked
// against the case's active alerts on the (documentId, type) pair; an
// existing active match suppresses the new one. The check is not
// transactional, so concurrent audits can still double-insert.
func (a *DocumentAuditor) Audit(ctx context.Context, now time.Time) (*AuditResult, error) {
	result := &AuditResult{}

	scanned := 0
	var after uuid.UUID
	for {
		cases, err := a.cases.ListAll(ctx, after, a.batchSize)
		if err != nil {
			return nil, err
		}
		if len(cases) == 0 {
			break
		}
		scanned += len(cases)
		after = cases[len(cases)-1].ID

		for _, visaCase := range cases {
			added := a.auditCase(visaCase, now, result)
			if added == 0 {
				continue
			}

			if err := a.cases.SaveAlerts(ctx, visaCase.ID, visaCase.Alerts); err != nil {
				a.logger.Error("Failed to persist audit alerts for case",
					zap.String("case_number", visaCase.CaseNumber),
					zap.Error(err))
				result.Errors = append(result.Errors,
					fmt.Sprintf("case %s: %v", visaCase.CaseNumber, err))
				result.GeneratedAlertCount -= added
				continue
			}
		}

		if len(cases) < a.batchSize {
			break
		}
	}

	a.logger.Info("Document audit finished",
		zap.Int("cases_scanned", scanned),
		zap.Int("generated", result.GeneratedAlertCount),
		zap.Int("expired", result.ExpiredCount),
		zap.Int("expiring", result.ExpiringCount),
		zap.Int("missing", result.MissingCount),
		zap.Int("failures", len(result.Errors)))

	return result, nil
}

// auditCase appends synthesized alerts to the case in memory and returns
// how many were added.
func (a *DocumentAuditor) auditCase(visaCase *models.VisaCase, now time.Time, result *AuditResult) int {
	added := 0

	appendAlert := func(alert models.Alert) bool {
		if hasActiveAlert(visaCase.Alerts, alert.DocumentID, alert.Type) {
			return false
		}
		visaCase.Alerts = append(visaCase.Alerts, alert)
		result.GeneratedAlertCount++
		added++
		return true
	}

	// Expiry scan: documents without an expiry date are skipped.
	for _, doc := range visaCase.Documents {
		if doc.ExpiryDate == nil {
			continue
		}
		switch {
		case doc.ExpiryDate.Before(now):
			if appendAlert(models.Alert{
				Type:          models.AlertDocumentExpired,
				Message:       fmt.Sprintf("Document %q has expired", doc.Name),
				Severity:      models.SeverityHigh,
				DocumentID:    doc.Name,
				TriggeredDate: now,
			}) {
				result.ExpiredCount++
			}
		case !doc.ExpiryDate.After(now.Add(a.warningWindow)):
			if appendAlert(models.Alert{
				Type:          models.AlertDocumentExpiring,
				Message:       fmt.Sprintf("Document %q expires on %s", doc.Name, doc.ExpiryDate.Format("2006-01-02")),
				Severity:      models.SeverityMedium,
				DocumentID:    doc.Name,
				TriggeredDate: now,
			}) {
				result.ExpiringCount++
			}
		}
	}

	// Missing-document scan: required categories from the catalog must be
	// covered by at least one uploaded document of that category.
	for _, category := range catalog.RequiredDocumentTypes(visaCase.VisaType) {
		if categorySatisfied(visaCase.Documents, category) {
			continue
		}
		if appendAlert(models.Alert{
			Type:          models.AlertDocumentMissing,
			Message:       fmt.Sprintf("Required %s document is missing", category),
			Severity:      models.SeverityHigh,
			DocumentID:    fmt.Sprintf("MISSING-%s-%s", visaCase.CaseNumber, category),
			TriggeredDate: now,
		}) {
			result.MissingCount++
		}
	}

	return added
}

func categorySatisfied(docs models.DocumentList, category string) bool {
	for _, doc := range docs {
		if doc.Type == category && doc.Uploaded {
			return true
		}
	}
	return false
}

func hasActiveAlert(alerts models.AlertList, documentID string, alertType models.AlertType) bool {
	for _, alert := range alerts {
		if !alert.Resolved && alert.DocumentID == documentID && alert.Type == alertType {
			return true
		}
	}
	return false
}
