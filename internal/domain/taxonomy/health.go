package taxonomy

import (
	"time"

	"github.com/google/uuid"
)

// HealthSeverity grades a health issue
type HealthSeverity string

const (
	HealthCritical HealthSeverity = "critical"
	HealthWarning  HealthSeverity = "warning"
)

// Health issue codes
const (
	IssueNoFieldDefinitions = "no_field_definitions"
	IssueNoRequiredFields   = "no_required_fields"
	IssueStaleSync          = "stale_sync"
	IssueEmptyValueList     = "empty_value_list"
)

// HealthIssue is one finding of a health report
type HealthIssue struct {
	Code     string         `json:"code"`
	Severity HealthSeverity `json:"severity"`
	Message  string         `json:"message"`
}

// HealthReport summarizes how usable an account's cached schema is
type HealthReport struct {
	AccountID    uuid.UUID     `json:"account_id"`
	Score        int           `json:"score"`
	Issues       []HealthIssue `json:"issues"`
	Stats        EntryStats    `json:"stats"`
	EmptyLists   []string      `json:"empty_lists,omitempty"`
	GeneratedAt  time.Time     `json:"generated_at"`
	LastSyncedAt *time.Time    `json:"last_synced_at,omitempty"`
}

// Score deductions
const (
	deductNoRequired   = 40
	deductStale        = 30
	deductPerEmptyList = 10
	maxEmptyListDeduct = 30
)

// BuildHealthReport scores stats. emptyLists are keys of LIST attributes
// without any active value.
func BuildHealthReport(accountID uuid.UUID, stats EntryStats, emptyLists []string, now time.Time, freshness time.Duration) *HealthReport {
	report := &HealthReport{
		AccountID:    accountID,
		Score:        100,
		Issues:       []HealthIssue{},
		Stats:        stats,
		EmptyLists:   emptyLists,
		GeneratedAt:  now,
		LastSyncedAt: stats.LastSyncedAt,
	}

	if stats.Attributes == 0 {
		report.Score = 0
		report.Issues = append(report.Issues, HealthIssue{
			Code:     IssueNoFieldDefinitions,
			Severity: HealthCritical,
			Message:  "no field definitions",
		})
		return report
	}

	if stats.RequiredAttributes == 0 {
		report.Score -= deductNoRequired
		report.Issues = append(report.Issues, HealthIssue{
			Code:     IssueNoRequiredFields,
			Severity: HealthWarning,
			Message:  "no required fields discovered",
		})
	}

	if stats.LastSyncedAt == nil || now.Sub(*stats.LastSyncedAt) > freshness {
		report.Score -= deductStale
		report.Issues = append(report.Issues, HealthIssue{
			Code:     IssueStaleSync,
			Severity: HealthWarning,
			Message:  "schema not synced within " + freshness.String(),
		})
	}

	if len(emptyLists) > 0 {
		report.Score -= min(len(emptyLists)*deductPerEmptyList, maxEmptyListDeduct)
		for _, key := range emptyLists {
			report.Issues = append(report.Issues, HealthIssue{
				Code:     IssueEmptyValueList,
				Severity: HealthWarning,
				Message:  "value list for " + key + " has no entries",
			})
		}
	}

	report.Score = max(report.Score, 0)
	return report
}
