package discovery

import (
	"time"

	apptaxonomy "github.com/erp/channelsync/internal/application/taxonomy"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/google/uuid"
)

// AccountStatus is the outcome of discovery for one account
type AccountStatus string

const (
	StatusSuccess AccountStatus = "success"
	StatusFailed  AccountStatus = "failed"
	StatusSkipped AccountStatus = "skipped"
)

// AccountResult is the outcome of discovery for one account
type AccountResult struct {
	AccountID   uuid.UUID                 `json:"account_id"`
	AccountName string                    `json:"account_name"`
	ChannelType channel.Type              `json:"channel_type"`
	Status      AccountStatus             `json:"status"`
	Counts      Counts                    `json:"counts"`
	Upsert      *apptaxonomy.UpsertResult `json:"upsert,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Reason      string                    `json:"reason,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Duration    time.Duration             `json:"duration"`
}

// Summary aggregates a discovery run. It is assembled from the per-account
// results once every worker has finished.
type Summary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   time.Duration   `json:"duration"`
	Forced     bool            `json:"forced"`
	Accounts   []AccountResult `json:"accounts"`
	Totals     Counts          `json:"totals"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Warnings   []string        `json:"warnings,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
}

// HasFailures reports whether any account failed
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

func buildSummary(started, finished time.Time, forced bool, results []AccountResult) *Summary {
	s := &Summary{
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Forced:     forced,
		Accounts:   results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Successful++
			s.Totals.Add(r.Counts)
		case StatusFailed:
			s.Failed++
			s.Errors = append(s.Errors, r.AccountName+": "+r.Error)
		case StatusSkipped:
			s.Skipped++
		}
		for _, w := range r.Warnings {
			s.Warnings = append(s.Warnings, r.AccountName+": "+w)
		}
	}
	return s
}
