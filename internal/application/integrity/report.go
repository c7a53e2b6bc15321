package integrity

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Report is the outcome of one validator run
type Report struct {
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
	Checks      []CheckID     `json:"checks"`
	MinSeverity Severity      `json:"min_severity"`
	Fix         bool          `json:"fix"`

	Issues      []*Issue         `json:"issues"`
	Fixed       int              `json:"fixed"`
	FixFailures int              `json:"fix_failures"`
	ByCheck     map[CheckID]int  `json:"by_check"`
	BySeverity  map[Severity]int `json:"by_severity"`
}

func newReport(checks []CheckID, opts Options) *Report {
	return &Report{
		Checks:      checks,
		MinSeverity: opts.MinSeverity,
		Fix:         opts.Fix,
		Issues:      []*Issue{},
		ByCheck:     make(map[CheckID]int),
		BySeverity:  make(map[Severity]int),
	}
}

func (r *Report) add(issue *Issue) {
	r.Issues = append(r.Issues, issue)
	r.ByCheck[issue.Check]++
	r.BySeverity[issue.Severity]++
}

// HasCritical reports whether a critical issue was found, fixed or not
func (r *Report) HasCritical() bool {
	return r.BySeverity[SeverityCritical] > 0
}

// Failed reports whether the run should end with a non-zero exit status
func (r *Report) Failed() bool {
	return r.HasCritical()
}

// WriteJSON writes the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a console summary followed by one line per issue
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Integrity report (%s, fix=%t, min severity=%s)\n", r.Duration.Round(time.Millisecond), r.Fix, r.MinSeverity)
	fmt.Fprintf(tw, "Issues: %d\tFixed: %d\tFix failures: %d\n", len(r.Issues), r.Fixed, r.FixFailures)
	fmt.Fprintf(tw, "Critical: %d\tWarning: %d\tInfo: %d\n\n",
		r.BySeverity[SeverityCritical], r.BySeverity[SeverityWarning], r.BySeverity[SeverityInfo])

	fmt.Fprintln(tw, "CHECK\tISSUES")
	for _, check := range r.Checks {
		fmt.Fprintf(tw, "%s\t%d\n", check, r.ByCheck[check])
	}

	if len(r.Issues) > 0 {
		fmt.Fprintln(tw, "\nSEVERITY\tCHECK\tENTITY\tID\tKEY\tSTATUS\tMESSAGE")
		for _, issue := range r.Issues {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				issue.Severity, issue.Check, issue.Entity, issue.EntityID, issue.AttributeKey, issueStatus(issue), issue.Message)
		}
	}
	return tw.Flush()
}

func issueStatus(issue *Issue) string {
	switch {
	case issue.Fixed:
		return "fixed"
	case issue.FixError != "":
		return "fix failed: " + issue.FixError
	case issue.Fixable:
		return "fixable"
	default:
		return "-"
	}
}
