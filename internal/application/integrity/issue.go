// Package integrity finds and repairs inconsistencies between attribute
// assignments, their definitions and the link registry.
package integrity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Severity ranks an issue
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// IsValid checks if the severity is known
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is as severe as min
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// ParseSeverity parses a severity name, case-insensitively
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("integrity: unknown severity %q", s)
	}
	return sev, nil
}

// CheckID names a check
type CheckID string

const (
	CheckOrphanedAttribute       CheckID = "orphaned_attribute"
	CheckOrphanedInheritance     CheckID = "orphaned_inheritance"
	CheckInvalidInheritance      CheckID = "invalid_inheritance"
	CheckDuplicateAssignment     CheckID = "duplicate_assignment"
	CheckInheritanceDrift        CheckID = "inheritance_drift"
	CheckMissingInheritance      CheckID = "missing_inheritance"
	CheckLinkParentIntegrity     CheckID = "link_parent_integrity"
	CheckLinkedWithoutExternalID CheckID = "linked_without_external_id"
)

// AllChecks lists every check in run order
var AllChecks = []CheckID{
	CheckOrphanedAttribute,
	CheckOrphanedInheritance,
	CheckInvalidInheritance,
	CheckDuplicateAssignment,
	CheckInheritanceDrift,
	CheckMissingInheritance,
	CheckLinkParentIntegrity,
	CheckLinkedWithoutExternalID,
}

// Issue is one inconsistency found by a check
type Issue struct {
	Check    CheckID  `json:"check"`
	Severity Severity `json:"severity"`
	// Entity is "assignment", "variant" or "link"
	Entity       string    `json:"entity"`
	EntityID     uuid.UUID `json:"entity_id"`
	AttributeKey string    `json:"attribute_key,omitempty"`
	Message      string    `json:"message"`
	Fixable      bool      `json:"fixable"`
	Fixed        bool      `json:"fixed"`
	FixError     string    `json:"fix_error,omitempty"`

	fix func(ctx context.Context) error
}

func (i *Issue) withFix(fix func(ctx context.Context) error) *Issue {
	i.fix = fix
	i.Fixable = true
	return i
}
