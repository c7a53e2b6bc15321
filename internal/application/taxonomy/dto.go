package taxonomy

import (
	"github.com/erp/channelsync/internal/domain/taxonomy"
)

// SkippedEntry is a payload entry that failed validation and was not written
type SkippedEntry struct {
	Type       taxonomy.EntryType `json:"type"`
	ExternalID string             `json:"external_id"`
	Reason     string             `json:"reason"`
}

// UpsertResult counts what one upsert pass changed
type UpsertResult struct {
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Unchanged   int            `json:"unchanged"`
	Reactivated int            `json:"reactivated"`
	Deactivated int            `json:"deactivated"`
	Skipped     []SkippedEntry `json:"skipped"`
}

// Written returns the number of entries whose content changed
func (r *UpsertResult) Written() int {
	return r.Created + r.Updated + r.Reactivated
}
