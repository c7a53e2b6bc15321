package taxonomy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		err   error
	}{
		{"Valid category", Entry{Type: EntryTypeCategory, ExternalID: "c1"}, nil},
		{"Valid attribute", Entry{Type: EntryTypeAttribute, ExternalID: "a1", Key: "material", DataType: DataTypeList}, nil},
		{"Valid value", Entry{Type: EntryTypeValue, ExternalID: "v1", ParentExternalID: "a1"}, nil},
		{"Unknown type", Entry{Type: "FIELD", ExternalID: "x"}, ErrEntryInvalidType},
		{"Missing external id", Entry{Type: EntryTypeCategory}, ErrEntryMissingExternal},
		{"Attribute without key", Entry{Type: EntryTypeAttribute, ExternalID: "a1", DataType: DataTypeString}, ErrEntryMissingKey},
		{"Attribute with bad data type", Entry{Type: EntryTypeAttribute, ExternalID: "a1", Key: "k", DataType: "BLOB"}, ErrEntryInvalidDataType},
		{"Attribute with bad rules", Entry{Type: EntryTypeAttribute, ExternalID: "a1", Key: "k", DataType: DataTypeString, Rules: Rules{Pattern: "["}}, ErrEntryInvalidRules},
		{"Value without parent", Entry{Type: EntryTypeValue, ExternalID: "v1"}, ErrEntryMissingParent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestEntry_SameContent(t *testing.T) {
	a := &Entry{Type: EntryTypeAttribute, ExternalID: "a1", Key: "material", Name: "Material", DataType: DataTypeList, Required: true}
	b := *a
	b.ID = uuid.New()
	b.LastSyncedAt = time.Now()
	assert.True(t, a.SameContent(&b))

	b.Required = false
	assert.False(t, a.SameContent(&b))
}

func TestEntry_AppliesToCategory(t *testing.T) {
	global := &Entry{Type: EntryTypeAttribute}
	scoped := &Entry{Type: EntryTypeAttribute, Rules: Rules{CategoryIDs: []string{"shirts"}}}

	assert.True(t, global.AppliesToCategory("shoes"))
	assert.True(t, scoped.AppliesToCategory("shirts"))
	assert.False(t, scoped.AppliesToCategory("shoes"))
	assert.True(t, scoped.AppliesToCategory(""))
}

func TestBuildHealthReport(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	accountID := uuid.New()
	window := 30 * 24 * time.Hour

	t.Run("No entries scores zero", func(t *testing.T) {
		report := BuildHealthReport(accountID, EntryStats{}, nil, now, window)
		assert.Equal(t, 0, report.Score)
		assert.Len(t, report.Issues, 1)
		assert.Equal(t, IssueNoFieldDefinitions, report.Issues[0].Code)
		assert.Equal(t, "no field definitions", report.Issues[0].Message)
	})

	t.Run("Healthy account", func(t *testing.T) {
		synced := now.Add(-24 * time.Hour)
		stats := EntryStats{Total: 10, Attributes: 5, RequiredAttributes: 2, LastSyncedAt: &synced}
		report := BuildHealthReport(accountID, stats, nil, now, window)
		assert.Equal(t, 100, report.Score)
		assert.Empty(t, report.Issues)
	})

	t.Run("Deductions accumulate and floor at zero", func(t *testing.T) {
		stats := EntryStats{Total: 10, Attributes: 5}
		report := BuildHealthReport(accountID, stats, []string{"a", "b", "c", "d"}, now, window)
		assert.Equal(t, 0, report.Score)
		assert.Len(t, report.Issues, 6)
	})

	t.Run("Stale sync", func(t *testing.T) {
		synced := now.Add(-31 * 24 * time.Hour)
		stats := EntryStats{Total: 3, Attributes: 1, RequiredAttributes: 1, LastSyncedAt: &synced}
		report := BuildHealthReport(accountID, stats, nil, now, window)
		assert.Equal(t, 70, report.Score)
		assert.Equal(t, IssueStaleSync, report.Issues[0].Code)
	})
}
