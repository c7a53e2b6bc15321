package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

var (
	ErrEntryNotFound         = errors.New("taxonomy: entry not found")
	ErrEntryInvalidType      = errors.New("taxonomy: invalid entry type")
	ErrEntryInvalidDataType  = errors.New("taxonomy: invalid data type")
	ErrEntryMissingExternal  = errors.New("taxonomy: external id is required")
	ErrEntryMissingKey       = errors.New("taxonomy: attribute key is required")
	ErrEntryMissingParent    = errors.New("taxonomy: value entry must reference its attribute")
	ErrEntryInvalidRules     = errors.New("taxonomy: invalid validation rules")
	ErrAttributeNotFound     = errors.New("taxonomy: attribute not found")
	ErrAttributeNotListTyped = errors.New("taxonomy: attribute is not list typed")
)

// ---------------------------------------------------------------------------
// EntryType
// ---------------------------------------------------------------------------

// EntryType is the kind of schema element an entry describes
type EntryType string

const (
	EntryTypeCategory  EntryType = "CATEGORY"
	EntryTypeAttribute EntryType = "ATTRIBUTE"
	EntryTypeValue     EntryType = "VALUE"
)

// IsValid returns true if the entry type is known
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeCategory, EntryTypeAttribute, EntryTypeValue:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// DataType
// ---------------------------------------------------------------------------

// DataType is the value type of an attribute
type DataType string

const (
	DataTypeString  DataType = "STRING"
	DataTypeText    DataType = "TEXT"
	DataTypeInteger DataType = "INTEGER"
	DataTypeDecimal DataType = "DECIMAL"
	DataTypeBoolean DataType = "BOOLEAN"
	DataTypeList    DataType = "LIST"
	DataTypeDate    DataType = "DATE"
	DataTypeURL     DataType = "URL"
)

// IsValid returns true if the data type is known
func (d DataType) IsValid() bool {
	switch d {
	case DataTypeString, DataTypeText, DataTypeInteger, DataTypeDecimal,
		DataTypeBoolean, DataTypeList, DataTypeDate, DataTypeURL:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Entry
// ---------------------------------------------------------------------------

// Key identifies an entry within an account
type Key struct {
	Type       EntryType
	ExternalID string
}

// String renders the key as TYPE/external-id
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.ExternalID)
}

// Entry is one discovered schema element of a channel account.
// (AccountID, Type, ExternalID) is unique. Entries that disappear upstream are
// deactivated, never deleted, so historical assignments keep resolving.
type Entry struct {
	shared.BaseEntity
	AccountID  uuid.UUID
	Type       EntryType `validate:"required"`
	ExternalID string    `validate:"required,max=191"`
	// Key is the attribute key for attributes, the raw value for values,
	// and a slug for categories
	Key      string `validate:"max=191"`
	Name     string `validate:"max=255"`
	DataType DataType
	Required bool
	Rules    Rules
	Level    int `validate:"gte=0,lte=32"`
	// ParentExternalID is the parent category for categories and the owning
	// attribute for values
	ParentExternalID string `validate:"max=191"`
	LastSyncedAt     time.Time
	IsActive         bool
}

// EntryKey returns the identity of the entry within its account
func (e *Entry) EntryKey() Key {
	return Key{Type: e.Type, ExternalID: e.ExternalID}
}

// Validate performs the domain checks that struct tags cannot express
func (e *Entry) Validate() error {
	if !e.Type.IsValid() {
		return ErrEntryInvalidType
	}
	if e.ExternalID == "" {
		return ErrEntryMissingExternal
	}
	switch e.Type {
	case EntryTypeAttribute:
		if e.Key == "" {
			return ErrEntryMissingKey
		}
		if !e.DataType.IsValid() {
			return ErrEntryInvalidDataType
		}
		if err := e.Rules.Validate(); err != nil {
			return err
		}
	case EntryTypeValue:
		if e.ParentExternalID == "" {
			return ErrEntryMissingParent
		}
	}
	return nil
}

// SameContent reports whether two entries carry the same discovered content,
// ignoring identity and timestamps
func (e *Entry) SameContent(other *Entry) bool {
	return e.Key == other.Key &&
		e.Name == other.Name &&
		e.DataType == other.DataType &&
		e.Required == other.Required &&
		e.Level == other.Level &&
		e.ParentExternalID == other.ParentExternalID &&
		e.Rules.Equal(other.Rules)
}

// AppliesToCategory reports whether an attribute entry applies to category.
// Attributes without a category restriction apply everywhere.
func (e *Entry) AppliesToCategory(category string) bool {
	if category == "" || len(e.Rules.CategoryIDs) == 0 {
		return true
	}
	for _, c := range e.Rules.CategoryIDs {
		if c == category {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// EntryFilter narrows entry lookups
type EntryFilter struct {
	Type             *EntryType
	ActiveOnly       bool
	Key              string
	ParentExternalID string
}

// SyncChanges is the set of writes produced by one upsert pass
type SyncChanges struct {
	Create     []*Entry
	Update     []*Entry
	Deactivate []uuid.UUID
}

// IsEmpty reports whether there is nothing to write
func (c SyncChanges) IsEmpty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.Deactivate) == 0
}

// EntryRepository persists taxonomy entries
type EntryRepository interface {
	FindByAccount(ctx context.Context, accountID uuid.UUID, filter EntryFilter) ([]Entry, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (EntryStats, error)
	// ApplySync writes a pass atomically
	ApplySync(ctx context.Context, accountID uuid.UUID, changes SyncChanges) error
}

// EntryStats aggregates active entries of an account
type EntryStats struct {
	Total              int64
	Categories         int64
	Attributes         int64
	RequiredAttributes int64
	Values             int64
	LastSyncedAt       *time.Time
}
