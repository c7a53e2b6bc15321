package attribute

import (
	"context"
	"strings"
	"time"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

// ValidationStatus is the outcome of validating an assigned value
type ValidationStatus string

const (
	ValidationValid       ValidationStatus = "VALID"
	ValidationInvalid     ValidationStatus = "INVALID"
	ValidationUnvalidated ValidationStatus = "UNVALIDATED"
)

// Assignment is a value attached to a product or variant for one definition.
// Inherited assignments point at the product-level assignment they were
// copied from. The copy is not kept in sync; drift is detected later.
type Assignment struct {
	shared.BaseEntity
	Owner              catalog.EntityRef
	DefinitionID       uuid.UUID
	Value              string
	Status             ValidationStatus
	ValidationErrors   []string
	IsInherited        bool
	SourceAssignmentID *uuid.UUID
	ValidatedAt        *time.Time
}

// NewAssignment creates an unvalidated, non-inherited assignment
func NewAssignment(owner catalog.EntityRef, definitionID uuid.UUID, value string) (*Assignment, error) {
	if err := owner.Validate(); err != nil {
		return nil, ErrAssignmentInvalidOwner
	}
	if definitionID == uuid.Nil {
		return nil, ErrDefinitionNotFound
	}
	return &Assignment{
		BaseEntity:   shared.NewBaseEntity(),
		Owner:        owner,
		DefinitionID: definitionID,
		Value:        value,
		Status:       ValidationUnvalidated,
	}, nil
}

// HasValue reports whether a non-blank value is set
func (a *Assignment) HasValue() bool {
	return strings.TrimSpace(a.Value) != ""
}

// InheritFrom copies source's value and points back to it
func (a *Assignment) InheritFrom(source *Assignment) {
	id := source.ID
	a.Value = source.Value
	a.IsInherited = true
	a.SourceAssignmentID = &id
	a.Status = ValidationUnvalidated
	a.ValidationErrors = nil
	a.ValidatedAt = nil
	a.Touch()
}

// InSyncWith reports whether an inherited value still equals source
func (a *Assignment) InSyncWith(source *Assignment) bool {
	return a.IsInherited && a.Value == source.Value
}

// RecordValidation stores the validation outcome
func (a *Assignment) RecordValidation(violations []string, at time.Time) {
	if len(violations) == 0 {
		a.Status = ValidationValid
		a.ValidationErrors = nil
	} else {
		a.Status = ValidationInvalid
		a.ValidationErrors = violations
	}
	a.ValidatedAt = &at
	a.UpdatedAt = at
}

// ClearInheritance turns the assignment into a regular value
func (a *Assignment) ClearInheritance() {
	a.IsInherited = false
	a.SourceAssignmentID = nil
	a.Touch()
}

// MoreRecentlyValidated orders duplicates: validated_at first, then updated_at.
// Returns 0 when neither wins.
func MoreRecentlyValidated(a, b *Assignment) int {
	switch {
	case a.ValidatedAt != nil && b.ValidatedAt == nil:
		return 1
	case a.ValidatedAt == nil && b.ValidatedAt != nil:
		return -1
	case a.ValidatedAt != nil && b.ValidatedAt != nil && !a.ValidatedAt.Equal(*b.ValidatedAt):
		return a.ValidatedAt.Compare(*b.ValidatedAt)
	}
	return a.UpdatedAt.Compare(b.UpdatedAt)
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// OwnerDefinition identifies the slot an assignment fills
type OwnerDefinition struct {
	Owner        catalog.EntityRef
	DefinitionID uuid.UUID
}

// Filter narrows an assignment scan
type Filter struct {
	InheritedOnly bool
	OwnerKind     catalog.EntityKind
	DefinitionIDs []uuid.UUID
}

// ChangeSet groups writes that commit together
type ChangeSet struct {
	Save   []*Assignment
	Delete []uuid.UUID
}

// IsEmpty reports whether there is nothing to write
func (c ChangeSet) IsEmpty() bool {
	return len(c.Save) == 0 && len(c.Delete) == 0
}

// AssignmentRepository persists assignments
type AssignmentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Assignment, error)
	FindByOwner(ctx context.Context, owner catalog.EntityRef) ([]Assignment, error)
	FindByOwners(ctx context.Context, kind catalog.EntityKind, ids []uuid.UUID) ([]Assignment, error)
	FindBySlot(ctx context.Context, slot OwnerDefinition) ([]Assignment, error)
	// FindDuplicateSlots returns slots filled by more than one assignment
	FindDuplicateSlots(ctx context.Context, limit int) ([]OwnerDefinition, error)
	// Scan pages through assignments ordered by id
	Scan(ctx context.Context, filter Filter, cursor shared.Cursor) ([]Assignment, error)
	Save(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, ids ...uuid.UUID) error
	ApplyChanges(ctx context.Context, changes ChangeSet) error
}
