package attribute

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/google/uuid"
)

var (
	ErrDefinitionNotFound       = errors.New("attribute: definition not found")
	ErrDefinitionInvalidKey     = errors.New("attribute: definition key is required")
	ErrDefinitionInvalidType    = errors.New("attribute: invalid data type")
	ErrDefinitionNotInheritable = errors.New("attribute: definition does not support inheritance")
	ErrAssignmentNotFound       = errors.New("attribute: assignment not found")
	ErrAssignmentInvalidOwner   = errors.New("attribute: invalid assignment owner")
	ErrAmbiguousAssignment      = errors.New("attribute: more than one assignment for the same owner and definition")
)

// Definition is an entry of the internal attribute registry
type Definition struct {
	shared.BaseEntity
	Key         string
	Name        string
	DataType    taxonomy.DataType
	Inheritable bool
	IsActive    bool
	Rules       taxonomy.Rules
	// TaxonomyAccountID and TaxonomyKey bind the definition to a cached
	// channel attribute whose rules also apply
	TaxonomyAccountID *uuid.UUID
	TaxonomyKey       string
}

// NewDefinition creates an active definition
func NewDefinition(key, name string, dataType taxonomy.DataType, inheritable bool) (*Definition, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrDefinitionInvalidKey
	}
	if !dataType.IsValid() {
		return nil, ErrDefinitionInvalidType
	}
	if name == "" {
		name = key
	}
	return &Definition{
		BaseEntity:  shared.NewBaseEntity(),
		Key:         key,
		Name:        name,
		DataType:    dataType,
		Inheritable: inheritable,
		IsActive:    true,
	}, nil
}

// SupportsInheritance reports whether values may currently be inherited
func (d *Definition) SupportsInheritance() bool {
	return d.Inheritable && d.IsActive
}

// MirrorsTaxonomy reports whether the definition is bound to a channel attribute
func (d *Definition) MirrorsTaxonomy() bool {
	return d.TaxonomyAccountID != nil && d.TaxonomyKey != ""
}

// BindTaxonomy binds the definition to a channel attribute
func (d *Definition) BindTaxonomy(accountID uuid.UUID, key string) {
	d.TaxonomyAccountID = &accountID
	d.TaxonomyKey = key
	d.Touch()
}

// Check validates value against the definition's own rules
func (d *Definition) Check(value string) []string {
	return d.Rules.Check(d.DataType, value)
}

// DefinitionRepository is the internal attribute definition registry
type DefinitionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Definition, error)
	FindByKeys(ctx context.Context, keys []string) (map[string]*Definition, error)
	FindAll(ctx context.Context, activeOnly bool) ([]Definition, error)
	Save(ctx context.Context, d *Definition) error
}
