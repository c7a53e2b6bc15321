package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EntityKind discriminates the entity an EntityRef points at
type EntityKind string

const (
	EntityKindProduct EntityKind = "PRODUCT"
	EntityKindVariant EntityKind = "VARIANT"
)

// IsValid returns true if the kind is known
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindProduct, EntityKindVariant:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityKind
func (k EntityKind) String() string {
	return string(k)
}

// ErrInvalidEntityRef is returned for refs with an unknown kind or nil ID
var ErrInvalidEntityRef = errors.New("catalog: invalid entity reference")

// EntityRef is a reference to either a product or a variant.
// Build it with ProductRef or VariantRef and branch with Visit so that
// every kind is handled explicitly.
type EntityRef struct {
	Kind EntityKind
	ID   uuid.UUID
}

// ProductRef references a product
func ProductRef(id uuid.UUID) EntityRef {
	return EntityRef{Kind: EntityKindProduct, ID: id}
}

// VariantRef references a variant
func VariantRef(id uuid.UUID) EntityRef {
	return EntityRef{Kind: EntityKindVariant, ID: id}
}

// Validate checks the kind and ID
func (r EntityRef) Validate() error {
	if !r.Kind.IsValid() || r.ID == uuid.Nil {
		return ErrInvalidEntityRef
	}
	return nil
}

// IsProduct reports whether the ref points at a product
func (r EntityRef) IsProduct() bool {
	return r.Kind == EntityKindProduct
}

// IsVariant reports whether the ref points at a variant
func (r EntityRef) IsVariant() bool {
	return r.Kind == EntityKindVariant
}

// Visit calls onProduct or onVariant depending on the kind.
func Visit[T any](r EntityRef, onProduct func(uuid.UUID) (T, error), onVariant func(uuid.UUID) (T, error)) (T, error) {
	switch r.Kind {
	case EntityKindProduct:
		return onProduct(r.ID)
	case EntityKindVariant:
		return onVariant(r.ID)
	default:
		var zero T
		return zero, ErrInvalidEntityRef
	}
}

// String renders the ref as KIND:uuid
func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}
