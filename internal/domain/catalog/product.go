package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

var (
	ErrProductNotFound      = errors.New("catalog: product not found")
	ErrVariantNotFound      = errors.New("catalog: variant not found")
	ErrProductInvalidSKU    = errors.New("catalog: product SKU is required")
	ErrVariantInvalidSKU    = errors.New("catalog: variant SKU is required")
	ErrVariantInvalidParent = errors.New("catalog: variant must reference a product")
)

// Product is an internal catalog product (the parent of variants)
type Product struct {
	shared.BaseEntity
	SKU      string
	Name     string
	IsActive bool
}

// NewProduct creates an active product
func NewProduct(sku, name string) (*Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, ErrProductInvalidSKU
	}
	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		SKU:        sku,
		Name:       name,
		IsActive:   true,
	}, nil
}

// Ref returns the EntityRef of this product
func (p *Product) Ref() EntityRef {
	return ProductRef(p.ID)
}

// Variant is a sellable child of a product
type Variant struct {
	shared.BaseEntity
	ProductID uuid.UUID
	SKU       string
	Name      string
	IsActive  bool
	// OverrideCount is the number of attributes explicitly set on the variant
	OverrideCount int
}

// NewVariant creates an active variant of productID
func NewVariant(productID uuid.UUID, sku, name string) (*Variant, error) {
	if productID == uuid.Nil {
		return nil, ErrVariantInvalidParent
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, ErrVariantInvalidSKU
	}
	return &Variant{
		BaseEntity: shared.NewBaseEntity(),
		ProductID:  productID,
		SKU:        sku,
		Name:       name,
		IsActive:   true,
	}, nil
}

// Ref returns the EntityRef of this variant
func (v *Variant) Ref() EntityRef {
	return VariantRef(v.ID)
}

// ParentRef returns the EntityRef of the owning product
func (v *Variant) ParentRef() EntityRef {
	return ProductRef(v.ProductID)
}

// Reader is the read side of the catalog used by the sync core
type Reader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	FindVariant(ctx context.Context, id uuid.UUID) (*Variant, error)
	FindVariantsByProduct(ctx context.Context, productID uuid.UUID) ([]Variant, error)
	FindVariantsByProducts(ctx context.Context, productIDs []uuid.UUID) ([]Variant, error)
	FindVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]Variant, error)
	// ExistingIDs returns the subset of ids that exist for the given kind
	ExistingIDs(ctx context.Context, kind EntityKind, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	// ListVariantIDs pages through every variant ID in ID order
	ListVariantIDs(ctx context.Context, cursor shared.Cursor) ([]uuid.UUID, error)
}

// Writer persists catalog entities
type Writer interface {
	SaveProduct(ctx context.Context, p *Product) error
	SaveVariant(ctx context.Context, v *Variant) error
}

// Repository is the full catalog persistence port
type Repository interface {
	Reader
	Writer
}
