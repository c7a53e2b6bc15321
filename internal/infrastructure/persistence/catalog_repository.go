package persistence

import (
	"context"
	"errors"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCatalogRepository implements catalog.Repository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

var _ catalog.Repository = (*GormCatalogRepository)(nil)

// FindProduct finds a product by its ID
func (r *GormCatalogRepository) FindProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var model models.ProductModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindVariant finds a variant by its ID
func (r *GormCatalogRepository) FindVariant(ctx context.Context, id uuid.UUID) (*catalog.Variant, error) {
	var model models.VariantModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindVariantsByProduct returns the variants of a product ordered by SKU
func (r *GormCatalogRepository) FindVariantsByProduct(ctx context.Context, productID uuid.UUID) ([]catalog.Variant, error) {
	return r.FindVariantsByProducts(ctx, []uuid.UUID{productID})
}

// FindVariantsByProducts returns the variants of several products ordered by SKU
func (r *GormCatalogRepository) FindVariantsByProducts(ctx context.Context, productIDs []uuid.UUID) ([]catalog.Variant, error) {
	if len(productIDs) == 0 {
		return []catalog.Variant{}, nil
	}
	var rows []models.VariantModel
	if err := conn(ctx, r.db).Where("product_id IN ?", productIDs).Order("sku ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toVariants(rows), nil
}

// FindVariantsByIDs returns the variants with the given IDs ordered by ID
func (r *GormCatalogRepository) FindVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	if len(ids) == 0 {
		return []catalog.Variant{}, nil
	}
	var rows []models.VariantModel
	if err := conn(ctx, r.db).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toVariants(rows), nil
}

// ExistingIDs returns the subset of ids that exist for the given kind
func (r *GormCatalogRepository) ExistingIDs(ctx context.Context, kind catalog.EntityKind, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var model any
	switch kind {
	case catalog.EntityKindProduct:
		model = &models.ProductModel{}
	case catalog.EntityKindVariant:
		model = &models.VariantModel{}
	default:
		return nil, catalog.ErrInvalidEntityRef
	}

	var existing []uuid.UUID
	if err := conn(ctx, r.db).Model(model).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}

// ListVariantIDs pages through every variant ID in ID order
func (r *GormCatalogRepository) ListVariantIDs(ctx context.Context, cursor shared.Cursor) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := conn(ctx, r.db).Model(&models.VariantModel{}).
		Scopes(KeysetScope(cursor)).
		Pluck("id", &ids).Error
	return ids, err
}

// SaveProduct creates or updates a product
func (r *GormCatalogRepository) SaveProduct(ctx context.Context, p *catalog.Product) error {
	var model models.ProductModel
	model.FromDomain(p)
	return conn(ctx, r.db).Save(&model).Error
}

// SaveVariant creates or updates a variant
func (r *GormCatalogRepository) SaveVariant(ctx context.Context, v *catalog.Variant) error {
	var model models.VariantModel
	model.FromDomain(v)
	return conn(ctx, r.db).Save(&model).Error
}

func toVariants(rows []models.VariantModel) []catalog.Variant {
	variants := make([]catalog.Variant, len(rows))
	for i := range rows {
		variants[i] = *rows[i].ToDomain()
	}
	return variants
}
