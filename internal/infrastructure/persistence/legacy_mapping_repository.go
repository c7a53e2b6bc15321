package persistence

import (
	"context"
	"errors"

	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLegacyMappingRepository reads and writes the flat product_mappings table
type GormLegacyMappingRepository struct {
	db *gorm.DB
}

// NewGormLegacyMappingRepository creates a new GormLegacyMappingRepository
func NewGormLegacyMappingRepository(db *gorm.DB) *GormLegacyMappingRepository {
	return &GormLegacyMappingRepository{db: db}
}

var _ link.LegacyMappingRepository = (*GormLegacyMappingRepository)(nil)

// FindByAccount pages through the mappings of one account ordered by ID
func (r *GormLegacyMappingRepository) FindByAccount(ctx context.Context, accountID uuid.UUID, activeOnly bool, cursor shared.Cursor) ([]link.LegacyMapping, error) {
	query := conn(ctx, r.db).Scopes(AccountScope(accountID))
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var rows []models.LegacyMappingModel
	if err := query.Scopes(KeysetScope(cursor)).Find(&rows).Error; err != nil {
		return nil, err
	}

	mappings := make([]link.LegacyMapping, len(rows))
	for i := range rows {
		mappings[i] = *rows[i].ToDomain()
	}
	return mappings, nil
}

// CountByAccount counts the mappings of one account
func (r *GormLegacyMappingRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.LegacyMappingModel{}).
		Scopes(AccountScope(accountID)).
		Count(&count).Error
	return count, err
}

// Save creates or updates a mapping
func (r *GormLegacyMappingRepository) Save(ctx context.Context, m *link.LegacyMapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	var model models.LegacyMappingModel
	model.FromDomain(m)
	err := conn(ctx, r.db).Save(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return link.NewIntegrityError("save legacy mapping", "product already mapped in account")
	}
	return err
}
