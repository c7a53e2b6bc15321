package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const taxonomyCreateBatch = 200

// GormTaxonomyRepository implements taxonomy.EntryRepository using GORM
type GormTaxonomyRepository struct {
	db *gorm.DB
}

// NewGormTaxonomyRepository creates a new GormTaxonomyRepository
func NewGormTaxonomyRepository(db *gorm.DB) *GormTaxonomyRepository {
	return &GormTaxonomyRepository{db: db}
}

var _ taxonomy.EntryRepository = (*GormTaxonomyRepository)(nil)

// FindByAccount returns the entries of an account matching filter
func (r *GormTaxonomyRepository) FindByAccount(ctx context.Context, accountID uuid.UUID, filter taxonomy.EntryFilter) ([]taxonomy.Entry, error) {
	query := conn(ctx, r.db).Scopes(AccountScope(accountID))
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Key != "" {
		query = query.Where("entry_key = ?", filter.Key)
	}
	if filter.ParentExternalID != "" {
		query = query.Where("parent_external_id = ?", filter.ParentExternalID)
	}

	var rows []models.TaxonomyEntryModel
	if err := query.Order("type ASC, level ASC, external_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]taxonomy.Entry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries, nil
}

// CountByAccount aggregates the active entries of an account
func (r *GormTaxonomyRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (taxonomy.EntryStats, error) {
	var stats taxonomy.EntryStats

	type typeCount struct {
		Type     taxonomy.EntryType
		Required bool
		Count    int64
	}
	var counts []typeCount
	err := conn(ctx, r.db).Model(&models.TaxonomyEntryModel{}).
		Scopes(AccountScope(accountID)).
		Where("is_active = ?", true).
		Select("type, required, COUNT(*) AS count").
		Group("type, required").
		Scan(&counts).Error
	if err != nil {
		return stats, err
	}

	for _, c := range counts {
		stats.Total += c.Count
		switch c.Type {
		case taxonomy.EntryTypeCategory:
			stats.Categories += c.Count
		case taxonomy.EntryTypeAttribute:
			stats.Attributes += c.Count
			if c.Required {
				stats.RequiredAttributes += c.Count
			}
		case taxonomy.EntryTypeValue:
			stats.Values += c.Count
		}
	}

	var latest models.TaxonomyEntryModel
	err = conn(ctx, r.db).Scopes(AccountScope(accountID)).
		Order("last_synced_at DESC").
		Take(&latest).Error
	switch {
	case err == nil:
		synced := latest.LastSyncedAt
		stats.LastSyncedAt = &synced
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return stats, err
	}

	return stats, nil
}

// ApplySync writes the creates, updates and deactivations of one upsert pass
func (r *GormTaxonomyRepository) ApplySync(ctx context.Context, accountID uuid.UUID, changes taxonomy.SyncChanges) error {
	db := conn(ctx, r.db)

	if len(changes.Create) > 0 {
		rows := make([]*models.TaxonomyEntryModel, len(changes.Create))
		for i, e := range changes.Create {
			rows[i] = &models.TaxonomyEntryModel{}
			rows[i].FromDomain(e)
		}
		if err := db.CreateInBatches(rows, taxonomyCreateBatch).Error; err != nil {
			return err
		}
	}

	for _, e := range changes.Update {
		var model models.TaxonomyEntryModel
		model.FromDomain(e)
		if err := db.Save(&model).Error; err != nil {
			return err
		}
	}

	if len(changes.Deactivate) > 0 {
		err := db.Model(&models.TaxonomyEntryModel{}).
			Scopes(AccountScope(accountID)).
			Where("id IN ?", changes.Deactivate).
			Updates(map[string]any{"is_active": false, "updated_at": time.Now()}).Error
		if err != nil {
			return err
		}
	}

	return nil
}
