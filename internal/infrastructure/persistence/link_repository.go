package persistence

import (
	"context"
	"errors"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLinkRepository implements link.Repository using GORM
type GormLinkRepository struct {
	db *gorm.DB
}

// NewGormLinkRepository creates a new GormLinkRepository
func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

var _ link.Repository = (*GormLinkRepository)(nil)

// FindByID finds a link by its ID
func (r *GormLinkRepository) FindByID(ctx context.Context, id uuid.UUID) (*link.Link, error) {
	var model models.LinkModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, link.ErrLinkNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs returns the links with the given IDs keyed by ID
func (r *GormLinkRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*link.Link, error) {
	result := make(map[uuid.UUID]*link.Link, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.LinkModel
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		l := rows[i].ToDomain()
		result[l.ID] = l
	}
	return result, nil
}

// FindByExternal finds the link carrying externalID at the given level
func (r *GormLinkRepository) FindByExternal(ctx context.Context, accountID uuid.UUID, level link.Level, externalID string) (*link.Link, error) {
	if externalID == "" {
		return nil, link.ErrLinkNotFound
	}
	column := "external_product_id"
	if level == link.LevelVariant {
		column = "external_variant_id"
	}

	var model models.LinkModel
	err := conn(ctx, r.db).Scopes(AccountScope(accountID)).
		Where("level = ?", level).
		Where(column+" = ?", externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, link.ErrLinkNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByEntity finds the link binding ref within an account
func (r *GormLinkRepository) FindByEntity(ctx context.Context, accountID uuid.UUID, ref catalog.EntityRef) (*link.Link, error) {
	var model models.LinkModel
	err := conn(ctx, r.db).Scopes(AccountScope(accountID)).
		Where("entity_kind = ? AND entity_id = ?", ref.Kind, ref.ID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, link.ErrLinkNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindChildren returns the variant links whose parent is parentID
func (r *GormLinkRepository) FindChildren(ctx context.Context, parentID uuid.UUID) ([]link.Link, error) {
	var rows []models.LinkModel
	if err := conn(ctx, r.db).Where("parent_link_id = ?", parentID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toLinks(rows), nil
}

// Scan pages through links matching filter
func (r *GormLinkRepository) Scan(ctx context.Context, filter link.Filter, cursor shared.Cursor) ([]link.Link, error) {
	query := conn(ctx, r.db).Scopes(AccountsScope(filter.AccountIDs))
	if filter.Level != nil {
		query = query.Where("level = ?", *filter.Level)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var rows []models.LinkModel
	if err := query.Scopes(KeysetScope(cursor)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toLinks(rows), nil
}

// Save creates or updates a link
func (r *GormLinkRepository) Save(ctx context.Context, l *link.Link) error {
	var model models.LinkModel
	model.FromDomain(l)
	err := conn(ctx, r.db).Save(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &link.IntegrityError{
			Op:     "save",
			LinkID: l.ID,
			Reason: "entity or external id already bound in account",
			Err:    err,
		}
	}
	return err
}

func toLinks(rows []models.LinkModel) []link.Link {
	links := make([]link.Link, len(rows))
	for i := range rows {
		links[i] = *rows[i].ToDomain()
	}
	return links
}
