package persistence

import (
	"context"
	"errors"

	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountRepository implements channel.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

var _ channel.AccountRepository = (*GormAccountRepository)(nil)

// FindByID finds an account by its ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.Account, error) {
	var model models.ChannelAccountModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs returns the accounts with the given IDs; missing ones are absent from the result
func (r *GormAccountRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]channel.Account, error) {
	if len(ids) == 0 {
		return []channel.Account{}, nil
	}
	var rows []models.ChannelAccountModel
	if err := conn(ctx, r.db).Where("id IN ?", ids).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

// FindByName finds an account by its unique name
func (r *GormAccountRepository) FindByName(ctx context.Context, name string) (*channel.Account, error) {
	var model models.ChannelAccountModel
	if err := conn(ctx, r.db).First(&model, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive returns all active accounts ordered by name
func (r *GormAccountRepository) FindActive(ctx context.Context) ([]channel.Account, error) {
	var rows []models.ChannelAccountModel
	if err := conn(ctx, r.db).Where("is_active = ?", true).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

// FindAll returns every account ordered by name
func (r *GormAccountRepository) FindAll(ctx context.Context) ([]channel.Account, error) {
	var rows []models.ChannelAccountModel
	if err := conn(ctx, r.db).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAccounts(rows), nil
}

// Save creates or updates an account
func (r *GormAccountRepository) Save(ctx context.Context, account *channel.Account) error {
	var model models.ChannelAccountModel
	model.FromDomain(account)
	err := conn(ctx, r.db).Save(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return channel.ErrAccountNameConflict
	}
	return err
}

func toAccounts(rows []models.ChannelAccountModel) []channel.Account {
	accounts := make([]channel.Account, len(rows))
	for i := range rows {
		accounts[i] = *rows[i].ToDomain()
	}
	return accounts
}
