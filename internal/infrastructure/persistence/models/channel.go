package models

import (
	"time"

	"github.com/erp/channelsync/internal/domain/channel"
	"gorm.io/datatypes"
)

// ChannelAccountModel is the persistence model for channel.Account
type ChannelAccountModel struct {
	BaseModel
	Type             channel.Type      `gorm:"type:varchar(20);not null;index"`
	Name             string            `gorm:"type:varchar(191);not null;uniqueIndex:idx_channel_account_name"`
	IsActive         bool              `gorm:"not null;default:true;index"`
	Settings         datatypes.JSONMap `gorm:"column:settings"`
	LastDiscoveredAt *time.Time
}

// TableName returns the table name for GORM
func (ChannelAccountModel) TableName() string {
	return "channel_accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *ChannelAccountModel) ToDomain() *channel.Account {
	settings := make(map[string]any, len(m.Settings))
	for k, v := range m.Settings {
		settings[k] = v
	}
	return &channel.Account{
		BaseEntity:       m.BaseModel.ToDomain(),
		Type:             m.Type,
		Name:             m.Name,
		IsActive:         m.IsActive,
		Settings:         settings,
		LastDiscoveredAt: m.LastDiscoveredAt,
	}
}

// FromDomain populates the persistence model from a domain Account
func (m *ChannelAccountModel) FromDomain(a *channel.Account) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Type = a.Type
	m.Name = a.Name
	m.IsActive = a.IsActive
	m.Settings = cloneMap(a.Settings)
	m.LastDiscoveredAt = a.LastDiscoveredAt
}
