package models

import (
	"time"

	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TaxonomyEntryModel is the persistence model for taxonomy.Entry
type TaxonomyEntryModel struct {
	BaseModel
	AccountID        uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_taxonomy_entry_key,priority:1;index:idx_taxonomy_entry_lookup,priority:1"`
	Type             taxonomy.EntryType `gorm:"type:varchar(20);not null;uniqueIndex:idx_taxonomy_entry_key,priority:2;index:idx_taxonomy_entry_lookup,priority:2"`
	ExternalID       string             `gorm:"type:varchar(191);not null;uniqueIndex:idx_taxonomy_entry_key,priority:3"`
	Key              string             `gorm:"column:entry_key;type:varchar(191);index:idx_taxonomy_entry_lookup,priority:3"`
	Name             string             `gorm:"type:varchar(255)"`
	DataType         taxonomy.DataType  `gorm:"type:varchar(20)"`
	Required         bool               `gorm:"not null;default:false"`
	Rules            datatypes.JSON     `gorm:"column:rules"`
	Level            int                `gorm:"not null;default:0"`
	ParentExternalID string             `gorm:"type:varchar(191);index"`
	LastSyncedAt     time.Time          `gorm:"not null"`
	IsActive         bool               `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (TaxonomyEntryModel) TableName() string {
	return "taxonomy_entries"
}

// ToDomain converts the persistence model to a domain Entry
func (m *TaxonomyEntryModel) ToDomain() *taxonomy.Entry {
	e := &taxonomy.Entry{
		BaseEntity:       m.BaseModel.ToDomain(),
		AccountID:        m.AccountID,
		Type:             m.Type,
		ExternalID:       m.ExternalID,
		Key:              m.Key,
		Name:             m.Name,
		DataType:         m.DataType,
		Required:         m.Required,
		Level:            m.Level,
		ParentExternalID: m.ParentExternalID,
		LastSyncedAt:     m.LastSyncedAt,
		IsActive:         m.IsActive,
	}
	fromJSON(m.Rules, &e.Rules)
	return e
}

// FromDomain populates the persistence model from a domain Entry
func (m *TaxonomyEntryModel) FromDomain(e *taxonomy.Entry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.AccountID = e.AccountID
	m.Type = e.Type
	m.ExternalID = e.ExternalID
	m.Key = e.Key
	m.Name = e.Name
	m.DataType = e.DataType
	m.Required = e.Required
	m.Rules = toJSON(e.Rules)
	m.Level = e.Level
	m.ParentExternalID = e.ParentExternalID
	m.LastSyncedAt = e.LastSyncedAt
	m.IsActive = e.IsActive
}
