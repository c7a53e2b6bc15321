package models

import (
	"encoding/json"
	"time"

	"github.com/erp/channelsync/internal/domain/link"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LegacyMappingModel is the persistence model for the flat legacy link table.
type LegacyMappingModel struct {
	ID                  uuid.UUID             `gorm:"type:uuid;primary_key"`
	AccountID           uuid.UUID             `gorm:"type:uuid;not null;index:idx_product_mapping_account,priority:1;uniqueIndex:idx_product_mapping_account_product,priority:1"`
	LocalProductID      uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_product_mapping_account_product,priority:2"`
	ExternalProductID   string                `gorm:"column:platform_product_id;type:varchar(100);not null;index"`
	ExternalProductName string                `gorm:"column:platform_product_name;type:varchar(255)"`
	ExternalCategoryID  string                `gorm:"column:platform_category_id;type:varchar(50)"`
	SKUMappings         datatypes.JSON        `gorm:"column:sku_mappings"`
	IsActive            bool                  `gorm:"not null;default:true;index:idx_product_mapping_account,priority:2"`
	LastSyncAt          *time.Time            `gorm:"index"`
	LastSyncStatus      link.LegacySyncStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	LastSyncError       string                `gorm:"type:text"`
	CreatedAt           time.Time             `gorm:"not null"`
	UpdatedAt           time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LegacyMappingModel) TableName() string {
	return "product_mappings"
}

// ToDomain converts the persistence model to a domain LegacyMapping.
// A malformed sku_mappings column yields an empty list.
func (m *LegacyMappingModel) ToDomain() *link.LegacyMapping {
	mapping := &link.LegacyMapping{
		ID:                  m.ID,
		AccountID:           m.AccountID,
		LocalProductID:      m.LocalProductID,
		ExternalProductID:   m.ExternalProductID,
		ExternalProductName: m.ExternalProductName,
		ExternalCategoryID:  m.ExternalCategoryID,
		SKUMappings:         make([]link.SKUMapping, 0),
		IsActive:            m.IsActive,
		LastSyncAt:          m.LastSyncAt,
		LastSyncStatus:      m.LastSyncStatus,
		LastSyncError:       m.LastSyncError,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	if len(m.SKUMappings) > 0 {
		var skus []link.SKUMapping
		if err := json.Unmarshal(m.SKUMappings, &skus); err == nil {
			mapping.SKUMappings = skus
		}
	}
	return mapping
}

// FromDomain populates the persistence model from a domain LegacyMapping
func (m *LegacyMappingModel) FromDomain(pm *link.LegacyMapping) {
	m.ID = pm.ID
	m.AccountID = pm.AccountID
	m.LocalProductID = pm.LocalProductID
	m.ExternalProductID = pm.ExternalProductID
	m.ExternalProductName = pm.ExternalProductName
	m.ExternalCategoryID = pm.ExternalCategoryID
	m.IsActive = pm.IsActive
	m.LastSyncAt = pm.LastSyncAt
	m.LastSyncStatus = pm.LastSyncStatus
	m.LastSyncError = pm.LastSyncError
	m.CreatedAt = pm.CreatedAt
	m.UpdatedAt = pm.UpdatedAt
	if pm.SKUMappings == nil {
		m.SKUMappings = datatypes.JSON("[]")
	} else {
		m.SKUMappings = toJSON(pm.SKUMappings)
	}
}
