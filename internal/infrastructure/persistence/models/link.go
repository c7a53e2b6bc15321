package models

import (
	"time"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LinkModel is the persistence model for link.Link.
// Partial unique indexes keep external ids unique per account and level;
// variant placeholders without an external id are exempt.
type LinkModel struct {
	BaseModel
	AccountID         uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_link_entity,priority:1;uniqueIndex:idx_link_product_external,priority:1,where:level = 'PRODUCT';uniqueIndex:idx_link_variant_external,priority:1,where:level = 'VARIANT' AND external_variant_id <> ''"`
	Level             link.Level         `gorm:"type:varchar(20);not null;index"`
	EntityKind        catalog.EntityKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_link_entity,priority:2"`
	EntityID          uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_link_entity,priority:3"`
	ExternalProductID string             `gorm:"type:varchar(191);uniqueIndex:idx_link_product_external,priority:2"`
	ExternalVariantID string             `gorm:"type:varchar(191);uniqueIndex:idx_link_variant_external,priority:2"`
	ExternalSKU       string             `gorm:"type:varchar(191)"`
	Status            link.Status        `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	ParentLinkID      *uuid.UUID         `gorm:"type:uuid;index"`
	Metadata          datatypes.JSONMap  `gorm:"column:metadata"`
	LinkedAt          *time.Time
	LinkedBy          string `gorm:"type:varchar(100)"`
	LastError         string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (LinkModel) TableName() string {
	return "channel_links"
}

// ToDomain converts the persistence model to a domain Link
func (m *LinkModel) ToDomain() *link.Link {
	metadata := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		metadata[k] = v
	}
	return &link.Link{
		BaseEntity:        m.BaseModel.ToDomain(),
		AccountID:         m.AccountID,
		Level:             m.Level,
		Entity:            catalog.EntityRef{Kind: m.EntityKind, ID: m.EntityID},
		ExternalProductID: m.ExternalProductID,
		ExternalVariantID: m.ExternalVariantID,
		ExternalSKU:       m.ExternalSKU,
		Status:            m.Status,
		ParentLinkID:      m.ParentLinkID,
		Metadata:          metadata,
		LinkedAt:          m.LinkedAt,
		LinkedBy:          m.LinkedBy,
		LastError:         m.LastError,
	}
}

// FromDomain populates the persistence model from a domain Link
func (m *LinkModel) FromDomain(l *link.Link) {
	m.FromDomainBaseEntity(l.BaseEntity)
	m.AccountID = l.AccountID
	m.Level = l.Level
	m.EntityKind = l.Entity.Kind
	m.EntityID = l.Entity.ID
	m.ExternalProductID = l.ExternalProductID
	m.ExternalVariantID = l.ExternalVariantID
	m.ExternalSKU = l.ExternalSKU
	m.Status = l.Status
	m.ParentLinkID = l.ParentLinkID
	m.Metadata = cloneMap(l.Metadata)
	m.LinkedAt = l.LinkedAt
	m.LinkedBy = l.LinkedBy
	m.LastError = l.LastError
}
