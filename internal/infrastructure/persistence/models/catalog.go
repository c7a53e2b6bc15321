package models

import (
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/google/uuid"
)

// ProductModel is the persistence model for catalog.Product
type ProductModel struct {
	BaseModel
	SKU      string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name     string `gorm:"type:varchar(255);not null"`
	IsActive bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		BaseEntity: m.BaseModel.ToDomain(),
		SKU:        m.SKU,
		Name:       m.Name,
		IsActive:   m.IsActive,
	}
}

// FromDomain populates the persistence model from a domain Product
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.SKU = p.SKU
	m.Name = p.Name
	m.IsActive = p.IsActive
}

// VariantModel is the persistence model for catalog.Variant
type VariantModel struct {
	BaseModel
	ProductID     uuid.UUID `gorm:"type:uuid;not null;index"`
	SKU           string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name          string    `gorm:"type:varchar(255)"`
	IsActive      bool      `gorm:"not null;default:true"`
	OverrideCount int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (VariantModel) TableName() string {
	return "variants"
}

// ToDomain converts the persistence model to a domain Variant
func (m *VariantModel) ToDomain() *catalog.Variant {
	return &catalog.Variant{
		BaseEntity:    m.BaseModel.ToDomain(),
		ProductID:     m.ProductID,
		SKU:           m.SKU,
		Name:          m.Name,
		IsActive:      m.IsActive,
		OverrideCount: m.OverrideCount,
	}
}

// FromDomain populates the persistence model from a domain Variant
func (m *VariantModel) FromDomain(v *catalog.Variant) {
	m.FromDomainBaseEntity(v.BaseEntity)
	m.ProductID = v.ProductID
	m.SKU = v.SKU
	m.Name = v.Name
	m.IsActive = v.IsActive
	m.OverrideCount = v.OverrideCount
}
