package models

import (
	"time"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AttributeDefinitionModel is the persistence model for attribute.Definition
type AttributeDefinitionModel struct {
	BaseModel
	Key               string            `gorm:"column:definition_key;type:varchar(191);not null;uniqueIndex"`
	Name              string            `gorm:"type:varchar(255);not null"`
	DataType          taxonomy.DataType `gorm:"type:varchar(20);not null"`
	Inheritable       bool              `gorm:"not null;default:false"`
	IsActive          bool              `gorm:"not null;default:true"`
	Rules             datatypes.JSON    `gorm:"column:rules"`
	TaxonomyAccountID *uuid.UUID        `gorm:"type:uuid"`
	TaxonomyKey       string            `gorm:"type:varchar(191)"`
}

// TableName returns the table name for GORM
func (AttributeDefinitionModel) TableName() string {
	return "attribute_definitions"
}

// ToDomain converts the persistence model to a domain Definition
func (m *AttributeDefinitionModel) ToDomain() *attribute.Definition {
	d := &attribute.Definition{
		BaseEntity:        m.BaseModel.ToDomain(),
		Key:               m.Key,
		Name:              m.Name,
		DataType:          m.DataType,
		Inheritable:       m.Inheritable,
		IsActive:          m.IsActive,
		TaxonomyAccountID: m.TaxonomyAccountID,
		TaxonomyKey:       m.TaxonomyKey,
	}
	fromJSON(m.Rules, &d.Rules)
	return d
}

// FromDomain populates the persistence model from a domain Definition
func (m *AttributeDefinitionModel) FromDomain(d *attribute.Definition) {
	m.FromDomainBaseEntity(d.BaseEntity)
	m.Key = d.Key
	m.Name = d.Name
	m.DataType = d.DataType
	m.Inheritable = d.Inheritable
	m.IsActive = d.IsActive
	m.Rules = toJSON(d.Rules)
	m.TaxonomyAccountID = d.TaxonomyAccountID
	m.TaxonomyKey = d.TaxonomyKey
}

// AttributeAssignmentModel is the persistence model for attribute.Assignment.
// (owner, definition) is deliberately not unique; duplicates are found and
// merged by the integrity validator.
type AttributeAssignmentModel struct {
	BaseModel
	OwnerKind          catalog.EntityKind         `gorm:"type:varchar(20);not null;index:idx_assignment_slot,priority:1"`
	OwnerID            uuid.UUID                  `gorm:"type:uuid;not null;index:idx_assignment_slot,priority:2"`
	DefinitionID       uuid.UUID                  `gorm:"type:uuid;not null;index:idx_assignment_slot,priority:3"`
	Value              string                     `gorm:"type:text"`
	Status             attribute.ValidationStatus `gorm:"type:varchar(20);not null;default:'UNVALIDATED'"`
	ValidationErrors   datatypes.JSON             `gorm:"column:validation_errors"`
	IsInherited        bool                       `gorm:"not null;default:false;index"`
	SourceAssignmentID *uuid.UUID                 `gorm:"type:uuid;index"`
	ValidatedAt        *time.Time
}

// TableName returns the table name for GORM
func (AttributeAssignmentModel) TableName() string {
	return "attribute_assignments"
}

// ToDomain converts the persistence model to a domain Assignment
func (m *AttributeAssignmentModel) ToDomain() *attribute.Assignment {
	a := &attribute.Assignment{
		BaseEntity:         m.BaseModel.ToDomain(),
		Owner:              catalog.EntityRef{Kind: m.OwnerKind, ID: m.OwnerID},
		DefinitionID:       m.DefinitionID,
		Value:              m.Value,
		Status:             m.Status,
		IsInherited:        m.IsInherited,
		SourceAssignmentID: m.SourceAssignmentID,
		ValidatedAt:        m.ValidatedAt,
	}
	fromJSON(m.ValidationErrors, &a.ValidationErrors)
	return a
}

// FromDomain populates the persistence model from a domain Assignment
func (m *AttributeAssignmentModel) FromDomain(a *attribute.Assignment) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.OwnerKind = a.Owner.Kind
	m.OwnerID = a.Owner.ID
	m.DefinitionID = a.DefinitionID
	m.Value = a.Value
	m.Status = a.Status
	m.ValidationErrors = toJSON(a.ValidationErrors)
	m.IsInherited = a.IsInherited
	m.SourceAssignmentID = a.SourceAssignmentID
	m.ValidatedAt = a.ValidatedAt
}
