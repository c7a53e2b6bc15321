package models

import (
	"encoding/json"
	"time"

	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity, which owns the timestamps.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// All lists every model for AutoMigrate
func All() []any {
	return []any{
		&ChannelAccountModel{},
		&TaxonomyEntryModel{},
		&ProductModel{},
		&VariantModel{},
		&AttributeDefinitionModel{},
		&AttributeAssignmentModel{},
		&LinkModel{},
		&LegacyMappingModel{},
	}
}

// toJSON marshals v, returning null on failure
func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

// fromJSON unmarshals raw into v, leaving v untouched on empty input
func fromJSON(raw datatypes.JSON, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

func cloneMap(m map[string]any) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
