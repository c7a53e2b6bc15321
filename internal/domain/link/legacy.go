package link

import (
	"context"
	"time"

	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// LegacySyncStatus
// ---------------------------------------------------------------------------

// LegacySyncStatus is the last sync result recorded on a legacy mapping
type LegacySyncStatus string

const (
	LegacySyncPending    LegacySyncStatus = "PENDING"
	LegacySyncInProgress LegacySyncStatus = "IN_PROGRESS"
	LegacySyncSuccess    LegacySyncStatus = "SUCCESS"
	LegacySyncPartial    LegacySyncStatus = "PARTIAL"
	LegacySyncFailed     LegacySyncStatus = "FAILED"
)

// LinkStatus maps the legacy result onto the link state machine
func (s LegacySyncStatus) LinkStatus() Status {
	switch s {
	case LegacySyncSuccess:
		return StatusLinked
	case LegacySyncFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// ---------------------------------------------------------------------------
// LegacyMapping
// ---------------------------------------------------------------------------

// LegacyMapping is the flat link model: one row per product and account
// with the variant bindings embedded as a list.
type LegacyMapping struct {
	ID                  uuid.UUID
	AccountID           uuid.UUID
	LocalProductID      uuid.UUID
	ExternalProductID   string
	ExternalProductName string
	ExternalCategoryID  string
	SKUMappings         []SKUMapping
	IsActive            bool
	LastSyncAt          *time.Time
	LastSyncStatus      LegacySyncStatus
	LastSyncError       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SKUMapping binds one local variant to an external SKU id
type SKUMapping struct {
	LocalVariantID uuid.UUID `json:"local_sku_id"`
	ExternalSKUID  string    `json:"platform_sku_id"`
	ExternalName   string    `json:"platform_sku_name,omitempty"`
	IsActive       bool      `json:"is_active"`
}

// NewLegacyMapping creates an active legacy mapping
func NewLegacyMapping(accountID, localProductID uuid.UUID, externalProductID string) (*LegacyMapping, error) {
	m := &LegacyMapping{
		ID:                uuid.New(),
		AccountID:         accountID,
		LocalProductID:    localProductID,
		ExternalProductID: externalProductID,
		SKUMappings:       make([]SKUMapping, 0),
		IsActive:          true,
		LastSyncStatus:    LegacySyncPending,
		CreatedAt:         time.Now(),
	}
	m.UpdatedAt = m.CreatedAt
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate validates the mapping
func (m *LegacyMapping) Validate() error {
	if m.AccountID == uuid.Nil {
		return ErrLinkInvalidAccount
	}
	if m.LocalProductID == uuid.Nil {
		return ErrLegacyInvalidProduct
	}
	if m.ExternalProductID == "" {
		return ErrLegacyInvalidExternal
	}
	return nil
}

// AddSKUMapping adds a variant binding. Exact duplicates are ignored.
func (m *LegacyMapping) AddSKUMapping(localVariantID uuid.UUID, externalSKUID string) error {
	if localVariantID == uuid.Nil || externalSKUID == "" {
		return ErrLegacyInvalidSKU
	}
	for _, existing := range m.SKUMappings {
		if existing.LocalVariantID == localVariantID && existing.ExternalSKUID == externalSKUID {
			return nil
		}
	}
	m.SKUMappings = append(m.SKUMappings, SKUMapping{
		LocalVariantID: localVariantID,
		ExternalSKUID:  externalSKUID,
		IsActive:       true,
	})
	m.UpdatedAt = time.Now()
	return nil
}

// ActiveSKUMappings returns the active variant bindings
func (m *LegacyMapping) ActiveSKUMappings() []SKUMapping {
	active := make([]SKUMapping, 0, len(m.SKUMappings))
	for _, s := range m.SKUMappings {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active
}

// RecordSyncResult stores the outcome of a legacy sync
func (m *LegacyMapping) RecordSyncResult(status LegacySyncStatus, errMsg string) {
	now := time.Now()
	m.LastSyncAt = &now
	m.LastSyncStatus = status
	m.LastSyncError = errMsg
	m.UpdatedAt = now
}

// LegacyMappingRepository reads the legacy table
type LegacyMappingRepository interface {
	FindByAccount(ctx context.Context, accountID uuid.UUID, activeOnly bool, cursor shared.Cursor) ([]LegacyMapping, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	Save(ctx context.Context, m *LegacyMapping) error
}
