package channel

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound     = errors.New("channel: account not found")
	ErrAccountInactive     = errors.New("channel: account is inactive")
	ErrAccountInvalidName  = errors.New("channel: account name is required")
	ErrAccountInvalidType  = errors.New("channel: invalid channel type")
	ErrAccountNameConflict = errors.New("channel: account name already used by another channel type")
)

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// Type identifies the marketplace a channel account connects to
type Type string

const (
	TypeShopify Type = "SHOPIFY"
	TypeEbay    Type = "EBAY"
	TypeAmazon  Type = "AMAZON"
	TypeMirakl  Type = "MIRAKL"
	TypeTaobao  Type = "TAOBAO"
	TypeDouyin  Type = "DOUYIN"
)

// IsValid returns true if the channel type is known
func (t Type) IsValid() bool {
	switch t {
	case TypeShopify, TypeEbay, TypeAmazon, TypeMirakl, TypeTaobao, TypeDouyin:
		return true
	default:
		return false
	}
}

// String returns the string representation of Type
func (t Type) String() string {
	return string(t)
}

// DisplayName returns a human-readable name for the channel
func (t Type) DisplayName() string {
	switch t {
	case TypeShopify:
		return "Shopify"
	case TypeEbay:
		return "eBay"
	case TypeAmazon:
		return "Amazon"
	case TypeMirakl:
		return "Mirakl"
	case TypeTaobao:
		return "Taobao/Tmall"
	case TypeDouyin:
		return "Douyin"
	default:
		return string(t)
	}
}

// ParseType parses a channel type case-insensitively
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrAccountInvalidType
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

// Account is one configured connection to an external marketplace.
// Accounts are never deleted while links reference them; Deactivate instead.
type Account struct {
	shared.BaseEntity
	Type     Type
	Name     string
	IsActive bool
	// Settings is opaque adapter configuration
	Settings map[string]any
	// LastDiscoveredAt is when schema discovery last succeeded
	LastDiscoveredAt *time.Time
}

// NewAccount creates an active account
func NewAccount(channelType Type, name string, settings map[string]any) (*Account, error) {
	if !channelType.IsValid() {
		return nil, ErrAccountInvalidType
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrAccountInvalidName
	}
	if settings == nil {
		settings = make(map[string]any)
	}
	return &Account{
		BaseEntity: shared.NewBaseEntity(),
		Type:       channelType,
		Name:       name,
		IsActive:   true,
		Settings:   settings,
	}, nil
}

// Activate activates this account
func (a *Account) Activate() {
	a.IsActive = true
	a.Touch()
}

// Deactivate soft-deletes this account
func (a *Account) Deactivate() {
	a.IsActive = false
	a.Touch()
}

// RecordDiscovery stamps a successful discovery pass
func (a *Account) RecordDiscovery(at time.Time) {
	a.LastDiscoveredAt = &at
	a.Touch()
}

// DiscoveryDue reports whether the account has not been discovered within window
func (a *Account) DiscoveryDue(now time.Time, window time.Duration) bool {
	if a.LastDiscoveredAt == nil {
		return true
	}
	return now.Sub(*a.LastDiscoveredAt) >= window
}

// SettingString returns a string setting or def
func (a *Account) SettingString(key, def string) string {
	if v, ok := a.Settings[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ---------------------------------------------------------------------------
// AccountRepository
// ---------------------------------------------------------------------------

// AccountRepository persists channel accounts
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Account, error)
	FindByName(ctx context.Context, name string) (*Account, error)
	FindActive(ctx context.Context) ([]Account, error)
	FindAll(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, account *Account) error
}
