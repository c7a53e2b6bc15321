package link

import (
	"time"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Level
// ---------------------------------------------------------------------------

// Level is the hierarchy level of a binding
type Level string

const (
	LevelProduct Level = "PRODUCT"
	LevelVariant Level = "VARIANT"
)

// IsValid returns true if the level is known
func (l Level) IsValid() bool {
	return l == LevelProduct || l == LevelVariant
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the confirmation state of a binding
type Status string

const (
	StatusPending Status = "PENDING"
	StatusLinked  Status = "LINKED"
	StatusFailed  Status = "FAILED"
)

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusLinked, StatusFailed:
		return true
	default:
		return false
	}
}

// transitions lists the statuses reachable through MarkStatus.
// LINKED -> PENDING is only reachable through Unlink.
var transitions = map[Status][]Status{
	StatusPending: {StatusLinked, StatusFailed},
	StatusFailed:  {StatusPending},
}

// CanTransitionTo reports whether MarkStatus may move s to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Link
// ---------------------------------------------------------------------------

// Data carries the optional attributes of an upsert
type Data struct {
	ExternalSKU string
	Metadata    map[string]any
	LinkedBy    string
}

// Link binds an internal product or variant to an external entity
type Link struct {
	shared.BaseEntity
	AccountID         uuid.UUID
	Level             Level
	Entity            catalog.EntityRef
	ExternalProductID string
	// ExternalVariantID is empty for product links and for variant
	// placeholders created by fan-out
	ExternalVariantID string
	ExternalSKU       string
	Status            Status
	ParentLinkID      *uuid.UUID
	Metadata          map[string]any
	LinkedAt          *time.Time
	LinkedBy          string
	LastError         string
}

// NewProductLink creates a PENDING product-level link
func NewProductLink(accountID, productID uuid.UUID, externalProductID string) (*Link, error) {
	if accountID == uuid.Nil {
		return nil, ErrLinkInvalidAccount
	}
	if productID == uuid.Nil {
		return nil, ErrLinkInvalidEntity
	}
	return &Link{
		BaseEntity:        shared.NewBaseEntity(),
		AccountID:         accountID,
		Level:             LevelProduct,
		Entity:            catalog.ProductRef(productID),
		ExternalProductID: externalProductID,
		Status:            StatusPending,
		Metadata:          map[string]any{},
	}, nil
}

// NewVariantLink creates a PENDING variant-level link. parent may be nil;
// when given it must pass CheckParent.
func NewVariantLink(accountID, variantID uuid.UUID, externalVariantID string, parent *Link) (*Link, error) {
	if accountID == uuid.Nil {
		return nil, ErrLinkInvalidAccount
	}
	if variantID == uuid.Nil {
		return nil, ErrLinkInvalidEntity
	}
	l := &Link{
		BaseEntity:        shared.NewBaseEntity(),
		AccountID:         accountID,
		Level:             LevelVariant,
		Entity:            catalog.VariantRef(variantID),
		ExternalVariantID: externalVariantID,
		Status:            StatusPending,
		Metadata:          map[string]any{},
	}
	if parent != nil {
		if err := l.CheckParent(parent); err != nil {
			return nil, err
		}
		l.SetParent(parent)
	}
	return l, nil
}

// ExternalID returns the external identifier appropriate to the level
func (l *Link) ExternalID() string {
	if l.Level == LevelVariant {
		return l.ExternalVariantID
	}
	return l.ExternalProductID
}

// IsPlaceholder reports whether a variant link still waits for its external id
func (l *Link) IsPlaceholder() bool {
	return l.Level == LevelVariant && l.ExternalVariantID == ""
}

// CheckParent verifies that parent may own this variant link
func (l *Link) CheckParent(parent *Link) error {
	if l.Level != LevelVariant {
		return NewIntegrityError("set parent", "only variant links have a parent")
	}
	if parent.Level != LevelProduct {
		return &IntegrityError{Op: "set parent", LinkID: parent.ID, Reason: "parent is not a product link"}
	}
	if parent.AccountID != l.AccountID {
		return &IntegrityError{Op: "set parent", LinkID: parent.ID, Reason: "parent belongs to another account"}
	}
	return nil
}

// SetParent attaches the link to parent without checking it
func (l *Link) SetParent(parent *Link) {
	id := parent.ID
	l.ParentLinkID = &id
	l.ExternalProductID = parent.ExternalProductID
	l.Touch()
}

// DetachParent clears the parent reference
func (l *Link) DetachParent() {
	l.ParentLinkID = nil
	l.Touch()
}

// Apply merges optional upsert data into the link
func (l *Link) Apply(data Data) {
	if data.ExternalSKU != "" {
		l.ExternalSKU = data.ExternalSKU
	}
	if len(data.Metadata) > 0 {
		if l.Metadata == nil {
			l.Metadata = map[string]any{}
		}
		for k, v := range data.Metadata {
			l.Metadata[k] = v
		}
	}
	if data.LinkedBy != "" {
		l.LinkedBy = data.LinkedBy
	}
	l.Touch()
}

// Rebind moves the binding to a new external id. A rebind of a confirmed
// binding needs a new confirmation, so the status goes back to PENDING.
func (l *Link) Rebind(externalID string) {
	if l.ExternalID() == externalID {
		return
	}
	if l.Level == LevelVariant {
		l.ExternalVariantID = externalID
	} else {
		l.ExternalProductID = externalID
	}
	l.Status = StatusPending
	l.LinkedAt = nil
	l.LastError = ""
	l.Touch()
}

// MarkStatus moves the link to status. Same status is a no-op.
func (l *Link) MarkStatus(status Status, reason string, now time.Time) error {
	if !status.IsValid() {
		return ErrLinkInvalidStatus
	}
	if status == l.Status {
		return nil
	}
	if !l.Status.CanTransitionTo(status) {
		return ErrLinkInvalidTransition
	}

	switch status {
	case StatusLinked:
		if l.ExternalID() == "" {
			return ErrLinkMissingExternalID
		}
		l.LinkedAt = &now
		l.LastError = ""
	case StatusFailed:
		l.LastError = reason
	case StatusPending:
		l.LastError = ""
	}
	l.Status = status
	l.UpdatedAt = now
	return nil
}

// Unlink returns a LINKED binding to PENDING
func (l *Link) Unlink(now time.Time) error {
	if l.Status != StatusLinked {
		return ErrLinkNotLinked
	}
	l.Status = StatusPending
	l.LinkedAt = nil
	l.UpdatedAt = now
	return nil
}
