// Package link maintains the product and variant bindings between the
// internal catalog and each channel account.
package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the link application service. Every write runs in a
// transaction so a product link and its variant placeholders commit together.
type Registry struct {
	links     link.Repository
	catalog   catalog.Reader
	accounts  channel.AccountRepository
	txManager shared.TxManager
	metrics   *telemetry.SyncMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a new Registry
func NewRegistry(
	links link.Repository,
	catalogReader catalog.Reader,
	accounts channel.AccountRepository,
	txManager shared.TxManager,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		links:     links,
		catalog:   catalogReader,
		accounts:  accounts,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics enables metric recording
func (r *Registry) SetMetrics(m *telemetry.SyncMetrics) {
	r.metrics = m
}

// ---------------------------------------------------------------------------
// Upserts
// ---------------------------------------------------------------------------

// UpsertProductLink binds productID to externalProductID in the account.
// An existing binding of the external id is updated in place; if it belongs
// to another product an *link.IntegrityError is returned. A product already
// bound to a different external id is rebound, which resets it to PENDING.
// Every active variant of the product gets a PENDING placeholder link.
func (r *Registry) UpsertProductLink(ctx context.Context, accountID, productID uuid.UUID, externalProductID string, data link.Data) (*link.Link, error) {
	if externalProductID == "" {
		return nil, link.ErrLinkEmptyExternalID
	}
	if _, err := r.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	if _, err := r.catalog.FindProduct(ctx, productID); err != nil {
		return nil, err
	}

	var result *link.Link
	err := r.txManager.WithinTx(ctx, func(ctx context.Context) error {
		l, created, err := r.bindProduct(ctx, accountID, productID, externalProductID)
		if err != nil {
			return err
		}
		l.Apply(data)
		if err := r.links.Save(ctx, l); err != nil {
			return err
		}
		if created {
			r.metrics.RecordLinkTransition(ctx, string(l.Level), string(l.Status))
		}

		placeholders, err := r.fanOut(ctx, l)
		if err != nil {
			return fmt.Errorf("fan out variant links: %w", err)
		}
		if placeholders > 0 {
			logger.FromContextOr(ctx, r.logger).Debug("Created variant placeholders",
				zap.String("link_id", l.ID.String()),
				zap.Int("count", placeholders),
			)
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// bindProduct returns the link to write for the product and whether it is new
func (r *Registry) bindProduct(ctx context.Context, accountID, productID uuid.UUID, externalID string) (*link.Link, bool, error) {
	bound, err := r.findOptional(r.links.FindByExternal(ctx, accountID, link.LevelProduct, externalID))
	if err != nil {
		return nil, false, err
	}
	if bound != nil {
		if bound.Entity.ID != productID {
			return nil, false, &link.IntegrityError{
				Op:     "upsert product link",
				LinkID: bound.ID,
				Reason: fmt.Sprintf("external product %s is bound to another product", externalID),
			}
		}
		return bound, false, nil
	}

	existing, err := r.findOptional(r.links.FindByEntity(ctx, accountID, catalog.ProductRef(productID)))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		existing.Rebind(externalID)
		if err := r.propagateProductID(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	l, err := link.NewProductLink(accountID, productID, externalID)
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

// propagateProductID copies a rebound product id onto the children
func (r *Registry) propagateProductID(ctx context.Context, parent *link.Link) error {
	children, err := r.links.FindChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	for i := range children {
		child := &children[i]
		if child.ExternalProductID == parent.ExternalProductID {
			continue
		}
		child.SetParent(parent)
		if err := r.links.Save(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// fanOut fills in the variant links of parent in the account
func (r *Registry) fanOut(ctx context.Context, parent *link.Link) (int, error) {
	return FanOut(ctx, r.links, r.catalog, r.metrics, parent)
}

// FanOut creates a PENDING placeholder for every active variant of the
// product that has no link in the account yet, and adopts orphaned ones.
// It returns the number of placeholders created.
func FanOut(ctx context.Context, links link.Repository, catalogReader catalog.Reader, metrics *telemetry.SyncMetrics, parent *link.Link) (int, error) {
	variants, err := catalogReader.FindVariantsByProduct(ctx, parent.Entity.ID)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range variants {
		v := &variants[i]
		if !v.IsActive {
			continue
		}
		existing, err := links.FindByEntity(ctx, parent.AccountID, v.Ref())
		switch {
		case errors.Is(err, link.ErrLinkNotFound):
		case err != nil:
			return created, err
		default:
			if existing.ParentLinkID == nil {
				existing.SetParent(parent)
				if err := links.Save(ctx, existing); err != nil {
					return created, err
				}
			}
			continue
		}

		placeholder, err := link.NewVariantLink(parent.AccountID, v.ID, "", parent)
		if err != nil {
			return created, err
		}
		if err := links.Save(ctx, placeholder); err != nil {
			return created, err
		}
		metrics.RecordLinkTransition(ctx, string(placeholder.Level), string(placeholder.Status))
		created++
	}
	return created, nil
}

// UpsertVariantLink binds variantID to externalVariantID in the account.
// parent, when given, must be a product link of the same account that binds
// the variant's product; otherwise the account's link for that product is
// used when one exists. Placeholders created by fan-out are filled in place.
func (r *Registry) UpsertVariantLink(ctx context.Context, accountID, variantID uuid.UUID, externalVariantID string, parent *link.Link, data link.Data) (*link.Link, error) {
	if externalVariantID == "" {
		return nil, link.ErrLinkEmptyExternalID
	}
	if _, err := r.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	variant, err := r.catalog.FindVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		if err := checkVariantParent(accountID, variant, parent); err != nil {
			return nil, err
		}
	}

	var result *link.Link
	err = r.txManager.WithinTx(ctx, func(ctx context.Context) error {
		l, created, err := r.bindVariant(ctx, accountID, variantID, externalVariantID)
		if err != nil {
			return err
		}

		if parent == nil && l.ParentLinkID == nil {
			if parent, err = r.findOptional(r.links.FindByEntity(ctx, accountID, variant.ParentRef())); err != nil {
				return err
			}
		}
		if parent != nil {
			l.SetParent(parent)
		}

		l.Apply(data)
		if err := r.links.Save(ctx, l); err != nil {
			return err
		}
		if created {
			r.metrics.RecordLinkTransition(ctx, string(l.Level), string(l.Status))
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Registry) bindVariant(ctx context.Context, accountID, variantID uuid.UUID, externalID string) (*link.Link, bool, error) {
	bound, err := r.findOptional(r.links.FindByExternal(ctx, accountID, link.LevelVariant, externalID))
	if err != nil {
		return nil, false, err
	}
	if bound != nil {
		if bound.Entity.ID != variantID {
			return nil, false, &link.IntegrityError{
				Op:     "upsert variant link",
				LinkID: bound.ID,
				Reason: fmt.Sprintf("external variant %s is bound to another variant", externalID),
			}
		}
		return bound, false, nil
	}

	existing, err := r.findOptional(r.links.FindByEntity(ctx, accountID, catalog.VariantRef(variantID)))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		existing.Rebind(externalID)
		return existing, false, nil
	}

	l, err := link.NewVariantLink(accountID, variantID, externalID, nil)
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

func checkVariantParent(accountID uuid.UUID, variant *catalog.Variant, parent *link.Link) error {
	candidate := &link.Link{AccountID: accountID, Level: link.LevelVariant}
	if err := candidate.CheckParent(parent); err != nil {
		return err
	}
	if parent.Entity.ID != variant.ProductID {
		return &link.IntegrityError{
			Op:     "set parent",
			LinkID: parent.ID,
			Reason: "variant does not belong to the parent's product",
		}
	}
	return nil
}

func (r *Registry) findOptional(l *link.Link, err error) (*link.Link, error) {
	if errors.Is(err, link.ErrLinkNotFound) {
		return nil, nil
	}
	return l, err
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// FindByExternal returns the link carrying externalID at level
func (r *Registry) FindByExternal(ctx context.Context, accountID uuid.UUID, level link.Level, externalID string) (*link.Link, error) {
	if !level.IsValid() {
		return nil, link.ErrLinkInvalidLevel
	}
	return r.links.FindByExternal(ctx, accountID, level, externalID)
}

// FindByEntity returns the link binding ref in the account
func (r *Registry) FindByEntity(ctx context.Context, accountID uuid.UUID, ref catalog.EntityRef) (*link.Link, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return r.links.FindByEntity(ctx, accountID, ref)
}

// Get returns a link by id
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*link.Link, error) {
	return r.links.FindByID(ctx, id)
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// MarkStatus moves l to status and persists it. Setting the current status
// again is a no-op.
func (r *Registry) MarkStatus(ctx context.Context, l *link.Link, status link.Status, reason string) error {
	if l.Status == status {
		return nil
	}
	if err := l.MarkStatus(status, reason, r.now()); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, l.Status, status)
	}
	if err := r.links.Save(ctx, l); err != nil {
		return err
	}
	r.metrics.RecordLinkTransition(ctx, string(l.Level), string(status))
	return nil
}

// Unlink returns a LINKED binding to PENDING
func (r *Registry) Unlink(ctx context.Context, l *link.Link) error {
	if err := l.Unlink(r.now()); err != nil {
		return err
	}
	if err := r.links.Save(ctx, l); err != nil {
		return err
	}
	r.metrics.RecordLinkTransition(ctx, string(l.Level), string(link.StatusPending))
	return nil
}
