package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/google/uuid"
)

const entityLink = "link"

// checkLinkParents flags variant links whose parent is missing, is not a
// product link or belongs to another account
func (v *Validator) checkLinkParents(ctx context.Context, batchSize int, emit emitFunc) error {
	level := link.LevelVariant
	return v.scanLinks(ctx, link.Filter{Level: &level}, batchSize, func(page []link.Link) error {
		var parentIDs []uuid.UUID
		for i := range page {
			if page[i].ParentLinkID != nil {
				parentIDs = append(parentIDs, *page[i].ParentLinkID)
			}
		}
		parents, err := v.links.FindByIDs(ctx, parentIDs)
		if err != nil {
			return err
		}

		for i := range page {
			l := &page[i]
			if l.ParentLinkID == nil {
				continue
			}
			reason := parentProblem(l, parents[*l.ParentLinkID])
			if reason == "" {
				continue
			}
			id := l.ID
			emit((&Issue{
				Severity: SeverityCritical,
				Entity:   entityLink,
				EntityID: id,
				Message:  reason,
			}).withFix(func(ctx context.Context) error {
				return v.repairParent(ctx, id, reason)
			}))
		}
		return nil
	})
}

func parentProblem(l *link.Link, parent *link.Link) string {
	if parent == nil {
		return fmt.Sprintf("parent link %s no longer exists", *l.ParentLinkID)
	}
	if err := l.CheckParent(parent); err != nil {
		var ie *link.IntegrityError
		if errors.As(err, &ie) {
			return ie.Reason
		}
		return err.Error()
	}
	return ""
}

// repairParent re-parents the link to the account's link of the variant's
// product, or fails and detaches it when there is none
func (v *Validator) repairParent(ctx context.Context, id uuid.UUID, reason string) error {
	l, err := v.links.FindByID(ctx, id)
	if err != nil {
		return err
	}

	candidate, err := v.productLinkFor(ctx, l)
	if err != nil {
		return err
	}
	if candidate != nil && l.CheckParent(candidate) == nil {
		l.SetParent(candidate)
		return v.links.Save(ctx, l)
	}

	now := v.now()
	if l.Status == link.StatusLinked {
		if err := l.Unlink(now); err != nil {
			return err
		}
	}
	if err := l.MarkStatus(link.StatusFailed, reason, now); err != nil {
		return err
	}
	l.DetachParent()
	if err := v.links.Save(ctx, l); err != nil {
		return err
	}
	v.metrics.RecordLinkTransition(ctx, string(l.Level), string(l.Status))
	return nil
}

func (v *Validator) productLinkFor(ctx context.Context, l *link.Link) (*link.Link, error) {
	variant, err := v.catalog.FindVariant(ctx, l.Entity.ID)
	if errors.Is(err, catalog.ErrVariantNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	candidate, err := v.links.FindByEntity(ctx, l.AccountID, variant.ParentRef())
	if errors.Is(err, link.ErrLinkNotFound) {
		return nil, nil
	}
	return candidate, err
}

// checkLinkedWithoutExternalID flags LINKED bindings missing the external
// id of their level
func (v *Validator) checkLinkedWithoutExternalID(ctx context.Context, batchSize int, emit emitFunc) error {
	status := link.StatusLinked
	return v.scanLinks(ctx, link.Filter{Status: &status}, batchSize, func(page []link.Link) error {
		for i := range page {
			l := &page[i]
			if l.ExternalID() != "" {
				continue
			}
			id := l.ID
			emit((&Issue{
				Severity: SeverityCritical,
				Entity:   entityLink,
				EntityID: id,
				Message:  fmt.Sprintf("%s link is LINKED without an external id", l.Level),
			}).withFix(func(ctx context.Context) error {
				current, err := v.links.FindByID(ctx, id)
				if err != nil {
					return err
				}
				if err := current.Unlink(v.now()); err != nil {
					return err
				}
				if err := v.links.Save(ctx, current); err != nil {
					return err
				}
				v.metrics.RecordLinkTransition(ctx, string(current.Level), string(current.Status))
				return nil
			}))
		}
		return nil
	})
}
