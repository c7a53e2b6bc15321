package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublishedBy is recorded as linked_by on bindings confirmed by a push
const PublishedBy = "publisher"

// ErrNoPushAdapter is returned when no adapter serves the account's channel
var ErrNoPushAdapter = errors.New("link: no push adapter for channel type")

// PublishResult reports the outcome of one product push
type PublishResult struct {
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	ProductLink  *link.Link   `json:"product_link,omitempty"`
	VariantLinks []*link.Link `json:"variant_links,omitempty"`
	// Pending counts variants the channel did not confirm yet
	Pending int `json:"pending"`
}

// Publisher pushes catalog products to channels and records the bindings
// the channel reports back
type Publisher struct {
	registry *Registry
	adapters map[channel.Type]link.PushAdapter
}

// NewPublisher creates a new Publisher
func NewPublisher(registry *Registry) *Publisher {
	return &Publisher{
		registry: registry,
		adapters: make(map[channel.Type]link.PushAdapter),
	}
}

// RegisterAdapter sets the push adapter for channelType
func (p *Publisher) RegisterAdapter(channelType channel.Type, adapter link.PushAdapter) {
	p.adapters[channelType] = adapter
}

// PublishProduct pushes the product and its variants to the account.
// On success the product link and every variant the channel returned an id
// for become LINKED. On rejection an existing PENDING product link becomes
// FAILED with the channel's reason. Rejections are reported in the result,
// not as an error.
func (p *Publisher) PublishProduct(ctx context.Context, accountID, productID uuid.UUID) (*PublishResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "link", "publish_product",
		telemetry.WithAttribute(string(telemetry.AttrAccountID), accountID.String()),
		telemetry.WithAttribute("product_id", productID.String()),
	)
	defer span.End()

	r := p.registry
	account, err := r.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, channel.ErrAccountInactive
	}
	adapter, ok := p.adapters[account.Type]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoPushAdapter, account.Type)
	}

	product, err := r.catalog.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	variants, err := r.catalog.FindVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	existing, err := r.findOptional(r.links.FindByEntity(ctx, accountID, catalog.ProductRef(productID)))
	if err != nil {
		return nil, err
	}

	req := link.PushRequest{Product: *product, Variants: variants}
	if existing != nil {
		req.ExternalProductID = existing.ExternalProductID
	}

	log := logger.FromContextOr(ctx, r.logger).With(zap.String("product_id", productID.String()))
	res, pushErr := adapter.Push(ctx, *account, req)
	if pushErr != nil || !res.Success {
		reason := res.Error
		if pushErr != nil {
			reason = pushErr.Error()
		}
		telemetry.RecordError(span, errors.New(reason))
		log.Warn("Channel rejected product", zap.String("reason", reason))
		if err := p.recordFailure(ctx, existing, reason); err != nil {
			return nil, err
		}
		return &PublishResult{Success: false, Error: reason, ProductLink: existing}, nil
	}

	result := &PublishResult{Success: true}
	err = r.txManager.WithinTx(ctx, func(ctx context.Context) error {
		pl, err := r.UpsertProductLink(ctx, accountID, productID, res.ExternalProductID, link.Data{
			ExternalSKU: product.SKU,
			Metadata:    res.Metadata,
			LinkedBy:    PublishedBy,
		})
		if err != nil {
			return err
		}
		if err := p.confirm(ctx, pl); err != nil {
			return err
		}
		result.ProductLink = pl

		for i := range variants {
			v := &variants[i]
			extID := res.ExternalVariantIDs[v.ID]
			if extID == "" {
				if v.IsActive {
					result.Pending++
				}
				continue
			}
			sku := res.ExternalSKUs[v.ID]
			if sku == "" {
				sku = v.SKU
			}
			vl, err := r.UpsertVariantLink(ctx, accountID, v.ID, extID, pl, link.Data{ExternalSKU: sku, LinkedBy: PublishedBy})
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.SKU, err)
			}
			if err := p.confirm(ctx, vl); err != nil {
				return err
			}
			result.VariantLinks = append(result.VariantLinks, vl)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	log.Info("Product published",
		zap.String("external_product_id", res.ExternalProductID),
		zap.Int("variants_linked", len(result.VariantLinks)),
		zap.Int("variants_pending", result.Pending),
	)
	return result, nil
}

// confirm moves a binding to LINKED, retrying through PENDING when it failed before
func (p *Publisher) confirm(ctx context.Context, l *link.Link) error {
	if l.Status == link.StatusFailed {
		if err := p.registry.MarkStatus(ctx, l, link.StatusPending, ""); err != nil {
			return err
		}
	}
	return p.registry.MarkStatus(ctx, l, link.StatusLinked, "")
}

func (p *Publisher) recordFailure(ctx context.Context, existing *link.Link, reason string) error {
	if existing == nil || existing.Status != link.StatusPending {
		return nil
	}
	return p.registry.MarkStatus(ctx, existing, link.StatusFailed, reason)
}
