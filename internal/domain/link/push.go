package link

import (
	"context"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/google/uuid"
)

// PushRequest is the internal catalog data sent to a channel
type PushRequest struct {
	Product  catalog.Product
	Variants []catalog.Variant
	// ExternalProductID is set when the product is already bound
	ExternalProductID string
}

// PushResult is what the channel reports back
type PushResult struct {
	Success            bool
	ExternalProductID  string
	ExternalVariantIDs map[uuid.UUID]string
	ExternalSKUs       map[uuid.UUID]string
	Metadata           map[string]any
	Error              string
}

// PushAdapter sends catalog data to one channel type
type PushAdapter interface {
	Push(ctx context.Context, account channel.Account, req PushRequest) (PushResult, error)
}
