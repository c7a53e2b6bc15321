package taxonomy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ValueListCache caches the value lists of list-typed attributes per account.
// A miss returns ok=false with a nil error.
type ValueListCache interface {
	Get(ctx context.Context, accountID uuid.UUID, attributeKey string) (values []string, ok bool, err error)
	Set(ctx context.Context, accountID uuid.UUID, attributeKey string, values []string, ttl time.Duration) error
	// InvalidateAccount drops every cached list of the account
	InvalidateAccount(ctx context.Context, accountID uuid.UUID) error
	Close() error
}
