package link

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrLinkNotFound          = errors.New("link: not found")
	ErrLinkInvalidAccount    = errors.New("link: invalid account id")
	ErrLinkInvalidEntity     = errors.New("link: invalid internal entity")
	ErrLinkInvalidLevel      = errors.New("link: invalid level")
	ErrLinkInvalidStatus     = errors.New("link: invalid status")
	ErrLinkMissingExternalID = errors.New("link: linked status requires an external id")
	ErrLinkEmptyExternalID   = errors.New("link: external id is required")
	ErrLinkInvalidTransition = errors.New("link: status transition not allowed")
	ErrLinkNotLinked         = errors.New("link: only linked bindings can be unlinked")
	ErrLegacyNotFound        = errors.New("link: legacy mapping not found")
	ErrLegacyInvalidProduct  = errors.New("link: legacy mapping has invalid product id")
	ErrLegacyInvalidExternal = errors.New("link: legacy mapping has empty external product id")
	ErrLegacyInvalidSKU      = errors.New("link: invalid legacy sku mapping")
)

// IntegrityError reports an operation that would break a registry invariant:
// cross-account parents, wrong parent level, or a uniqueness collision.
type IntegrityError struct {
	Op     string
	LinkID uuid.UUID
	Reason string
	Err    error
}

// NewIntegrityError creates an integrity error for op
func NewIntegrityError(op, reason string) *IntegrityError {
	return &IntegrityError{Op: op, Reason: reason}
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("link: integrity violation in %s: %s", e.Op, e.Reason)
	if e.LinkID != uuid.Nil {
		msg += " (link " + e.LinkID.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrityError reports whether err wraps an IntegrityError
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
