package shared

import (
	"context"

	"github.com/google/uuid"
)

// TxManager runs a unit of work inside a single database transaction.
// Repositories called with the ctx passed to fn join that transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Cursor is keyset pagination over UUID primary keys, used by batch jobs
// that walk whole tables in bounded chunks.
type Cursor struct {
	// After is the last ID of the previous page (uuid.Nil for the first page)
	After uuid.UUID
	// Limit is the page size
	Limit int
}

// FirstPage returns a cursor for the first page of the given size
func FirstPage(limit int) Cursor {
	return Cursor{Limit: limit}
}

// Next returns the cursor following a page whose last ID is lastID
func (c Cursor) Next(lastID uuid.UUID) Cursor {
	return Cursor{After: lastID, Limit: c.Limit}
}
