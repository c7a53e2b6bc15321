package link

import (
	"context"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

// Filter narrows a link scan
type Filter struct {
	AccountIDs []uuid.UUID
	Level      *Level
	Status     *Status
}

// Reader defines read access to links
type Reader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Link, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Link, error)
	// FindByExternal returns ErrLinkNotFound when no link carries externalID
	FindByExternal(ctx context.Context, accountID uuid.UUID, level Level, externalID string) (*Link, error)
	FindByEntity(ctx context.Context, accountID uuid.UUID, ref catalog.EntityRef) (*Link, error)
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]Link, error)
	// Scan pages through links ordered by id
	Scan(ctx context.Context, filter Filter, cursor shared.Cursor) ([]Link, error)
}

// Writer defines write access to links
type Writer interface {
	// Save creates or updates a link. Uniqueness collisions are returned
	// as *IntegrityError.
	Save(ctx context.Context, l *Link) error
}

// Repository combines read and write access
type Repository interface {
	Reader
	Writer
}
