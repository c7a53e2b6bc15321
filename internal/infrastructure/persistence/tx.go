package persistence

import (
	"context"

	"github.com/erp/channelsync/internal/domain/shared"
	"gorm.io/gorm"
)

type txKey struct{}

// GormTxManager runs functions inside a gorm transaction carried by the context.
// Repositories pick the transaction up through conn, so every repository
// called with the returned context writes to the same transaction. Nested
// calls open a savepoint.
type GormTxManager struct {
	db *gorm.DB
}

// NewGormTxManager creates a new GormTxManager
func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

var _ shared.TxManager = (*GormTxManager)(nil)

// WithinTx implements shared.TxManager
func (m *GormTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return conn(ctx, m.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction stored in ctx, or db bound to ctx
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
