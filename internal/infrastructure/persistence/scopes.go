package persistence

import (
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountScope restricts a query to one channel account
func AccountScope(accountID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("account_id = ?", accountID)
	}
}

// AccountsScope restricts a query to a set of accounts; an empty set means all
func AccountsScope(accountIDs []uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(accountIDs) == 0 {
			return db
		}
		return db.Where("account_id IN ?", accountIDs)
	}
}

// KeysetScope pages by primary key. A zero limit means no limit.
func KeysetScope(cursor shared.Cursor) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if cursor.After != uuid.Nil {
			db = db.Where("id > ?", cursor.After)
		}
		db = db.Order("id ASC")
		if cursor.Limit > 0 {
			db = db.Limit(cursor.Limit)
		}
		return db
	}
}
