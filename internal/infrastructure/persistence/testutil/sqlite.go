// Package testutil opens throwaway databases for repository and service tests.
package testutil

import (
	"testing"

	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewSQLiteDB opens a migrated in-memory sqlite database that is closed
// when the test ends.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	db := OpenSQLiteDB(t)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// OpenSQLiteDB opens an empty in-memory sqlite database for tests that
// build the schema themselves.
func OpenSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 logger.NewGormLogger(zaptest.NewLogger(t), gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every statement must see the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
