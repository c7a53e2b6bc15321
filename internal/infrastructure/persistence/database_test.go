package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB, Driver: "postgres"}, mock, mockDB
}

func TestNewDatabase_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", Path: "file::memory:", LogLevel: "silent"}

	db, err := NewDatabase(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate())
	assert.True(t, db.DB.Migrator().HasTable("channel_links"))
	assert.True(t, db.DB.Migrator().HasTable("product_mappings"))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()

	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.WaitDuration, time.Duration(0))
}

func TestScopes(t *testing.T) {
	type Row struct {
		ID        uuid.UUID
		AccountID uuid.UUID
	}

	t.Run("account scope", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		accountID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "rows" WHERE account_id = \$1`).
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id"}))

		var rows []Row
		require.NoError(t, db.DB.Scopes(AccountScope(accountID)).Find(&rows).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty accounts scope matches all", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "rows"$`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id"}))

		var rows []Row
		require.NoError(t, db.DB.Scopes(AccountsScope(nil)).Find(&rows).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keyset first page", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "rows" ORDER BY id ASC LIMIT \$1`).
			WithArgs(50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id"}))

		var rows []Row
		require.NoError(t, db.DB.Scopes(KeysetScope(shared.FirstPage(50))).Find(&rows).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keyset next page", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		last := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "rows" WHERE id > \$1 ORDER BY id ASC LIMIT \$2`).
			WithArgs(last, 50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id"}))

		var rows []Row
		require.NoError(t, db.DB.Scopes(KeysetScope(shared.FirstPage(50).Next(last))).Find(&rows).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormTxManager(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		tm := NewGormTxManager(db.DB)
		err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
			assert.NotNil(t, ctx.Value(txKey{}))
			return nil
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		tm := NewGormTxManager(db.DB)
		err := tm.WithinTx(context.Background(), func(ctx context.Context) error {
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
