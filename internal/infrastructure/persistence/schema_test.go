package persistence

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/migration"
	"github.com/erp/channelsync/internal/infrastructure/persistence/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// applySchema runs the embedded up migrations on a sqlite database.
// TIMESTAMPTZ is rewritten because the sqlite driver only parses times
// from columns declared as timestamp, datetime or date.
func applySchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	entries, err := migration.ListMigrations(migration.SchemaFS())
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	files, err := fs.Glob(migration.SchemaFS(), "*.up.sql")
	require.NoError(t, err)
	require.Len(t, files, len(entries))

	for _, name := range files {
		raw, err := fs.ReadFile(migration.SchemaFS(), name)
		require.NoError(t, err)

		var lines []string
		for _, line := range strings.Split(string(raw), "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		script := strings.ReplaceAll(strings.Join(lines, "\n"), "TIMESTAMPTZ", "TIMESTAMP")

		for _, stmt := range strings.Split(script, ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			require.NoError(t, db.Exec(stmt).Error, "%s: %s", name, stmt)
		}
	}
}

func TestSchema_StoresEveryModel(t *testing.T) {
	db := testutil.OpenSQLiteDB(t)
	applySchema(t, db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	accounts := NewGormAccountRepository(db)
	account, err := channel.NewAccount(channel.TypeTaobao, "shop-cn", map[string]any{"app_key": "k"})
	require.NoError(t, err)
	account.RecordDiscovery(now)
	require.NoError(t, accounts.Save(ctx, account))

	entries := NewGormTaxonomyRepository(db)
	material := &taxonomy.Entry{
		BaseEntity:   shared.NewBaseEntity(),
		AccountID:    account.ID,
		Type:         taxonomy.EntryTypeAttribute,
		ExternalID:   "A-1",
		Key:          "material",
		DataType:     taxonomy.DataTypeList,
		Required:     true,
		Rules:        taxonomy.Rules{Choices: []string{"cotton"}},
		LastSyncedAt: now,
		IsActive:     true,
	}
	require.NoError(t, entries.ApplySync(ctx, account.ID, taxonomy.SyncChanges{Create: []*taxonomy.Entry{material}}))

	products := NewGormCatalogRepository(db)
	product, err := catalog.NewProduct("TEE", "Tee")
	require.NoError(t, err)
	require.NoError(t, products.SaveProduct(ctx, product))
	variant, err := catalog.NewVariant(product.ID, "TEE-S", "Tee S")
	require.NoError(t, err)
	require.NoError(t, products.SaveVariant(ctx, variant))

	defs := NewGormDefinitionRepository(db)
	def, err := attribute.NewDefinition("material", "Material", taxonomy.DataTypeString, true)
	require.NoError(t, err)
	require.NoError(t, defs.Save(ctx, def))

	assignments := NewGormAssignmentRepository(db)
	assignment, err := attribute.NewAssignment(variant.Ref(), def.ID, "cotton")
	require.NoError(t, err)
	assignment.RecordValidation(nil, now)
	require.NoError(t, assignments.Save(ctx, assignment))

	links := NewGormLinkRepository(db)
	productLink, err := link.NewProductLink(account.ID, product.ID, "P-1")
	require.NoError(t, err)
	require.NoError(t, productLink.MarkStatus(link.StatusLinked, "", now))
	require.NoError(t, links.Save(ctx, productLink))
	variantLink, err := link.NewVariantLink(account.ID, variant.ID, "V-1", productLink)
	require.NoError(t, err)
	require.NoError(t, links.Save(ctx, variantLink))

	legacy := NewGormLegacyMappingRepository(db)
	mapping, err := link.NewLegacyMapping(account.ID, product.ID, "P-1")
	require.NoError(t, err)
	require.NoError(t, mapping.AddSKUMapping(variant.ID, "V-1"))
	require.NoError(t, legacy.Save(ctx, mapping))

	t.Run("assignment validation time round trips", func(t *testing.T) {
		reloaded, err := assignments.FindByID(ctx, assignment.ID)
		require.NoError(t, err)
		assert.Equal(t, attribute.ValidationValid, reloaded.Status)
		require.NotNil(t, reloaded.ValidatedAt)
		assert.True(t, now.Equal(*reloaded.ValidatedAt))
	})

	t.Run("rows read back through every repository", func(t *testing.T) {
		found, err := accounts.FindByName(ctx, "shop-cn")
		require.NoError(t, err)
		require.NotNil(t, found.LastDiscoveredAt)

		stats, err := entries.CountByAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.RequiredAttributes)

		children, err := links.FindChildren(ctx, productLink.ID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, variantLink.ID, children[0].ID)

		page, err := legacy.FindByAccount(ctx, account.ID, true, shared.FirstPage(10))
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Len(t, page[0].SKUMappings, 1)
	})
}
