package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add links table", "add_links_table"},
		{"Add-Links-Table", "add_links_table"},
		{"ADD_LINKS_TABLE", "add_links_table"},
		{"add__links__table", "add_links_table"},
		{"Index 2 taxonomy", "index_2_taxonomy"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add link notes", "Free-form notes on links")
	require.NoError(t, err)
	assert.Equal(t, uint(1), mf.Version)
	assert.Equal(t, "000001_add_link_notes.up.sql", filepath.Base(mf.UpPath))
	assert.Equal(t, "000001_add_link_notes.down.sql", filepath.Base(mf.DownPath))

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add_link_notes")
	assert.Contains(t, string(up), "Free-form notes on links")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(down), "-- Rollback of add_link_notes"))
}

func TestCreateMigration_ContinuesNumbering(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"000001_init.up.sql", "000001_init.down.sql", "000007_later.up.sql", "000007_later.down.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("--"), 0o644))
	}

	mf, err := CreateMigration(dir, "next", "")
	require.NoError(t, err)
	assert.Equal(t, uint(8), mf.Version)
	assert.Equal(t, "000008_next.up.sql", filepath.Base(mf.UpPath))
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "sql")

	_, err := CreateMigration(nested, "first", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_EmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_links.up.sql":     {Data: []byte("--")},
		"000002_links.down.sql":   {Data: []byte("--")},
		"000001_init.up.sql":      {Data: []byte("--")},
		"000001_init.down.sql":    {Data: []byte("--")},
		"README.md":               {Data: []byte("docs")},
		"nodigits_x.up.sql":       {Data: []byte("--")},
		"000003_dir.up.sql/x.sql": {Data: []byte("--")},
	}

	entries, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Version: 1, Name: "init"}, {Version: 2, Name: "links"}}, entries)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	entries, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSchemaFS_EmbedsPairedMigrations(t *testing.T) {
	fsys := SchemaFS()
	entries, err := ListMigrations(fsys)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, uint(1), entries[0].Version)

	for _, e := range entries {
		down := fmt.Sprintf("%0*d_%s.down.sql", versionWidth, e.Version, e.Name)
		_, err := fs.Stat(fsys, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestSchemaFS_CreatesEveryModelTable(t *testing.T) {
	up, err := fs.ReadFile(SchemaFS(), "000001_create_sync_tables.up.sql")
	require.NoError(t, err)

	for _, m := range models.All() {
		tabler, ok := m.(interface{ TableName() string })
		require.True(t, ok, "%T has no TableName", m)
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+tabler.TableName()+" (")
	}
}
