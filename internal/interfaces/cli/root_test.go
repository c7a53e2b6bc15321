package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailures, ExitCode(ErrRunFailed))
	assert.Equal(t, ExitFailures, ExitCode(fmt.Errorf("discover: %w", ErrRunFailed)))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
}

const shopSchemaYAML = `
categories:
  - id: "100"
    key: apparel
    name: Apparel
  - id: "110"
    key: tops
    name: Tops
    parent: "100"
attributes:
  - id: "A1"
    key: material
    name: Material
    type: LIST
    required: true
    values:
      - id: "V1"
        value: Cotton
      - id: "V2"
        value: Linen
  - id: "A2"
    key: weight
    type: DECIMAL
`

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	schemas := filepath.Join(dir, "schemas")
	require.NoError(t, os.MkdirAll(schemas, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemas, "shop-a.yaml"), []byte(shopSchemaYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.yaml"), []byte("accounts:\n  - name: shop-a\n    type: shopify\n"), 0o600))

	config := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf(`[database]
driver = "sqlite"
path = %q

[log]
level = "error"
output = "stderr"

[discovery]
schema_dir = %q
`, filepath.Join(dir, "sync.db"), schemas)
	require.NoError(t, os.WriteFile(config, []byte(body), 0o600))
	return &workspace{dir: dir, config: config}
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", w.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_EndToEnd(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "accounts", "import", filepath.Join(ws.dir, "accounts.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "created: 1")

	out, err = ws.run(t, "discover", "--format", "json")
	require.NoError(t, err)
	var summary struct {
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
		Totals     struct {
			Fields         int `json:"fields"`
			RequiredFields int `json:"required_fields"`
			Values         int `json:"values"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Totals.Fields)
	assert.Equal(t, 1, summary.Totals.RequiredFields)
	assert.Equal(t, 2, summary.Totals.Values)

	// discovered within the freshness window
	out, err = ws.run(t, "discover", "--account", "shop-a", "--format", "json")
	require.NoError(t, err)
	var again struct {
		Skipped int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, 1, again.Skipped)

	out, err = ws.run(t, "health", "--account", "shop-a", "--format", "json")
	require.NoError(t, err)
	var health struct {
		Score int `json:"score"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &health))
	assert.Greater(t, health.Score, 0)

	out, err = ws.run(t, "validate", "--format", "json")
	require.NoError(t, err)
	var report struct {
		Issues []json.RawMessage `json:"issues"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Issues)

	out, err = ws.run(t, "accounts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "shop-a")
}

func TestCommands_UnknownAccountIsAnError(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "discover", "--account", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestCommands_InvalidFormat(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "discover", "--format", "xml")
	assert.Error(t, err)
}

func TestCommands_MigrateList(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "db", "migrate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "000001")

	_, err = ws.run(t, "db", "migrate", "up")
	require.NoError(t, err)

	_, err = ws.run(t, "db", "migrate", "version")
	assert.ErrorIs(t, err, errSQLiteMigrations)
}
