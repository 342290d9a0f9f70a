package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/app"
	"dyntables/internal/config"
	"dyntables/internal/domain"
)

// run executes the CLI against the sqlite file dbPath and returns stdout.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--config-dir", t.TempDir(),
		"--db", dbPath,
		"--owner", "owner-1",
		"--log-level", "error",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seedDatabase(t *testing.T, dbPath string) *domain.LogicalDatabase {
	t.Helper()
	v := config.New()
	v.Set("backend.path", dbPath)
	cfg, err := config.Load(v, t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	db, err := a.Databases.CreateDatabase(ctx, domain.CreateDatabaseInput{
		Name:    "People",
		OwnerID: "owner-1",
		Columns: []domain.ColumnDef{
			{ID: "name", Name: "Name", Type: domain.ColTypeText, Visible: true},
			{ID: "age", Name: "Age", Type: domain.ColTypeNumber, Visible: true},
		},
	}, false)
	require.NoError(t, err)
	return db
}

func TestVersion(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "v.db"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dyntables dev")
}

func TestImportAndSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	db := seedDatabase(t, dbPath)

	csvPath := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Name,Age\nAda,36\nAlan,41\n"), 0o644))

	out, err := run(t, dbPath, "import", db.ID, csvPath)
	require.NoError(t, err)
	var res domain.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.RowsImported)

	out, err = run(t, dbPath, "schema", "verify", db.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"tableExists": true`)

	out, err = run(t, dbPath, "schema", "list")
	require.NoError(t, err)
	assert.Contains(t, out, db.ID)
	assert.Contains(t, out, "People")
}

func TestImport_PartialFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	db := seedDatabase(t, dbPath)

	csvPath := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Name;Age\nAda;old\nAlan;41\n"), 0o644))

	out, err := run(t, dbPath, "import", "--delimiter", ";", db.ID, csvPath)
	require.ErrorIs(t, err, errPartialImport)
	var res domain.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.RowsImported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)
}

func TestImport_BadDelimiter(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "x.db"), "import", "--delimiter", ";;", "id", "file.csv")
	require.Error(t, err)
}
