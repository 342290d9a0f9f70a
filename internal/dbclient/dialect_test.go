package dbclient

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"dyntables/internal/codec"
	"dyntables/internal/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDollarRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b LIKE ? ESCAPE '!' AND c = '?'`
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b LIKE $2 ESCAPE '!' AND c = '?'`, Postgres{}.Rebind(q))
	assert.Equal(t, q, SQLite{}.Rebind(q))
	assert.Equal(t, q, MySQL{}.Rebind(q))
}

func TestClassifyPostgres(t *testing.T) {
	d := Postgres{}
	assert.ErrorIs(t, d.Classify(&pq.Error{Code: "42P01"}), domain.ErrTableNotProvisioned)
	assert.ErrorIs(t, d.Classify(fmt.Errorf("insert: %w", &pq.Error{Code: "42703"})), domain.ErrSchemaMismatch)
	assert.ErrorIs(t, d.Classify(&pq.Error{Code: "42701"}), ErrDuplicateColumn)
	assert.NoError(t, d.Classify(&pq.Error{Code: "23505"}))
	assert.NoError(t, d.Classify(errors.New("connection refused")))
}

func TestClassifyMySQL(t *testing.T) {
	d := MySQL{}
	assert.ErrorIs(t, d.Classify(&mysql.MySQLError{Number: 1146}), domain.ErrTableNotProvisioned)
	assert.ErrorIs(t, d.Classify(&mysql.MySQLError{Number: 1054}), domain.ErrSchemaMismatch)
	assert.ErrorIs(t, d.Classify(&mysql.MySQLError{Number: 1060}), ErrDuplicateColumn)
	assert.NoError(t, d.Classify(&mysql.MySQLError{Number: 1062}))
}

func TestSQLiteAgainstRealDatabase(t *testing.T) {
	db, d, err := Open(domain.BackendConfig{Driver: domain.BackendSQLite, Path: filepath.Join(t.TempDir(), "x.db")}, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	cols, err := d.Columns(ctx, db, "missing")
	require.NoError(t, err)
	assert.Empty(t, cols)

	_, err = db.ExecContext(ctx, `SELECT * FROM missing`)
	assert.ErrorIs(t, d.Classify(err), domain.ErrTableNotProvisioned)

	_, err = db.ExecContext(ctx, `CREATE TABLE t (id TEXT PRIMARY KEY, col_a `+d.SQLType(codec.StorageNumeric)+`)`)
	require.NoError(t, err)

	cols, err = d.Columns(ctx, db, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "col_a"}, cols)

	_, err = db.ExecContext(ctx, `ALTER TABLE t ADD COLUMN col_a REAL`)
	assert.ErrorIs(t, d.Classify(err), ErrDuplicateColumn)

	_, err = db.ExecContext(ctx, `SELECT col_b FROM t`)
	assert.ErrorIs(t, d.Classify(err), domain.ErrSchemaMismatch)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 9, 10, 30, 0, 123000000, time.UTC)
	assert.True(t, want.Equal(ParseTime(SQLite{}.BindTime(want))))
	assert.True(t, want.Equal(ParseTime([]byte(want.Format(time.RFC3339Nano)))))
	assert.True(t, ParseTime("garbage").IsZero())
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor(domain.BackendPostgres)
	require.NoError(t, err)
	assert.Equal(t, "JSONB", d.SQLType(codec.StorageJSON))
	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestBuildDSN(t *testing.T) {
	cfg := domain.BackendConfig{Host: "db", Database: "app", Username: "u"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=app sslmode=disable", buildPostgresDSN(cfg, "p"))
	assert.Equal(t, "u:p@tcp(db:3306)/app?parseTime=true&charset=utf8mb4", buildMySQLDSN(cfg, "p"))
}

func TestSQLiteLowerFoldsUnicode(t *testing.T) {
	db, d, err := Open(domain.BackendConfig{Driver: domain.BackendSQLite, Path: filepath.Join(t.TempDir(), "x.db")}, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var got string
	require.NoError(t, db.QueryRow(`SELECT `+d.LowerExpr("?"), "ÉCOLE Ñandú").Scan(&got))
	assert.Equal(t, "école ñandú", got)

	var null *string
	require.NoError(t, db.QueryRow(`SELECT `+d.LowerExpr("NULL")).Scan(&null))
	assert.Nil(t, null)

	assert.Equal(t, "LOWER(x)", Postgres{}.LowerExpr("x"))
}
