package dbclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
)

// unicodeLower is registered on every SQLite connection. The built-in
// LOWER only folds ASCII.
const unicodeLower = "dyn_lower"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(unicodeLower, 1, lowerFunc); err != nil {
		panic(fmt.Sprintf("register %s: %v", unicodeLower, err))
	}
}

func lowerFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return strings.ToLower(fmt.Sprint(v)), nil
	}
}

// openSQLite opens a local SQLite file in WAL mode with a busy timeout.
// A single connection serializes writers.
func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLite is the dialect of the embedded backend.
type SQLite struct{}

func (SQLite) Driver() domain.BackendDriver { return domain.BackendSQLite }
func (SQLite) Quote(ident string) string    { return `"` + ident + `"` }
func (SQLite) Rebind(query string) string   { return questionRebind(query) }
func (SQLite) KeyType() string              { return "TEXT" }
func (SQLite) RowIDType() string            { return "TEXT" }
func (SQLite) TextExpr(expr string) string  { return expr }
func (SQLite) LowerExpr(expr string) string { return unicodeLower + "(" + expr + ")" }
func (SQLite) ReloadStatement() string      { return "" }

// Timestamps are stored as fixed-width UTC text so they sort lexically.
func (SQLite) BindTime(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) }

func (SQLite) SQLType(st codec.StorageType) string {
	switch st {
	case codec.StorageNumeric:
		return "REAL"
	case codec.StorageBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (SQLite) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	return scanNames(rows)
}

func (SQLite) Classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return domain.ErrTableNotProvisioned
	case strings.Contains(msg, "duplicate column name"):
		return ErrDuplicateColumn
	case strings.Contains(msg, "no such column"):
		return domain.ErrSchemaMismatch
	}
	return nil
}
