package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
)

// ErrDuplicateColumn is returned by Classify when an ALTER TABLE adds a
// column that already exists.
var ErrDuplicateColumn = errors.New("duplicate column")

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect hides the SQL differences between the supported backends.
// Queries are written with '?' placeholders and passed through Rebind.
type Dialect interface {
	Driver() domain.BackendDriver
	Quote(ident string) string
	Rebind(query string) string

	// SQLType is the column type used for a storage type.
	SQLType(st codec.StorageType) string
	// KeyType is the type of text primary keys in metadata tables.
	KeyType() string
	// RowIDType is the type of the wide-table id column.
	RowIDType() string

	// TextExpr casts expr to text so LIKE works on any column.
	TextExpr(expr string) string
	// LowerExpr lowercases a text expression with full Unicode folding, the
	// same way strings.ToLower does.
	LowerExpr(expr string) string
	BindTime(t time.Time) any

	// Columns lists the physical columns of table. A missing table yields
	// an empty list, not an error.
	Columns(ctx context.Context, q Querier, table string) ([]string, error)

	// Classify maps a driver error to ErrTableNotProvisioned,
	// ErrSchemaMismatch or ErrDuplicateColumn. It returns nil for anything else.
	Classify(err error) error

	// ReloadStatement asks a schema-caching proxy to refresh. Empty when the
	// backend has no such mechanism.
	ReloadStatement() string
}

// Open connects to the configured backend.
// The password must be resolved separately (see the secret package).
func Open(cfg domain.BackendConfig, password string) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case domain.BackendSQLite, "":
		db, err := openSQLite(cfg.Path)
		return db, SQLite{}, err
	case domain.BackendPostgres:
		db, err := openPool("postgres", buildPostgresDSN(cfg, password))
		return db, Postgres{}, err
	case domain.BackendMySQL:
		db, err := openPool("mysql", buildMySQLDSN(cfg, password))
		return db, MySQL{}, err
	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driver domain.BackendDriver) (Dialect, error) {
	switch driver {
	case domain.BackendSQLite, "":
		return SQLite{}, nil
	case domain.BackendPostgres:
		return Postgres{}, nil
	case domain.BackendMySQL:
		return MySQL{}, nil
	}
	return nil, fmt.Errorf("unsupported driver: %s", driver)
}

func openPool(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return db, nil
}

// questionRebind leaves '?' placeholders untouched.
func questionRebind(query string) string { return query }

// dollarRebind rewrites '?' placeholders to $1..$n.
func dollarRebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func scanNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// FormatValue normalizes a scanned value: []byte becomes string.
func FormatValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// ParseTime reads a timestamp scanned from any backend.
func ParseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []byte:
		return ParseTime(string(t))
	case string:
		for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}
