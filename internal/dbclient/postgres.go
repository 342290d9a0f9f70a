package dbclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dyntables/internal/codec"
	"dyntables/internal/domain"

	"github.com/lib/pq"
	"github.com/omeid/pgerror"
)

// buildPostgresDSN constructs a Postgres connection string from the backend config.
func buildPostgresDSN(cfg domain.BackendConfig, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.Username, password, cfg.Database, sslMode,
	)
}

// Postgres is the dialect of a PostgreSQL backend, usually fronted by a
// schema-caching REST proxy.
type Postgres struct{}

func (Postgres) Driver() domain.BackendDriver { return domain.BackendPostgres }
func (Postgres) Quote(ident string) string    { return `"` + ident + `"` }
func (Postgres) Rebind(query string) string   { return dollarRebind(query) }
func (Postgres) KeyType() string              { return "TEXT" }
func (Postgres) RowIDType() string            { return "UUID" }
func (Postgres) TextExpr(expr string) string  { return "CAST(" + expr + " AS TEXT)" }
func (Postgres) LowerExpr(expr string) string { return "LOWER(" + expr + ")" }
func (Postgres) BindTime(t time.Time) any     { return t.UTC() }
func (Postgres) ReloadStatement() string      { return "NOTIFY pgrst, 'reload schema'" }

func (Postgres) SQLType(st codec.StorageType) string {
	switch st {
	case codec.StorageNumeric:
		return "DOUBLE PRECISION"
	case codec.StorageBoolean:
		return "BOOLEAN"
	case codec.StorageDate:
		return "DATE"
	case codec.StorageDatetime:
		return "TIMESTAMPTZ"
	case codec.StorageJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (Postgres) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns %s: %w", table, err)
	}
	return scanNames(rows)
}

func (Postgres) Classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	switch {
	case pgerror.UndefinedTable(pqErr) != nil:
		return domain.ErrTableNotProvisioned
	case pgerror.UndefinedColumn(pqErr) != nil:
		return domain.ErrSchemaMismatch
	case pgerror.DuplicateColumn(pqErr) != nil:
		return ErrDuplicateColumn
	}
	return nil
}
