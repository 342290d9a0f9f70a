package dbclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dyntables/internal/codec"
	"dyntables/internal/domain"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrNoSuchTable     = 1146
	mysqlErrBadField        = 1054
	mysqlErrDupFieldName    = 1060
	mysqlErrCantDropKeyName = 1091
)

// buildMySQLDSN constructs a MySQL DSN from the backend config.
func buildMySQLDSN(cfg domain.BackendConfig, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.Username, password, cfg.Host, port, cfg.Database,
	)
	if cfg.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

// MySQL is the dialect of a MySQL / MariaDB backend.
type MySQL struct{}

func (MySQL) Driver() domain.BackendDriver { return domain.BackendMySQL }
func (MySQL) Quote(ident string) string    { return "`" + ident + "`" }
func (MySQL) Rebind(query string) string   { return questionRebind(query) }
func (MySQL) KeyType() string              { return "VARCHAR(64)" }
func (MySQL) RowIDType() string            { return "VARCHAR(36)" }
func (MySQL) TextExpr(expr string) string  { return "CAST(" + expr + " AS CHAR)" }
func (MySQL) LowerExpr(expr string) string { return "LOWER(" + expr + ")" }
func (MySQL) BindTime(t time.Time) any     { return t.UTC() }
func (MySQL) ReloadStatement() string      { return "" }

func (MySQL) SQLType(st codec.StorageType) string {
	switch st {
	case codec.StorageNumeric:
		return "DOUBLE"
	case codec.StorageBoolean:
		return "BOOLEAN"
	case codec.StorageDate:
		return "DATE"
	case codec.StorageDatetime:
		return "DATETIME(6)"
	case codec.StorageJSON:
		return "JSON"
	default:
		return "TEXT"
	}
}

func (MySQL) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns %s: %w", table, err)
	}
	return scanNames(rows)
}

func (MySQL) Classify(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	switch myErr.Number {
	case mysqlErrNoSuchTable:
		return domain.ErrTableNotProvisioned
	case mysqlErrBadField, mysqlErrCantDropKeyName:
		return domain.ErrSchemaMismatch
	case mysqlErrDupFieldName:
		return ErrDuplicateColumn
	}
	return nil
}
