package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dyntables/internal/codec"
	"dyntables/internal/dbclient"
	"dyntables/internal/domain"
)

// DB wraps the backend connection and its SQL dialect.
type DB struct {
	conn    *sql.DB
	dialect dbclient.Dialect
}

// New opens the configured backend and applies the metadata migrations.
func New(cfg domain.BackendConfig, password string) (*DB, error) {
	if cfg.Driver == domain.BackendSQLite || cfg.Driver == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	conn, dialect, err := dbclient.Open(cfg, password)
	if err != nil {
		return nil, err
	}
	db, err := Wrap(conn, dialect)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Wrap migrates an already open connection.
func Wrap(conn *sql.DB, dialect dbclient.Dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the SQL dialect of the backend.
func (db *DB) Dialect() dbclient.Dialect {
	return db.dialect
}

func (db *DB) exec(ctx context.Context, q dbclient.Querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *DB) query(ctx context.Context, q dbclient.Querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, q dbclient.Querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *DB) migrate() error {
	d := db.dialect
	key := d.KeyType()
	ts := d.SQLType(codec.StorageDatetime)
	boolean := d.SQLType(codec.StorageBoolean)

	migrations := []string{
		// Logical database metadata: one row per user-defined table
		`CREATE TABLE IF NOT EXISTS dynamic_databases (
			id ` + key + ` PRIMARY KEY,
			table_name ` + key + ` NOT NULL UNIQUE,
			name TEXT NOT NULL,
			type ` + key + ` NOT NULL,
			owner_id ` + key + ` NOT NULL,
			parent_id ` + key + ` NOT NULL,
			columns_json TEXT NOT NULL,
			version BIGINT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dynamic_databases_owner_type ON dynamic_databases(owner_id, type)`,
		`CREATE TABLE IF NOT EXISTS sequences (
			name ` + key + ` PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS linked_documents (
			id ` + key + ` PRIMARY KEY,
			database_id ` + key + ` NOT NULL,
			row_id ` + key + ` NOT NULL,
			title TEXT NOT NULL,
			owner_id ` + key + ` NOT NULL,
			project_id ` + key + ` NOT NULL,
			content TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_linked_documents_row ON linked_documents(database_id, row_id)`,
		// Recurring CSV imports
		`CREATE TABLE IF NOT EXISTS import_jobs (
			id ` + key + ` PRIMARY KEY,
			name TEXT NOT NULL,
			database_id ` + key + ` NOT NULL,
			file_path TEXT NOT NULL,
			with_documents ` + boolean + ` NOT NULL,
			skip_unknown ` + boolean + ` NOT NULL,
			title_column TEXT NOT NULL,
			trigger_type ` + key + ` NOT NULL,
			trigger_config TEXT NOT NULL,
			enabled ` + boolean + ` NOT NULL,
			last_run_at ` + ts + ` NULL,
			last_status TEXT NOT NULL,
			last_error TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			id ` + key + ` PRIMARY KEY,
			job_id ` + key + ` NOT NULL,
			started_at ` + ts + ` NOT NULL,
			finished_at ` + ts + ` NOT NULL,
			status TEXT NOT NULL,
			rows_read BIGINT NOT NULL,
			rows_imported BIGINT NOT NULL,
			errors_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_runs_job ON import_runs(job_id)`,
	}

	for _, m := range migrations {
		if d.Driver() == domain.BackendMySQL {
			// MySQL has no CREATE INDEX IF NOT EXISTS
			m = strings.Replace(m, "INDEX IF NOT EXISTS", "INDEX", 1)
		}
		if _, err := db.conn.Exec(m); err != nil {
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", firstLine(m), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
