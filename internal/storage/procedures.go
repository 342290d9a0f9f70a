package storage

import (
	"context"
	"errors"
	"fmt"

	"dyntables/internal/codec"
	"dyntables/internal/dbclient"
	"dyntables/internal/domain"
)

// Procedures are the backend-side operations on wide tables. They are
// idempotent: re-running any of them after a partial failure is safe.
type Procedures struct {
	db *DB
}

// NewProcedures creates the procedure set for db.
func NewProcedures(db *DB) *Procedures {
	return &Procedures{db: db}
}

// checkIdent only admits names produced by the codec.
func checkIdent(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// PhysicalColumns lists the columns of table straight from the catalog.
// A missing table yields an empty list.
func (p *Procedures) PhysicalColumns(ctx context.Context, table string) ([]string, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	cols, err := p.db.dialect.Columns(ctx, p.db.conn, table)
	if err != nil {
		return nil, domain.Backend("physical columns", err)
	}
	return cols, nil
}

// EnsureTable creates table with the base columns when it does not exist.
// created reports whether this call created it.
func (p *Procedures) EnsureTable(ctx context.Context, table string) (created bool, err error) {
	cols, err := p.PhysicalColumns(ctx, table)
	if err != nil {
		return false, err
	}
	if len(cols) > 0 {
		return false, nil
	}

	d := p.db.dialect
	ts := d.SQLType(codec.StorageDatetime)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s %s PRIMARY KEY,
		%s %s NOT NULL DEFAULT 0,
		%s %s NOT NULL,
		%s %s NOT NULL,
		%s %s NULL
	)`,
		d.Quote(table),
		d.Quote(codec.ColID), d.RowIDType(),
		d.Quote(codec.ColRowOrder), d.SQLType(codec.StorageNumeric),
		d.Quote(codec.ColCreatedAt), ts,
		d.Quote(codec.ColUpdatedAt), ts,
		d.Quote(codec.ColDeletedAt), ts,
	)
	if _, err := p.db.conn.ExecContext(ctx, ddl); err != nil {
		return false, domain.Backend("ensure table", err)
	}
	return true, nil
}

// AddColumn adds one physical column. added is false when the column was
// already there.
func (p *Procedures) AddColumn(ctx context.Context, table, column string, st codec.StorageType) (added bool, err error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	if err := checkIdent(column); err != nil {
		return false, err
	}
	d := p.db.dialect
	ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, d.Quote(table), d.Quote(column), d.SQLType(st))
	if _, err := p.db.conn.ExecContext(ctx, ddl); err != nil {
		switch kind := d.Classify(err); {
		case errors.Is(kind, dbclient.ErrDuplicateColumn):
			return false, nil
		case errors.Is(kind, domain.ErrTableNotProvisioned):
			return false, &domain.Error{Kind: domain.ErrTableNotProvisioned, Op: "add column", Column: column, Cause: err}
		}
		return false, domain.Backend("add column", err)
	}
	return true, nil
}

// DropColumn drops one physical column. dropped is false when it was
// already gone or the table does not exist.
func (p *Procedures) DropColumn(ctx context.Context, table, column string) (dropped bool, err error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	if err := checkIdent(column); err != nil {
		return false, err
	}
	cols, err := p.PhysicalColumns(ctx, table)
	if err != nil {
		return false, err
	}
	if !contains(cols, column) {
		return false, nil
	}
	d := p.db.dialect
	ddl := fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, d.Quote(table), d.Quote(column))
	if _, err := p.db.conn.ExecContext(ctx, ddl); err != nil {
		if kind := d.Classify(err); errors.Is(kind, domain.ErrSchemaMismatch) || errors.Is(kind, domain.ErrTableNotProvisioned) {
			return false, nil
		}
		return false, domain.Backend("drop column", err)
	}
	return true, nil
}

// DropTable removes table and all of its rows.
func (p *Procedures) DropTable(ctx context.Context, table string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if _, err := p.db.conn.ExecContext(ctx, `DROP TABLE IF EXISTS `+p.db.dialect.Quote(table)); err != nil {
		return domain.Backend("drop table", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
