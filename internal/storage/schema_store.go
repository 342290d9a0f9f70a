package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dyntables/internal/cache"
	"dyntables/internal/codec"
	"dyntables/internal/dbclient"
	"dyntables/internal/domain"

	"github.com/google/uuid"
)

// SchemaStore implements domain.SchemaStore on the dynamic_databases table.
// ListByType goes through the list cache; every mutation invalidates the
// affected owner's keys.
type SchemaStore struct {
	db    *DB
	lists cache.ListCache
}

// NewSchemaStore creates a SchemaStore. A nil list cache disables caching.
func NewSchemaStore(db *DB, lists cache.ListCache) *SchemaStore {
	if lists == nil {
		lists = cache.NopListCache{}
	}
	return &SchemaStore{db: db, lists: lists}
}

const selectDatabase = `SELECT id, table_name, name, type, owner_id, parent_id, columns_json, version, created_at, updated_at
	FROM dynamic_databases`

// ── Reads ──────────────────────────────────────────────────

func (s *SchemaStore) Get(ctx context.Context, id string) (*domain.LogicalDatabase, error) {
	row := s.db.queryRow(ctx, s.db.conn, selectDatabase+` WHERE id = ?`, id)
	d, err := scanDatabase(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("get database", "database", id)
	}
	if err != nil {
		return nil, domain.Backend("get database", err)
	}
	return d, nil
}

func (s *SchemaStore) List(ctx context.Context, ownerID string) ([]domain.LogicalDatabase, error) {
	key := cache.ListKey(ownerID, "")
	if dbs, ok := s.lists.Get(ctx, key); ok {
		return dbs, nil
	}
	dbs, err := s.list(ctx, selectDatabase+` WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, err
	}
	s.lists.Set(ctx, key, dbs)
	return dbs, nil
}

func (s *SchemaStore) ListByType(ctx context.Context, ownerID string, t domain.DatabaseType) ([]domain.LogicalDatabase, error) {
	key := cache.ListKey(ownerID, t)
	if dbs, ok := s.lists.Get(ctx, key); ok {
		return dbs, nil
	}
	dbs, err := s.list(ctx, selectDatabase+` WHERE owner_id = ? AND type = ? ORDER BY created_at, id`, ownerID, string(t))
	if err != nil {
		return nil, err
	}
	s.lists.Set(ctx, key, dbs)
	return dbs, nil
}

func (s *SchemaStore) list(ctx context.Context, query string, args ...any) ([]domain.LogicalDatabase, error) {
	rows, err := s.db.query(ctx, s.db.conn, query, args...)
	if err != nil {
		return nil, domain.Backend("list databases", err)
	}
	defer rows.Close()

	dbs := []domain.LogicalDatabase{}
	for rows.Next() {
		d, err := scanDatabase(rows)
		if err != nil {
			return nil, domain.Backend("list databases", err)
		}
		dbs = append(dbs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Backend("list databases", err)
	}
	return dbs, nil
}

// ── Mutations ──────────────────────────────────────────────

// Create assigns the database id and derives its table name once.
func (s *SchemaStore) Create(ctx context.Context, in domain.CreateDatabaseInput) (*domain.LogicalDatabase, error) {
	id := uuid.NewString()
	table, err := codec.TableName(id)
	if err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = domain.DatabaseTypeGeneric
	}
	cols := in.Columns
	if cols == nil {
		cols = []domain.ColumnDef{}
	}
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.exec(ctx, s.db.conn,
		`INSERT INTO dynamic_databases (id, table_name, name, type, owner_id, parent_id, columns_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, table, in.Name, string(in.Type), in.OwnerID, in.ParentID, string(colsJSON),
		s.db.dialect.BindTime(now), s.db.dialect.BindTime(now),
	)
	if err != nil {
		return nil, domain.Backend("create database", err)
	}
	s.lists.Invalidate(ctx, cache.OwnerKeys(in.OwnerID, in.Type)...)

	return &domain.LogicalDatabase{
		ID:        id,
		TableName: table,
		Name:      in.Name,
		Type:      in.Type,
		OwnerID:   in.OwnerID,
		ParentID:  in.ParentID,
		Columns:   cols,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SchemaStore) UpdateColumns(ctx context.Context, id string, columns []domain.ColumnDef, expectedVersion int64) (*domain.LogicalDatabase, error) {
	if columns == nil {
		columns = []domain.ColumnDef{}
	}
	colsJSON, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("encode columns: %w", err)
	}
	res, err := s.db.exec(ctx, s.db.conn,
		`UPDATE dynamic_databases SET columns_json = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(colsJSON), s.db.dialect.BindTime(time.Now().UTC()), id, expectedVersion,
	)
	if err != nil {
		return nil, domain.Backend("update columns", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, domain.Backend("update columns", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &domain.Error{Kind: domain.ErrConflict, Op: "update columns", DatabaseID: id,
			Message: fmt.Sprintf("schema version is %d, expected %d", current.Version, expectedVersion)}
	}
	s.lists.Invalidate(ctx, cache.OwnerKeys(current.OwnerID, current.Type)...)
	return current, nil
}

func (s *SchemaStore) Rename(ctx context.Context, id, name string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.exec(ctx, s.db.conn,
		`UPDATE dynamic_databases SET name = ?, updated_at = ? WHERE id = ?`,
		name, s.db.dialect.BindTime(time.Now().UTC()), id,
	)
	if err != nil {
		return domain.Backend("rename database", err)
	}
	s.lists.Invalidate(ctx, cache.OwnerKeys(current.OwnerID, current.Type)...)
	return nil
}

func (s *SchemaStore) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM dynamic_databases WHERE id = ?`, id); err != nil {
		return domain.Backend("delete database", err)
	}
	s.lists.Invalidate(ctx, cache.OwnerKeys(current.OwnerID, current.Type)...)
	return nil
}

// ── Helpers ────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanDatabase(sc scanner) (*domain.LogicalDatabase, error) {
	d := &domain.LogicalDatabase{}
	var typ, colsJSON string
	var createdAt, updatedAt any
	if err := sc.Scan(&d.ID, &d.TableName, &d.Name, &typ, &d.OwnerID, &d.ParentID,
		&colsJSON, &d.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Type = domain.DatabaseType(typ)
	d.CreatedAt = dbclient.ParseTime(createdAt)
	d.UpdatedAt = dbclient.ParseTime(updatedAt)
	if err := json.Unmarshal([]byte(colsJSON), &d.Columns); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", d.ID, err)
	}
	if d.Columns == nil {
		d.Columns = []domain.ColumnDef{}
	}
	return d, nil
}

var _ domain.SchemaStore = (*SchemaStore)(nil)
