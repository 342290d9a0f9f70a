// Package query is the row gateway over wide tables. It resolves every
// referenced column against a cached view of the table's physical columns,
// so a column added to the table is not usable until the view is reloaded.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dyntables/internal/cache"
	"dyntables/internal/codec"
	"dyntables/internal/dbclient"
	"dyntables/internal/domain"
	"dyntables/internal/metrics"
)

// Record is one physical row keyed by physical column name.
type Record map[string]any

// ID returns the row id of r.
func (r Record) ID() string {
	if s, ok := dbclient.FormatValue(r[codec.ColID]).(string); ok {
		return s
	}
	return ""
}

// Order sorts on one physical column.
type Order struct {
	Column string
	Desc   bool
}

// Select describes a filtered, sorted page of rows.
type Select struct {
	Where  []Predicate
	Order  []Order
	Limit  int
	Offset int
}

// RowFailure is the error of one record in a batch insert.
type RowFailure struct {
	Index int
	Err   error
}

// Gateway reads and writes wide-table rows.
type Gateway struct {
	db      *sql.DB
	dialect dbclient.Dialect
	schema  *cache.SchemaCache
	log     *zap.SugaredLogger
	now     func() time.Time
}

// New creates a gateway. schema holds the column views and may be shared.
func New(db *sql.DB, dialect dbclient.Dialect, schema *cache.SchemaCache, log *zap.SugaredLogger) *Gateway {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if schema == nil {
		schema = cache.NewSchemaCache(0)
	}
	return &Gateway{db: db, dialect: dialect, schema: schema, log: log, now: time.Now}
}

// view returns the cached column set of table, loading it on first use.
func (g *Gateway) view(ctx context.Context, table string) (map[string]bool, error) {
	if set, ok := g.schema.Get(table); ok {
		return set, nil
	}
	cols, err := g.dialect.Columns(ctx, g.db, table)
	if err != nil {
		return nil, domain.Backend("load schema", err)
	}
	if len(cols) == 0 {
		return nil, &domain.Error{Kind: domain.ErrTableNotProvisioned, Op: "load schema", Message: "table " + table + " does not exist"}
	}
	metrics.RecordSchemaRefresh()
	return g.schema.Set(table, cols), nil
}

func (g *Gateway) checkColumns(ctx context.Context, table string, columns ...string) error {
	set, err := g.view(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if !set[c] {
			return &domain.Error{Kind: domain.ErrSchemaNotYetVisible, Op: "resolve column", Column: c,
				Message: "column not found in cached schema"}
		}
	}
	return nil
}

// classify turns a driver error into a domain error and drops the view of
// table when the error shows it is stale.
func (g *Gateway) classify(op, table string, err error) error {
	switch kind := g.dialect.Classify(err); {
	case errors.Is(kind, domain.ErrTableNotProvisioned):
		g.schema.Invalidate(table)
		return &domain.Error{Kind: domain.ErrTableNotProvisioned, Op: op, Cause: err}
	case errors.Is(kind, domain.ErrSchemaMismatch):
		g.schema.Invalidate(table)
		return &domain.Error{Kind: domain.ErrSchemaMismatch, Op: op, Message: "column does not exist", Cause: err}
	}
	return domain.Backend(op, err)
}

func (g *Gateway) bind(v any) any {
	if t, ok := v.(time.Time); ok {
		return g.dialect.BindTime(t)
	}
	return v
}

// Probe runs a zero-row query scoped to column. It fails with
// ErrSchemaNotYetVisible until the cached view contains the column.
func (g *Gateway) Probe(ctx context.Context, table, column string) error {
	if err := g.checkColumns(ctx, table, column); err != nil {
		return err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE 1 = 0`, g.dialect.Quote(column), g.dialect.Quote(table))
	rows, err := g.db.QueryContext(ctx, q)
	if err != nil {
		return g.classify("probe", table, err)
	}
	return rows.Close()
}

// ReloadSchema drops the cached view of table and, where the backend has
// one, signals the schema cache to reload. The signal is best-effort.
func (g *Gateway) ReloadSchema(ctx context.Context, table string) {
	g.schema.Invalidate(table)
	stmt := g.dialect.ReloadStatement()
	if stmt == "" {
		return
	}
	if _, err := g.db.ExecContext(ctx, stmt); err != nil {
		g.log.Debugf("query: schema reload signal failed: %v", err)
	}
}

// Columns returns the columns visible through the cached view.
func (g *Gateway) Columns(ctx context.Context, table string) ([]string, error) {
	set, err := g.view(ctx, table)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

func (g *Gateway) where(preds []Predicate) (string, []any, error) {
	clauses := []string{g.dialect.Quote(codec.ColDeletedAt) + " IS NULL"}
	var args []any
	for _, p := range preds {
		clause, pargs, err := g.predicate(p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, pargs...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func predicateColumns(preds []Predicate) []string {
	cols := make([]string, 0, len(preds))
	for _, p := range preds {
		cols = append(cols, p.Column)
	}
	return cols
}

// Select returns one page of live rows.
func (g *Gateway) Select(ctx context.Context, table string, s Select) ([]Record, error) {
	cols := predicateColumns(s.Where)
	for _, o := range s.Order {
		cols = append(cols, o.Column)
	}
	if err := g.checkColumns(ctx, table, cols...); err != nil {
		return nil, err
	}
	where, args, err := g.where(s.Where)
	if err != nil {
		return nil, err
	}

	d := g.dialect
	var order []string
	for _, o := range s.Order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		order = append(order, d.Quote(o.Column)+" "+dir)
	}
	order = append(order, d.Quote(codec.ColRowOrder)+" ASC", d.Quote(codec.ColCreatedAt)+" ASC", d.Quote(codec.ColID)+" ASC")

	q := `SELECT * FROM ` + d.Quote(table) + where + ` ORDER BY ` + strings.Join(order, ", ")
	if s.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, s.Limit, s.Offset)
	}

	rows, err := g.db.QueryContext(ctx, d.Rebind(q), args...)
	if err != nil {
		return nil, g.classify("select rows", table, err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, g.classify("select rows", table, err)
	}
	return recs, nil
}

// Count returns the number of live rows matching preds.
func (g *Gateway) Count(ctx context.Context, table string, preds []Predicate) (int, error) {
	if err := g.checkColumns(ctx, table, predicateColumns(preds)...); err != nil {
		return 0, err
	}
	where, args, err := g.where(preds)
	if err != nil {
		return 0, err
	}
	var n int
	q := `SELECT COUNT(*) FROM ` + g.dialect.Quote(table) + where
	if err := g.db.QueryRowContext(ctx, g.dialect.Rebind(q), args...).Scan(&n); err != nil {
		return 0, g.classify("count rows", table, err)
	}
	return n, nil
}

// Get returns one live row.
func (g *Gateway) Get(ctx context.Context, table, id string) (Record, error) {
	if _, err := g.view(ctx, table); err != nil {
		return nil, err
	}
	d := g.dialect
	q := `SELECT * FROM ` + d.Quote(table) + ` WHERE ` + d.Quote(codec.ColID) + ` = ? AND ` + d.Quote(codec.ColDeletedAt) + ` IS NULL`
	rows, err := g.db.QueryContext(ctx, d.Rebind(q), id)
	if err != nil {
		return nil, g.classify("get row", table, err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, g.classify("get row", table, err)
	}
	if len(recs) == 0 {
		return nil, domain.NotFound("get row", "row", id).WithRow(id)
	}
	return recs[0], nil
}

// prepare fills the base columns of a record about to be inserted.
func (g *Gateway) prepare(rec Record) Record {
	out := make(Record, len(rec)+4)
	for k, v := range rec {
		out[k] = v
	}
	now := g.now().UTC()
	if out.ID() == "" {
		out[codec.ColID] = uuid.NewString()
	}
	if _, ok := out[codec.ColRowOrder]; !ok {
		out[codec.ColRowOrder] = float64(0)
	}
	if _, ok := out[codec.ColCreatedAt]; !ok {
		out[codec.ColCreatedAt] = now
	}
	out[codec.ColUpdatedAt] = now
	return out
}

func (g *Gateway) insertStatement(table string, rec Record) (string, []any) {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = g.dialect.Quote(c)
		marks[i] = "?"
		args[i] = g.bind(rec[c])
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, g.dialect.Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return g.dialect.Rebind(q), args
}

func recordColumns(rec Record) []string {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		cols = append(cols, c)
	}
	return cols
}

// Insert writes one row and reads it back.
func (g *Gateway) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	rec = g.prepare(rec)
	if err := g.checkColumns(ctx, table, recordColumns(rec)...); err != nil {
		return nil, err
	}
	q, args := g.insertStatement(table, rec)
	if _, err := g.db.ExecContext(ctx, q, args...); err != nil {
		return nil, g.classify("insert row", table, err)
	}
	return g.Get(ctx, table, rec.ID())
}

// InsertBatch writes recs in one transaction with a savepoint per record.
// A failing record is rolled back alone and reported; the others commit.
// The error is non-nil only when the batch as a whole could not run.
func (g *Gateway) InsertBatch(ctx context.Context, table string, recs []Record) (inserted int, failures []RowFailure, err error) {
	// The view is resolved before the transaction opens: single-connection
	// backends would block on a catalog query issued beside the tx.
	prepared := make([]Record, len(recs))
	runnable := make([]bool, len(recs))
	for i, r := range recs {
		prepared[i] = g.prepare(r)
		if cerr := g.checkColumns(ctx, table, recordColumns(prepared[i])...); cerr != nil {
			if errors.Is(cerr, domain.ErrTableNotProvisioned) {
				return 0, nil, cerr
			}
			failures = append(failures, RowFailure{Index: i, Err: cerr})
			continue
		}
		runnable[i] = true
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, domain.Backend("begin batch", err)
	}
	defer tx.Rollback()

	for i, rec := range prepared {
		if !runnable[i] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "SAVEPOINT batch_row"); err != nil {
			return 0, nil, domain.Backend("savepoint", err)
		}
		q, args := g.insertStatement(table, rec)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT batch_row"); rbErr != nil {
				return 0, nil, domain.Backend("rollback savepoint", rbErr)
			}
			failures = append(failures, RowFailure{Index: i, Err: g.classify("insert row", table, err)})
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT batch_row"); err != nil {
			return 0, nil, domain.Backend("release savepoint", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, domain.Backend("commit batch", err)
	}
	sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
	return inserted, failures, nil
}

// Update writes the columns of rec on row id and refreshes updated_at.
func (g *Gateway) Update(ctx context.Context, table, id string, rec Record) error {
	set := make(Record, len(rec)+1)
	for k, v := range rec {
		if k == codec.ColID || k == codec.ColCreatedAt {
			continue
		}
		set[k] = v
	}
	set[codec.ColUpdatedAt] = g.now().UTC()
	if err := g.checkColumns(ctx, table, recordColumns(set)...); err != nil {
		return err
	}

	cols := recordColumns(set)
	sort.Strings(cols)
	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		assigns[i] = g.dialect.Quote(c) + " = ?"
		args = append(args, g.bind(set[c]))
	}
	args = append(args, id)

	d := g.dialect
	q := `UPDATE ` + d.Quote(table) + ` SET ` + strings.Join(assigns, ", ") +
		` WHERE ` + d.Quote(codec.ColID) + ` = ? AND ` + d.Quote(codec.ColDeletedAt) + ` IS NULL`
	res, err := g.db.ExecContext(ctx, d.Rebind(q), args...)
	if err != nil {
		return g.classify("update row", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFound("update row", "row", id).WithRow(id)
	}
	return nil
}

// Delete removes the rows in ids. Ids that do not exist are ignored.
func (g *Gateway) Delete(ctx context.Context, table string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := g.view(ctx, table); err != nil {
		return 0, err
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `DELETE FROM ` + g.dialect.Quote(table) + ` WHERE ` + g.dialect.Quote(codec.ColID) + ` IN (` + marks + `)`
	res, err := g.db.ExecContext(ctx, g.dialect.Rebind(q), args...)
	if err != nil {
		return 0, g.classify("delete rows", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MaxRowOrder returns the highest row_order of the live rows. ok is false
// when the table is empty.
func (g *Gateway) MaxRowOrder(ctx context.Context, table string) (max float64, ok bool, err error) {
	if _, err := g.view(ctx, table); err != nil {
		return 0, false, err
	}
	d := g.dialect
	var v sql.NullFloat64
	q := `SELECT MAX(` + d.Quote(codec.ColRowOrder) + `) FROM ` + d.Quote(table) + ` WHERE ` + d.Quote(codec.ColDeletedAt) + ` IS NULL`
	if err := g.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		return 0, false, g.classify("max row order", table, err)
	}
	return v.Float64, v.Valid, nil
}

// Stats returns the live row count and the latest update time.
func (g *Gateway) Stats(ctx context.Context, table string) (domain.DatabaseStats, error) {
	if _, err := g.view(ctx, table); err != nil {
		return domain.DatabaseStats{}, err
	}
	d := g.dialect
	var (
		count int
		last  any
	)
	q := `SELECT COUNT(*), MAX(` + d.Quote(codec.ColUpdatedAt) + `) FROM ` + d.Quote(table) + ` WHERE ` + d.Quote(codec.ColDeletedAt) + ` IS NULL`
	if err := g.db.QueryRowContext(ctx, q).Scan(&count, &last); err != nil {
		return domain.DatabaseStats{}, g.classify("table stats", table, err)
	}
	stats := domain.DatabaseStats{RowCount: count}
	if last != nil {
		if t := dbclient.ParseTime(last); !t.IsZero() {
			stats.LastUpdated = &t
		}
	}
	return stats, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = dbclient.FormatValue(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
