package query_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/cache"
	"dyntables/internal/codec"
	"dyntables/internal/domain"
	"dyntables/internal/query"
	"dyntables/internal/storage"
)

type fixture struct {
	db    *storage.DB
	procs *storage.Procedures
	gw    *query.Gateway
	table string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.New(domain.BackendConfig{
		Driver: domain.BackendSQLite,
		Path:   filepath.Join(t.TempDir(), "query.db"),
	}, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table, err := codec.TableName(uuid.NewString())
	require.NoError(t, err)

	f := &fixture{
		db:    db,
		procs: storage.NewProcedures(db),
		gw:    query.New(db.Conn(), db.Dialect(), cache.NewSchemaCache(0), nil),
		table: table,
	}
	return f
}

func (f *fixture) provision(t *testing.T, columns map[string]codec.StorageType) {
	t.Helper()
	ctx := context.Background()
	_, err := f.procs.EnsureTable(ctx, f.table)
	require.NoError(t, err)
	for name, st := range columns {
		_, err := f.procs.AddColumn(ctx, f.table, name, st)
		require.NoError(t, err)
	}
}

func TestGateway_MissingTable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.gw.Select(ctx, f.table, query.Select{})
	assert.ErrorIs(t, err, domain.ErrTableNotProvisioned)

	_, err = f.gw.Insert(ctx, f.table, query.Record{})
	assert.ErrorIs(t, err, domain.ErrTableNotProvisioned)
}

func TestGateway_InsertGetSelect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{"col_name": codec.StorageText, "col_age": codec.StorageNumeric})

	first, err := f.gw.Insert(ctx, f.table, query.Record{"col_name": "Ada", "col_age": float64(30), codec.ColRowOrder: float64(2)})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID())
	assert.Equal(t, "Ada", first["col_name"])
	assert.Equal(t, float64(30), first["col_age"])

	_, err = f.gw.Insert(ctx, f.table, query.Record{"col_name": "Grace", "col_age": float64(9)})
	require.NoError(t, err)

	recs, err := f.gw.Select(ctx, f.table, query.Select{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Grace", recs[0]["col_name"], "row_order 0 sorts first")
	assert.Equal(t, "Ada", recs[1]["col_name"])

	recs, err = f.gw.Select(ctx, f.table, query.Select{Order: []query.Order{{Column: "col_age", Desc: true}}})
	require.NoError(t, err)
	assert.Equal(t, "Ada", recs[0]["col_name"])

	got, err := f.gw.Get(ctx, f.table, first.ID())
	require.NoError(t, err)
	assert.Equal(t, "Ada", got["col_name"])

	_, err = f.gw.Get(ctx, f.table, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGateway_NumericSortIsNotLexical(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{"col_n": codec.StorageNumeric})

	for _, n := range []float64{10, 9, 100} {
		_, err := f.gw.Insert(ctx, f.table, query.Record{"col_n": n})
		require.NoError(t, err)
	}
	recs, err := f.gw.Select(ctx, f.table, query.Select{Order: []query.Order{{Column: "col_n"}}})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []any{float64(9), float64(10), float64(100)}, []any{recs[0]["col_n"], recs[1]["col_n"], recs[2]["col_n"]})
}

func TestGateway_PaginationAndCount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{"col_n": codec.StorageNumeric})

	for i := 0; i < 7; i++ {
		_, err := f.gw.Insert(ctx, f.table, query.Record{"col_n": float64(i), codec.ColRowOrder: float64(i)})
		require.NoError(t, err)
	}
	recs, err := f.gw.Select(ctx, f.table, query.Select{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, float64(3), recs[0]["col_n"])

	n, err := f.gw.Count(ctx, f.table, []query.Predicate{{Column: "col_n", Storage: codec.StorageNumeric, Op: domain.FilterGTE, Value: float64(5)}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGateway_SchemaLag(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, nil)

	// Load the view before the column exists.
	_, err := f.gw.Select(ctx, f.table, query.Select{})
	require.NoError(t, err)

	_, err = f.procs.AddColumn(ctx, f.table, "col_late", codec.StorageText)
	require.NoError(t, err)

	err = f.gw.Probe(ctx, f.table, "col_late")
	assert.ErrorIs(t, err, domain.ErrSchemaNotYetVisible)

	_, err = f.gw.Insert(ctx, f.table, query.Record{"col_late": "x"})
	assert.ErrorIs(t, err, domain.ErrSchemaNotYetVisible)

	f.gw.ReloadSchema(ctx, f.table)
	assert.NoError(t, f.gw.Probe(ctx, f.table, "col_late"))
}

func TestGateway_DroppedColumnIsClassified(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{"col_gone": codec.StorageText})

	require.NoError(t, f.gw.Probe(ctx, f.table, "col_gone"))
	_, err := f.procs.DropColumn(ctx, f.table, "col_gone")
	require.NoError(t, err)

	// The stale view still lists the column; the backend rejects it.
	err = f.gw.Probe(ctx, f.table, "col_gone")
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

	// The view was dropped on the way, so the next probe sees the truth.
	err = f.gw.Probe(ctx, f.table, "col_gone")
	assert.ErrorIs(t, err, domain.ErrSchemaNotYetVisible)
}

func TestGateway_Filters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{
		"col_t":    codec.StorageText,
		"col_tags": codec.StorageJSON,
	})

	rows := []query.Record{
		{"col_t": "Hello World", "col_tags": `["a"]`},
		{"col_t": "say HELLO", "col_tags": `[]`},
		{"col_t": ""},
		{},
		{"col_t": "100%_done"},
	}
	for _, r := range rows {
		_, err := f.gw.Insert(ctx, f.table, r)
		require.NoError(t, err)
	}

	count := func(p query.Predicate) int {
		t.Helper()
		n, err := f.gw.Count(ctx, f.table, []query.Predicate{p})
		require.NoError(t, err)
		return n
	}
	text := func(op domain.FilterOp, v any) query.Predicate {
		return query.Predicate{Column: "col_t", Storage: codec.StorageText, Op: op, Value: v}
	}

	assert.Equal(t, 2, count(text(domain.FilterContains, "hello")))
	assert.Equal(t, 3, count(text(domain.FilterNotContains, "hello")), "null cells do not contain anything")
	assert.Equal(t, 1, count(text(domain.FilterStartsWith, "HELLO")))
	assert.Equal(t, 1, count(text(domain.FilterEndsWith, "hello")))
	assert.Equal(t, 1, count(text(domain.FilterContains, "%_")), "wildcards match literally")
	assert.Equal(t, 1, count(text(domain.FilterEquals, "say HELLO")))
	assert.Equal(t, 4, count(text(domain.FilterNotEquals, "say HELLO")))

	empty := count(text(domain.FilterIsEmpty, nil))
	notEmpty := count(text(domain.FilterIsNotEmpty, nil))
	assert.Equal(t, 2, empty)
	assert.Equal(t, len(rows), empty+notEmpty)

	tags := func(op domain.FilterOp) query.Predicate {
		return query.Predicate{Column: "col_tags", Storage: codec.StorageJSON, Op: op}
	}
	assert.Equal(t, 4, count(tags(domain.FilterIsEmpty)))
	assert.Equal(t, 1, count(tags(domain.FilterIsNotEmpty)))

	_, err := f.gw.Count(ctx, f.table, []query.Predicate{{Column: "col_t", Op: "between", Value: 1}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGateway_UpdateAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{"col_t": codec.StorageText, "col_b": codec.StorageBoolean})

	rec, err := f.gw.Insert(ctx, f.table, query.Record{"col_t": "a"})
	require.NoError(t, err)

	require.NoError(t, f.gw.Update(ctx, f.table, rec.ID(), query.Record{"col_b": true}))
	got, err := f.gw.Get(ctx, f.table, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "a", got["col_t"], "columns not written stay untouched")
	assert.EqualValues(t, 1, got["col_b"])

	err = f.gw.Update(ctx, f.table, uuid.NewString(), query.Record{"col_t": "b"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := f.gw.Delete(ctx, f.table, []string{rec.ID(), uuid.NewString()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = f.gw.Delete(ctx, f.table, []string{rec.ID()})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGateway_InsertBatchReportsFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, map[string]codec.StorageType{"col_t": codec.StorageText})

	dup := uuid.NewString()
	recs := []query.Record{
		{codec.ColID: dup, "col_t": "one"},
		{"col_t": "two"},
		{codec.ColID: dup, "col_t": "dup"},
		{"col_unknown": "x"},
		{"col_t": "five"},
	}
	inserted, failures, err := f.gw.InsertBatch(ctx, f.table, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	require.Len(t, failures, 2)
	assert.Equal(t, 2, failures[0].Index)
	assert.ErrorIs(t, failures[0].Err, domain.ErrBackend)
	assert.Equal(t, 3, failures[1].Index)
	assert.ErrorIs(t, failures[1].Err, domain.ErrSchemaNotYetVisible)

	n, err := f.gw.Count(ctx, f.table, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGateway_MaxRowOrderAndStats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.provision(t, nil)

	_, ok, err := f.gw.MaxRowOrder(ctx, f.table)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := f.gw.Stats(ctx, f.table)
	require.NoError(t, err)
	assert.Zero(t, stats.RowCount)
	assert.Nil(t, stats.LastUpdated)

	for _, o := range []float64{1, 4, 2} {
		_, err := f.gw.Insert(ctx, f.table, query.Record{codec.ColRowOrder: o})
		require.NoError(t, err)
	}
	max, ok, err := f.gw.MaxRowOrder(ctx, f.table)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(4), max)

	stats, err = f.gw.Stats(ctx, f.table)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.RowCount)
	require.NotNil(t, stats.LastUpdated)
	assert.False(t, stats.LastUpdated.IsZero())
}
