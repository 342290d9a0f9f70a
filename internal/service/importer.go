package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
	"dyntables/internal/etl"
	"dyntables/internal/metrics"
	"dyntables/internal/query"
)

// ─────────────────────────────────────────────────────────────
// Batch Importer: bulk row inserts with per-row error reporting
// ─────────────────────────────────────────────────────────────

// ImportStrategy selects how rows are committed.
type ImportStrategy string

const (
	// StrategyBatch inserts fixed-size chunks, one statement batch each.
	StrategyBatch ImportStrategy = "batch"
	// StrategyRowDocument inserts rows one at a time and gives each a
	// linked document.
	StrategyRowDocument ImportStrategy = "row_document"
)

// ImportOptions controls one import.
type ImportOptions struct {
	Strategy  ImportStrategy `json:"strategy"`
	ChunkSize int            `json:"chunkSize,omitempty"`
	// TitleColumn overrides title column resolution (column id or name).
	TitleColumn string `json:"titleColumn,omitempty"`
	// RequireTitle rejects rows with an empty title in batch imports too.
	RequireTitle bool `json:"requireTitle,omitempty"`
	// ColumnsCreated is reported back unchanged in the result.
	ColumnsCreated int                 `json:"columnsCreated,omitempty"`
	OnProgress     domain.ProgressFunc `json:"-"`
}

// CSVImportOptions controls an import from a parsed CSV document.
type CSVImportOptions struct {
	ImportOptions
	// SkipUnknownColumns ignores headers that match no column. Otherwise
	// they are rejected, unless CreateMissingColumns adds them.
	SkipUnknownColumns   bool `json:"skipUnknownColumns"`
	CreateMissingColumns bool `json:"createMissingColumns"`
}

// importInput is one row to import, or the reason it cannot be.
type importInput struct {
	cells map[string]any
	err   *domain.ImportError
}

// Importer commits large row sets, continuing past failing rows.
type Importer struct {
	rows     *RowService
	waiter   *Waiter
	emitter  EventEmitter
	settings Settings
	log      *zap.SugaredLogger
}

// NewImporter creates an Importer on top of rows. waiter may be nil.
func NewImporter(rows *RowService, waiter *Waiter, emitter EventEmitter, log *zap.SugaredLogger) *Importer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Importer{
		rows:     rows,
		waiter:   waiter,
		emitter:  emitterOrNop(emitter, log),
		settings: rows.settings,
		log:      log,
	}
}

// Import inserts inputs in order. Rows that fail are reported in the
// result's Errors; only a failure before the first insert returns an error.
// Re-running an import inserts the rows again.
func (im *Importer) Import(ctx context.Context, databaseID string, inputs []map[string]any, opts ImportOptions) (*domain.ImportResult, error) {
	in := make([]importInput, len(inputs))
	for i, cells := range inputs {
		in[i] = importInput{cells: cells}
	}
	return im.run(ctx, databaseID, in, opts)
}

// ImportCSV maps CSV headers to columns by exact name and imports the rows.
func (im *Importer) ImportCSV(ctx context.Context, databaseID string, table *etl.Table, opts CSVImportOptions) (*domain.ImportResult, error) {
	const op = "import csv"
	db, err := resolveDatabase(ctx, im.rows.schemas, op, databaseID)
	if err != nil {
		return nil, err
	}
	if table == nil || len(table.Headers) == 0 {
		return nil, domain.Validation(op, "csv has no header row").WithDatabase(db.ID)
	}

	mapping := etl.MapHeaders(db, table.Headers)
	if len(mapping.Unknown) > 0 {
		switch {
		case opts.CreateMissingColumns:
			created, err := im.createColumns(ctx, db, table, mapping.Unknown)
			if err != nil {
				return nil, err
			}
			opts.ColumnsCreated += created
			if db, err = im.rows.schemas.Get(ctx, db.ID); err != nil {
				return nil, err
			}
			mapping = etl.MapHeaders(db, table.Headers)
		case opts.SkipUnknownColumns:
			im.log.Infof("import: skipping unknown columns %v for database %s", mapping.Unknown, db.ID)
		default:
			return nil, domain.Validation(op, "unknown columns: %s", strings.Join(mapping.Unknown, ", ")).WithDatabase(db.ID)
		}
	}

	in := make([]importInput, len(table.Rows))
	for i, row := range table.Rows {
		cells, ierr := mapping.Cells(row)
		in[i] = importInput{cells: cells, err: ierr}
	}
	return im.run(ctx, db.ID, in, opts.ImportOptions)
}

// createColumns adds a column for every unknown header, typed from the
// header's values.
func (im *Importer) createColumns(ctx context.Context, db *domain.LogicalDatabase, table *etl.Table, headers []string) (int, error) {
	created := 0
	for _, h := range headers {
		if strings.TrimSpace(h) == "" {
			continue
		}
		idx := -1
		for i, th := range table.Headers {
			if th == h {
				idx = i
				break
			}
		}
		values := make([]string, 0, len(table.Rows))
		for _, row := range table.Rows {
			if idx < len(row) {
				values = append(values, row[idx])
			}
		}
		def := domain.ColumnDef{Name: h, Type: etl.InferColumnType(values), Visible: true}
		change, err := im.rows.prov.AddColumn(ctx, db.ID, def)
		if err != nil {
			return created, err
		}
		if change.MetadataChanged {
			created++
		}
	}
	return created, nil
}

// prepared is a record ready for insertion, keyed by its input position.
type prepared struct {
	index int
	rec   query.Record
	title string
}

func (im *Importer) run(ctx context.Context, databaseID string, inputs []importInput, opts ImportOptions) (*domain.ImportResult, error) {
	const op = "import rows"
	start := time.Now()
	db, err := resolveDatabase(ctx, im.rows.schemas, op, databaseID)
	if err != nil {
		return nil, err
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyBatch
	}
	if opts.Strategy != StrategyBatch && opts.Strategy != StrategyRowDocument {
		return nil, domain.Validation(op, "unknown import strategy %q", opts.Strategy).WithDatabase(db.ID)
	}
	size := opts.ChunkSize
	if size <= 0 {
		size = im.settings.ChunkSize
	}

	result := &domain.ImportResult{ColumnsCreated: opts.ColumnsCreated, Errors: []domain.ImportError{}}
	if len(inputs) == 0 {
		return result, nil
	}
	if err := im.preflight(ctx, db, inputs); err != nil {
		return nil, err
	}

	base := 0.0
	if last, ok, err := im.rows.gw.MaxRowOrder(ctx, db.TableName); err != nil {
		return nil, withIDs(err, db.ID, "")
	} else if ok {
		base = last + 1
	}

	titleCol, hasTitle := TitleColumn(db, opts.TitleColumn)
	checkTitle := hasTitle && (opts.Strategy == StrategyRowDocument || opts.RequireTitle)

	items := make([]*prepared, len(inputs))
	for i, in := range inputs {
		if in.err != nil {
			e := *in.err
			e.Row = i + 1
			result.Errors = append(result.Errors, e)
			continue
		}
		title := UntitledDocument
		if hasTitle {
			title = cellText(in.cells[titleCol.ID])
			if title == "" && checkTitle {
				result.Errors = append(result.Errors, domain.ImportError{
					Row: i + 1, Column: titleCol.Name, Message: "title is empty",
				})
				continue
			}
		}
		rec, err := im.rows.buildRecord(ctx, db, in.cells, base+float64(i))
		if err != nil {
			result.Errors = append(result.Errors, im.rowError(db, i, err))
			continue
		}
		items[i] = &prepared{index: i, rec: rec, title: title}
	}

	progress := newProgress(len(inputs), opts.OnProgress)
	switch opts.Strategy {
	case StrategyRowDocument:
		im.runRowDocument(ctx, db, items, result, progress)
	default:
		im.runBatch(ctx, db, items, size, result, progress)
	}

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })
	metrics.RecordImport(string(opts.Strategy), result.RowsImported, len(result.Errors), time.Since(start))
	im.log.Infof("import: %s into %s imported %d of %d rows (%d errors) in %s",
		opts.Strategy, db.TableName, result.RowsImported, len(inputs), len(result.Errors), time.Since(start).Round(time.Millisecond))
	im.emitter.Emit(ctx, EventImportCompleted, map[string]any{
		"databaseId": db.ID, "rowsImported": result.RowsImported, "errors": len(result.Errors),
	})
	if result.RowsImported > 0 {
		im.emitter.Emit(ctx, EventDatabaseUpdated, map[string]string{"databaseId": db.ID})
	}
	return result, nil
}

// preflight makes sure the table exists and every column referenced by
// the inputs is visible before the first insert.
func (im *Importer) preflight(ctx context.Context, db *domain.LogicalDatabase, inputs []importInput) error {
	if err := im.rows.prov.ensureTable(ctx, db); err != nil {
		return withIDs(err, db.ID, "")
	}
	if _, err := im.rows.prov.SyncPhysicalColumns(ctx, db); err != nil {
		return withIDs(err, db.ID, "")
	}
	if im.waiter == nil {
		return nil
	}
	seen := make(map[string]bool)
	var cols []string
	for _, in := range inputs {
		for id := range in.cells {
			if _, ok := db.Column(id); !ok || seen[id] {
				continue
			}
			seen[id] = true
			cols = append(cols, codec.EncodeColumn(id))
		}
	}
	sort.Strings(cols)
	if pending := Pending(im.waiter.WaitAll(ctx, db.TableName, cols)); len(pending) > 0 {
		im.log.Warnf("import: columns %v of %s not visible, continuing", pending, db.TableName)
	}
	return nil
}

func (im *Importer) runBatch(ctx context.Context, db *domain.LogicalDatabase, items []*prepared, size int, result *domain.ImportResult, progress *progress) {
	for chunk := 0; chunk*size < len(items); chunk++ {
		lo := chunk * size
		hi := lo + size
		if hi > len(items) {
			hi = len(items)
		}

		// recs[k] came from input positions[k]
		var recs []query.Record
		var positions []int
		for i := lo; i < hi; i++ {
			if items[i] != nil {
				recs = append(recs, items[i].rec)
				positions = append(positions, i)
			}
		}
		if len(recs) > 0 {
			var inserted int
			var failures []query.RowFailure
			err := im.rows.lazy(ctx, db, "import chunk", func() error {
				var err error
				inserted, failures, err = im.rows.gw.InsertBatch(ctx, db.TableName, recs)
				return err
			})
			if err != nil {
				im.log.Errorf("import: chunk %d of %s failed: %v", chunk, db.TableName, err)
				for _, pos := range positions {
					result.Errors = append(result.Errors, im.rowError(db, pos, err))
				}
			} else {
				result.RowsImported += inserted
				for _, f := range failures {
					pos := chunk*size + (positions[f.Index] - lo)
					result.Errors = append(result.Errors, im.rowError(db, pos, f.Err))
				}
			}
		}
		progress.advance(hi - lo)
	}
}

func (im *Importer) runRowDocument(ctx context.Context, db *domain.LogicalDatabase, items []*prepared, result *domain.ImportResult, progress *progress) {
	for i, item := range items {
		if item == nil {
			progress.advance(1)
			continue
		}
		row, err := im.rows.insert(ctx, db, item.rec)
		if err != nil {
			result.Errors = append(result.Errors, im.rowError(db, i, err))
			progress.advance(1)
			continue
		}
		if _, err := im.rows.createDocument(ctx, db, row.ID, item.title); err != nil {
			result.Errors = append(result.Errors, im.rowError(db, i, err))
			progress.advance(1)
			continue
		}
		result.RowsImported++
		progress.advance(1)
	}
}

// rowError turns err into the 1-based report entry for input position i.
func (im *Importer) rowError(db *domain.LogicalDatabase, i int, err error) domain.ImportError {
	im.log.Debugf("import: row %d of %s failed: %v", i+1, db.TableName, err)
	e := domain.ImportError{Row: i + 1, Message: PublicMessage(err)}
	var de *domain.Error
	if errors.As(err, &de) && de.Column != "" {
		e.Column = de.Column
		if c, ok := db.Column(de.Column); ok {
			e.Column = c.Name
		} else if id, ok := codec.DecodeColumn(de.Column); ok {
			if c, ok := db.Column(id); ok {
				e.Column = c.Name
			}
		}
	}
	return e
}

// progress reports a never-decreasing completed count.
type progress struct {
	done, total int
	fn          domain.ProgressFunc
}

func newProgress(total int, fn domain.ProgressFunc) *progress {
	return &progress{total: total, fn: fn}
}

func (p *progress) advance(n int) {
	p.done += n
	if p.done > p.total {
		p.done = p.total
	}
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
}
