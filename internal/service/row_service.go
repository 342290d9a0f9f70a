package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dyntables/internal/codec"
	"dyntables/internal/dbclient"
	"dyntables/internal/domain"
	"dyntables/internal/metrics"
	"dyntables/internal/query"
	"dyntables/internal/retry"
)

// ─────────────────────────────────────────────────────────────
// Row Service: CRUD and queries over logical rows
// ─────────────────────────────────────────────────────────────

// Names of the columns the row layer gives meaning to, compared without case.
const (
	ColumnTaskNumber  = "Task Number"
	ColumnEventNumber = "Event Number"
	ColumnStatus      = "Status"

	DefaultTaskStatus = "backlog"
	UntitledDocument  = "Untitled"
)

var titleColumnNames = []string{"Title", "Nom", "Name"}

// RowService reads and writes the rows of logical databases.
type RowService struct {
	schemas  domain.SchemaStore
	gw       *query.Gateway
	prov     *Provisioner
	seq      domain.Sequencer
	docs     domain.DocumentStore
	emitter  EventEmitter
	settings Settings
	log      *zap.SugaredLogger
}

// NewRowService creates a RowService. seq and docs may be nil when no
// numbered columns or documents are used.
func NewRowService(
	schemas domain.SchemaStore,
	gw *query.Gateway,
	prov *Provisioner,
	seq domain.Sequencer,
	docs domain.DocumentStore,
	emitter EventEmitter,
	settings Settings,
	log *zap.SugaredLogger,
) *RowService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RowService{
		schemas:  schemas,
		gw:       gw,
		prov:     prov,
		seq:      seq,
		docs:     docs,
		emitter:  emitterOrNop(emitter, log),
		settings: settings.withDefaults(),
		log:      log,
	}
}

// ── Reads ──────────────────────────────────────────────────

// GetRows returns one page of rows.
func (s *RowService) GetRows(ctx context.Context, databaseID string, q domain.RowQuery) ([]domain.LogicalRow, error) {
	page, err := s.query(ctx, databaseID, q, false)
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// GetRowsWithCount returns one page of rows and the number of rows
// matching the filters. A database without a table has no rows.
func (s *RowService) GetRowsWithCount(ctx context.Context, databaseID string, q domain.RowQuery) (*domain.RowPage, error) {
	return s.query(ctx, databaseID, q, true)
}

func (s *RowService) query(ctx context.Context, databaseID string, q domain.RowQuery, withCount bool) (*domain.RowPage, error) {
	db, err := resolveDatabase(ctx, s.schemas, "get rows", databaseID)
	if err != nil {
		return nil, err
	}
	sel, err := s.buildSelect(db, q)
	if err != nil {
		return nil, err
	}

	page := &domain.RowPage{Rows: []domain.LogicalRow{}}
	err = s.read(ctx, db, func() error {
		recs, err := s.gw.Select(ctx, db.TableName, sel)
		if err != nil {
			return err
		}
		page.Rows = page.Rows[:0]
		for _, r := range recs {
			page.Rows = append(page.Rows, decodeRow(db, r))
		}
		if withCount {
			page.Total, err = s.gw.Count(ctx, db.TableName, sel.Where)
		}
		return err
	})
	if errors.Is(err, domain.ErrTableNotProvisioned) {
		return &domain.RowPage{Rows: []domain.LogicalRow{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetRow returns one row.
func (s *RowService) GetRow(ctx context.Context, databaseID, rowID string) (*domain.LogicalRow, error) {
	db, err := resolveDatabase(ctx, s.schemas, "get row", databaseID)
	if err != nil {
		return nil, err
	}
	if err := validateRowID("get row", rowID); err != nil {
		return nil, err
	}
	return s.getRow(ctx, db, rowID)
}

func (s *RowService) getRow(ctx context.Context, db *domain.LogicalDatabase, rowID string) (*domain.LogicalRow, error) {
	var row domain.LogicalRow
	err := s.read(ctx, db, func() error {
		rec, err := s.gw.Get(ctx, db.TableName, rowID)
		if err != nil {
			return err
		}
		row = decodeRow(db, rec)
		return nil
	})
	if errors.Is(err, domain.ErrTableNotProvisioned) {
		return nil, domain.NotFound("get row", "row", rowID).WithDatabase(db.ID).WithRow(rowID)
	}
	if err != nil {
		return nil, withIDs(err, db.ID, rowID)
	}
	return &row, nil
}

// buildSelect translates a row query into a physical select.
func (s *RowService) buildSelect(db *domain.LogicalDatabase, q domain.RowQuery) (query.Select, error) {
	const op = "get rows"
	sel := query.Select{Limit: q.Limit, Offset: q.Offset}
	switch {
	case q.Limit < 0:
		return sel, domain.Validation(op, "limit must not be negative").WithDatabase(db.ID)
	case q.Limit == 0:
		sel.Limit = s.settings.DefaultLimit
	case q.Limit > s.settings.MaxLimit:
		sel.Limit = s.settings.MaxLimit
	}
	if q.Offset < 0 {
		return sel, domain.Validation(op, "offset must not be negative").WithDatabase(db.ID)
	}

	for _, f := range q.Filters {
		p, err := buildPredicate(db, f)
		if err != nil {
			return sel, err
		}
		sel.Where = append(sel.Where, p)
	}

	if q.SortColumn != "" {
		var column string
		switch q.SortColumn {
		case codec.ColRowOrder, codec.ColCreatedAt, codec.ColUpdatedAt:
			column = q.SortColumn
		default:
			if _, ok := db.Column(q.SortColumn); !ok {
				return sel, domain.Mismatch(op, q.SortColumn).WithDatabase(db.ID)
			}
			column = codec.EncodeColumn(q.SortColumn)
		}
		var desc bool
		switch q.SortDirection {
		case "", domain.SortAsc:
		case domain.SortDesc:
			desc = true
		default:
			return sel, domain.Validation(op, "unknown sort direction %q", q.SortDirection).WithDatabase(db.ID)
		}
		sel.Order = []query.Order{{Column: column, Desc: desc}}
	}
	return sel, nil
}

func buildPredicate(db *domain.LogicalDatabase, f domain.Filter) (query.Predicate, error) {
	const op = "filter rows"
	def, ok := db.Column(f.ColumnID)
	if !ok {
		return query.Predicate{}, domain.Mismatch(op, f.ColumnID).WithDatabase(db.ID)
	}
	p := query.Predicate{
		Column:  codec.EncodeColumn(def.ID),
		Storage: codec.StorageFor(def.Type),
		Op:      f.Op,
	}
	switch f.Op {
	case domain.FilterIsEmpty, domain.FilterIsNotEmpty:
	case domain.FilterContains, domain.FilterNotContains, domain.FilterStartsWith, domain.FilterEndsWith:
		if f.Value == nil {
			return p, domain.Validation(op, "operator %s needs a value", f.Op).WithDatabase(db.ID).WithColumn(def.ID)
		}
		p.Value = f.Value
	case domain.FilterEquals, domain.FilterNotEquals, domain.FilterGT, domain.FilterGTE, domain.FilterLT, domain.FilterLTE:
		v, err := codec.EncodeCell(def, normalizeChoices(def, f.Value))
		if err != nil {
			return p, domain.Validation(op, "column %q: %v", def.Name, err).WithDatabase(db.ID).WithColumn(def.ID)
		}
		p.Value = v
	default:
		return p, domain.Validation(op, "unknown operator %q", f.Op).WithDatabase(db.ID).WithColumn(def.ID)
	}
	return p, nil
}

// ── Writes ─────────────────────────────────────────────────

// AddRow inserts a row. rowOrder defaults to 0. Numbered columns of task
// and event databases are filled from their sequence when not supplied.
func (s *RowService) AddRow(ctx context.Context, databaseID string, cells map[string]any, rowOrder *float64) (*domain.LogicalRow, error) {
	db, err := resolveDatabase(ctx, s.schemas, "add row", databaseID)
	if err != nil {
		return nil, err
	}
	order := 0.0
	if rowOrder != nil {
		order = *rowOrder
	}
	rec, err := s.buildRecord(ctx, db, cells, order)
	if err != nil {
		return nil, err
	}
	row, err := s.insert(ctx, db, rec)
	metrics.RecordRowOperation("add", err)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventDatabaseUpdated, map[string]string{"databaseId": db.ID, "rowId": row.ID})
	return row, nil
}

// buildRecord encodes cells and applies the per-type defaults.
func (s *RowService) buildRecord(ctx context.Context, db *domain.LogicalDatabase, cells map[string]any, rowOrder float64) (query.Record, error) {
	rec, err := s.encodeCells(db, cells)
	if err != nil {
		return nil, err
	}
	if err := s.applyDefaults(ctx, db, cells, rec); err != nil {
		return nil, err
	}
	rec[codec.ColRowOrder] = rowOrder
	return rec, nil
}

// encodeCells maps cells onto physical columns. Cells of columns the
// schema does not have are dropped.
func (s *RowService) encodeCells(db *domain.LogicalDatabase, cells map[string]any) (query.Record, error) {
	rec := make(query.Record, len(cells)+2)
	for id, v := range cells {
		def, ok := db.Column(id)
		if !ok {
			s.log.Debugf("rows: dropping cell of unknown column %q in database %s", id, db.ID)
			continue
		}
		enc, err := codec.EncodeCell(def, normalizeChoices(def, v))
		if err != nil {
			return nil, domain.Validation("encode cell", "column %q: %v", def.Name, err).WithDatabase(db.ID).WithColumn(id)
		}
		rec[codec.EncodeColumn(id)] = enc
	}
	return rec, nil
}

// numberColumn returns the sequence-numbered column of db, if any.
func numberColumn(db *domain.LogicalDatabase) (domain.ColumnDef, string, bool) {
	switch db.Type {
	case domain.DatabaseTypeTask:
		if c, ok := columnNamed(db, ColumnTaskNumber); ok {
			return c, domain.SequenceTaskNumber, true
		}
	case domain.DatabaseTypeEvent:
		if c, ok := columnNamed(db, ColumnEventNumber); ok {
			return c, domain.SequenceEventNumber, true
		}
	}
	return domain.ColumnDef{}, "", false
}

func (s *RowService) applyDefaults(ctx context.Context, db *domain.LogicalDatabase, cells map[string]any, rec query.Record) error {
	if col, seqName, ok := numberColumn(db); ok {
		if _, supplied := cells[col.ID]; !supplied && s.seq != nil {
			n, err := s.seq.Next(ctx, seqName)
			if err != nil {
				return domain.Backend("next "+seqName, err)
			}
			enc, err := codec.EncodeCell(col, n)
			if err != nil {
				return domain.Validation("add row", "column %q: %v", col.Name, err).WithDatabase(db.ID).WithColumn(col.ID)
			}
			rec[codec.EncodeColumn(col.ID)] = enc
		}
	}
	if db.Type == domain.DatabaseTypeTask {
		if col, ok := columnNamed(db, ColumnStatus); ok {
			if _, supplied := cells[col.ID]; !supplied {
				enc, err := codec.EncodeCell(col, normalizeChoices(col, DefaultTaskStatus))
				if err == nil {
					rec[codec.EncodeColumn(col.ID)] = enc
				}
			}
		}
	}
	return nil
}

func (s *RowService) insert(ctx context.Context, db *domain.LogicalDatabase, rec query.Record) (*domain.LogicalRow, error) {
	var row domain.LogicalRow
	err := s.lazy(ctx, db, "add row", func() error {
		out, err := s.gw.Insert(ctx, db.TableName, rec)
		if err != nil {
			return err
		}
		row = decodeRow(db, out)
		return nil
	})
	if err != nil {
		return nil, withIDs(err, db.ID, "")
	}
	return &row, nil
}

// UpdateRow writes only the given cells; updated_at is always refreshed.
// Sequence numbers are never drawn on update.
func (s *RowService) UpdateRow(ctx context.Context, databaseID, rowID string, cells map[string]any) (*domain.LogicalRow, error) {
	db, err := resolveDatabase(ctx, s.schemas, "update row", databaseID)
	if err != nil {
		return nil, err
	}
	if err := validateRowID("update row", rowID); err != nil {
		return nil, err
	}
	rec, err := s.encodeCells(db, cells)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, db, rowID, rec); err != nil {
		metrics.RecordRowOperation("update", err)
		return nil, err
	}
	metrics.RecordRowOperation("update", nil)
	s.emitter.Emit(ctx, EventDatabaseUpdated, map[string]string{"databaseId": db.ID, "rowId": rowID})
	return s.getRow(ctx, db, rowID)
}

func (s *RowService) update(ctx context.Context, db *domain.LogicalDatabase, rowID string, rec query.Record) error {
	err := s.lazy(ctx, db, "update row", func() error {
		return s.gw.Update(ctx, db.TableName, rowID, rec)
	})
	return withIDs(err, db.ID, rowID)
}

// UpdateRowOrder moves one row. Sibling rows are not renumbered.
func (s *RowService) UpdateRowOrder(ctx context.Context, databaseID, rowID string, order float64) error {
	db, err := resolveDatabase(ctx, s.schemas, "update row order", databaseID)
	if err != nil {
		return err
	}
	if err := validateRowID("update row order", rowID); err != nil {
		return err
	}
	return s.update(ctx, db, rowID, query.Record{codec.ColRowOrder: order})
}

// DeleteRows deletes the given rows, then their documents. Ids that do not
// exist are ignored. When only the document cleanup fails, the count of
// deleted rows is returned with the error.
func (s *RowService) DeleteRows(ctx context.Context, databaseID string, rowIDs []string) (int64, error) {
	db, err := resolveDatabase(ctx, s.schemas, "delete rows", databaseID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(rowIDs))
	seen := make(map[string]bool, len(rowIDs))
	for _, id := range rowIDs {
		if err := validateRowID("delete rows", id); err != nil {
			return 0, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.gw.Delete(ctx, db.TableName, ids)
	if errors.Is(err, domain.ErrTableNotProvisioned) {
		n, err = 0, nil
	} else {
		metrics.RecordRowOperation("delete", err)
	}
	if err != nil {
		return 0, withIDs(err, db.ID, "")
	}
	if n > 0 {
		s.emitter.Emit(ctx, EventDatabaseUpdated, map[string]any{"databaseId": db.ID, "deleted": ids})
	}

	// Documents go after their rows. Deleting the same ids again removes
	// documents left behind by a failure here.
	if s.docs != nil {
		if err := s.docs.DeleteDocumentsByRows(ctx, db.ID, ids); err != nil {
			s.log.Errorf("rows: %d row(s) of %s deleted but their documents were not: %v", n, db.ID, err)
			return n, withIDs(err, db.ID, "")
		}
	}
	return n, nil
}

// DuplicateRow copies a row just below the original. Numbered columns get
// a fresh number.
func (s *RowService) DuplicateRow(ctx context.Context, databaseID, rowID string) (*domain.LogicalRow, error) {
	db, err := resolveDatabase(ctx, s.schemas, "duplicate row", databaseID)
	if err != nil {
		return nil, err
	}
	if err := validateRowID("duplicate row", rowID); err != nil {
		return nil, err
	}
	original, err := s.getRow(ctx, db, rowID)
	if err != nil {
		return nil, err
	}
	cells := make(map[string]any, len(original.Cells))
	for k, v := range original.Cells {
		cells[k] = v
	}
	if col, _, ok := numberColumn(db); ok {
		delete(cells, col.ID)
	}
	rec, err := s.buildRecord(ctx, db, cells, original.RowOrder+1)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, db, rec)
}

// ── Linked documents ───────────────────────────────────────

// createDocument creates the document of a row, retrying backend failures.
func (s *RowService) createDocument(ctx context.Context, db *domain.LogicalDatabase, rowID, title string) (*domain.LinkedDocument, error) {
	if s.docs == nil {
		return nil, &domain.Error{Kind: domain.ErrBackend, Op: "create document", Message: "no document store configured"}
	}
	if strings.TrimSpace(title) == "" {
		title = UntitledDocument
	}
	in := domain.CreateDocumentInput{Title: title, DatabaseID: db.ID, RowID: rowID, OwnerID: db.OwnerID, ProjectID: db.ParentID}

	var doc *domain.LinkedDocument
	out := retry.Do(ctx, retry.Policy{
		MaxAttempts: s.settings.DocumentRetries,
		Interval:    s.settings.DocumentRetryInterval,
		Retryable:   func(err error) bool { return domain.KindOf(err) == domain.ErrBackend },
		OnRetry: func(attempt int, err error, _ time.Duration) {
			s.log.Warnf("rows: document for row %s failed (attempt %d): %v", rowID, attempt, err)
		},
	}, func(ctx context.Context) error {
		d, err := s.docs.CreateDocument(ctx, in)
		doc = d
		return err
	})
	if !out.Succeeded {
		return nil, withIDs(out.Err, db.ID, rowID)
	}
	return doc, nil
}

// EnsureDocument returns the document of a row, creating it when the row
// has none. It repairs rows whose document creation failed earlier.
func (s *RowService) EnsureDocument(ctx context.Context, databaseID, rowID, title string) (*domain.LinkedDocument, bool, error) {
	db, err := resolveDatabase(ctx, s.schemas, "ensure document", databaseID)
	if err != nil {
		return nil, false, err
	}
	if err := validateRowID("ensure document", rowID); err != nil {
		return nil, false, err
	}
	if s.docs == nil {
		return nil, false, &domain.Error{Kind: domain.ErrBackend, Op: "ensure document", Message: "no document store configured"}
	}
	if doc, err := s.docs.GetDocumentByRow(ctx, db.ID, rowID); err == nil {
		return doc, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	row, err := s.getRow(ctx, db, rowID)
	if err != nil {
		return nil, false, err
	}
	if title == "" {
		if col, ok := TitleColumn(db, ""); ok {
			title = cellText(row.Cells[col.ID])
		}
	}
	doc, err := s.createDocument(ctx, db, rowID, title)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// ── Lazy provisioning ──────────────────────────────────────

func lagging(err error) bool {
	return errors.Is(err, domain.ErrTableNotProvisioned) || errors.Is(err, domain.ErrSchemaNotYetVisible)
}

// lazy runs fn and, when the table or one of its columns is not there yet,
// provisions them and runs fn exactly once more. A second lag error is
// reported as a backend failure.
func (s *RowService) lazy(ctx context.Context, db *domain.LogicalDatabase, op string, fn func() error) error {
	err := fn()
	if err == nil || !lagging(err) || s.prov == nil {
		return err
	}
	s.log.Infof("rows: %s on %s hit %s, provisioning and retrying", op, db.TableName, domain.Code(err))
	if herr := s.prov.Heal(ctx, db); herr != nil {
		return herr
	}
	err = fn()
	if err != nil && lagging(err) {
		return &domain.Error{Kind: domain.ErrBackend, Op: op, Message: "table schema is not ready", Cause: err}
	}
	return err
}

// read is lazy for queries: a missing table is reported as is so callers
// can treat it as empty, while a lagging column is healed and retried.
func (s *RowService) read(ctx context.Context, db *domain.LogicalDatabase, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, domain.ErrSchemaNotYetVisible) {
		return err
	}
	return s.lazy(ctx, db, "read rows", fn)
}

// ── Helpers ────────────────────────────────────────────────

func validateRowID(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Validation(op, "invalid row id %q", id).WithRow(id)
	}
	return nil
}

// withIDs attaches the database and row ids to a classified error.
func withIDs(err error, databaseID, rowID string) error {
	var de *domain.Error
	if err == nil || !errors.As(err, &de) {
		return err
	}
	if de.DatabaseID == "" {
		de.DatabaseID = databaseID
	}
	if de.RowID == "" {
		de.RowID = rowID
	}
	return err
}

func decodeRow(db *domain.LogicalDatabase, rec query.Record) domain.LogicalRow {
	row := domain.LogicalRow{
		ID:        rec.ID(),
		CreatedAt: dbclient.ParseTime(rec[codec.ColCreatedAt]),
		UpdatedAt: dbclient.ParseTime(rec[codec.ColUpdatedAt]),
		Cells:     make(map[string]any),
	}
	if f, ok := codec.DecodeCell(domain.ColumnDef{Type: domain.ColTypeNumber}, rec[codec.ColRowOrder]).(float64); ok {
		row.RowOrder = f
	}
	for _, c := range db.Columns {
		raw, ok := rec[codec.EncodeColumn(c.ID)]
		if !ok {
			continue
		}
		if v := codec.DecodeCell(c, raw); v != nil {
			row.Cells[c.ID] = v
		}
	}
	return row
}

// columnNamed finds a column by name, ignoring case and surrounding space.
func columnNamed(db *domain.LogicalDatabase, names ...string) (domain.ColumnDef, bool) {
	for _, n := range names {
		for _, c := range db.Columns {
			if strings.EqualFold(strings.TrimSpace(c.Name), n) {
				return c, true
			}
		}
	}
	return domain.ColumnDef{}, false
}

// TitleColumn picks the column whose value titles a row's document: the
// explicit column (by id or name), else the first column named Title, Nom
// or Name, else the first visible text column.
func TitleColumn(db *domain.LogicalDatabase, explicit string) (domain.ColumnDef, bool) {
	if explicit != "" {
		if c, ok := db.Column(explicit); ok {
			return c, true
		}
		if c, ok := columnNamed(db, explicit); ok {
			return c, true
		}
	}
	if c, ok := columnNamed(db, titleColumnNames...); ok {
		return c, true
	}
	for _, c := range db.Columns {
		if c.Visible && c.Type == domain.ColTypeText {
			return c, true
		}
	}
	return domain.ColumnDef{}, false
}

// normalizeChoices maps select labels to choice ids. Values that match no
// choice are kept as given.
func normalizeChoices(def domain.ColumnDef, v any) any {
	switch def.Type {
	case domain.ColTypeSelect:
		if s, ok := v.(string); ok {
			if id, ok := def.ResolveChoice(s); ok {
				return id
			}
		}
	case domain.ColTypeMultiSelect:
		switch list := v.(type) {
		case []string:
			out := make([]string, len(list))
			for i, s := range list {
				out[i] = s
				if id, ok := def.ResolveChoice(s); ok {
					out[i] = id
				}
			}
			return out
		case []any:
			out := make([]any, len(list))
			for i, e := range list {
				out[i] = e
				if s, ok := e.(string); ok {
					if id, ok := def.ResolveChoice(s); ok {
						out[i] = id
					}
				}
			}
			return out
		}
	}
	return v
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	}
	enc, err := codec.EncodeCell(domain.ColumnDef{Type: domain.ColTypeText}, v)
	if err != nil {
		return ""
	}
	s, _ := enc.(string)
	return strings.TrimSpace(s)
}
