package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
	"dyntables/internal/query"
)

// ─────────────────────────────────────────────────────────────
// Database Service: lifecycle and schema of logical databases
// ─────────────────────────────────────────────────────────────

// JobCleaner removes the import jobs that target a database.
// *storage.ImportJobStore implements it.
type JobCleaner interface {
	DeleteJobsByDatabase(ctx context.Context, databaseID string) error
}

// ColumnPatch changes the metadata of a column. Nil fields are left alone.
// Type can only be restated, never changed.
type ColumnPatch struct {
	Name     *string               `json:"name,omitempty"`
	Type     *domain.ColumnType    `json:"type,omitempty"`
	Visible  *bool                 `json:"visible,omitempty"`
	Readonly *bool                 `json:"readonly,omitempty"`
	Options  *domain.ColumnOptions `json:"options,omitempty"`
}

// DatabaseService creates, changes and deletes logical databases.
type DatabaseService struct {
	schemas domain.SchemaStore
	prov    *Provisioner
	waiter  *Waiter
	gw      *query.Gateway
	docs    domain.DocumentStore
	jobs    JobCleaner
	emitter EventEmitter
	log     *zap.SugaredLogger
}

// NewDatabaseService creates a DatabaseService. docs and jobs may be nil.
func NewDatabaseService(
	schemas domain.SchemaStore,
	prov *Provisioner,
	waiter *Waiter,
	gw *query.Gateway,
	docs domain.DocumentStore,
	jobs JobCleaner,
	emitter EventEmitter,
	log *zap.SugaredLogger,
) *DatabaseService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DatabaseService{
		schemas: schemas,
		prov:    prov,
		waiter:  waiter,
		gw:      gw,
		docs:    docs,
		jobs:    jobs,
		emitter: emitterOrNop(emitter, log),
		log:     log,
	}
}

// ── Database CRUD ──────────────────────────────────────────

// CreateDatabase stores a new logical database. Without columns it gets
// the default schema of its type. The wide table is created now when
// provision is set, otherwise on first use.
func (s *DatabaseService) CreateDatabase(ctx context.Context, in domain.CreateDatabaseInput, provision bool) (*domain.LogicalDatabase, error) {
	const op = "create database"
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, domain.Validation(op, "name is required")
	}
	if in.Type == "" {
		in.Type = domain.DatabaseTypeGeneric
	}
	if !in.Type.Valid() {
		return nil, domain.Validation(op, "unknown database type %q", in.Type)
	}
	if len(in.Columns) == 0 {
		in.Columns = DefaultColumns(in.Type)
	}

	cols := make([]domain.ColumnDef, 0, len(in.Columns))
	for _, c := range in.Columns {
		c, err := s.prepareColumn(op, "", cols, c)
		if err != nil {
			return nil, err
		}
		c.Order = len(cols)
		cols = append(cols, c)
	}
	in.Columns = cols

	db, err := s.schemas.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	s.log.Infof("databases: created %s %q (%s) with %d columns", db.Type, db.Name, db.ID, len(db.Columns))

	if provision {
		if err := s.prov.Heal(ctx, db); err != nil {
			// The table is created lazily on the first row write.
			s.log.Warnf("databases: provisioning %s failed: %v", db.TableName, err)
		}
	}
	s.emitter.Emit(ctx, EventDatabaseCreated, db)
	return db, nil
}

// prepareColumn validates c and makes its id and name usable next to cols.
func (s *DatabaseService) prepareColumn(op, databaseID string, cols []domain.ColumnDef, c domain.ColumnDef) (domain.ColumnDef, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return c, domain.Validation(op, "column name is required").WithDatabase(databaseID)
	}
	if c.Type == "" {
		c.Type = domain.ColTypeText
	}
	if !codec.KnownType(c.Type) {
		return c, domain.Validation(op, "unknown column type %q", c.Type).WithDatabase(databaseID)
	}
	if c.ID == "" {
		c.ID = codec.NewColumnID()
	}
	if err := codec.ValidateColumnID(c.ID); err != nil {
		return c, domain.Validation(op, "%v", err).WithDatabase(databaseID).WithColumn(c.ID)
	}
	for _, existing := range cols {
		if existing.ID == c.ID {
			return c, domain.Validation(op, "duplicate column id %q", c.ID).WithDatabase(databaseID).WithColumn(c.ID)
		}
	}
	if name := uniqueName(cols, c.Name); name != c.Name {
		s.log.Infof("databases: column name %q already used, renamed to %q", c.Name, name)
		c.Name = name
	}
	return c, nil
}

// uniqueName appends " 2", " 3"... to name until no column uses it.
func uniqueName(cols []domain.ColumnDef, name string) string {
	taken := func(n string) bool {
		for _, c := range cols {
			if strings.EqualFold(c.Name, n) {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	for i := 2; ; i++ {
		n := fmt.Sprintf("%s %d", name, i)
		if !taken(n) {
			return n
		}
	}
}

func (s *DatabaseService) GetDatabase(ctx context.Context, id string) (*domain.LogicalDatabase, error) {
	return resolveDatabase(ctx, s.schemas, "get database", id)
}

func (s *DatabaseService) ListDatabases(ctx context.Context, ownerID string) ([]domain.LogicalDatabase, error) {
	return s.schemas.List(ctx, ownerID)
}

func (s *DatabaseService) ListByType(ctx context.Context, ownerID string, t domain.DatabaseType) ([]domain.LogicalDatabase, error) {
	if !t.Valid() {
		return nil, domain.Validation("list databases", "unknown database type %q", t)
	}
	return s.schemas.ListByType(ctx, ownerID, t)
}

func (s *DatabaseService) RenameDatabase(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Validation("rename database", "name is required").WithDatabase(id)
	}
	if _, err := resolveDatabase(ctx, s.schemas, "rename database", id); err != nil {
		return err
	}
	if err := s.schemas.Rename(ctx, id, name); err != nil {
		return err
	}
	s.emitter.Emit(ctx, EventDatabaseUpdated, map[string]string{"databaseId": id})
	return nil
}

// DeleteDatabase removes the documents, then the wide table, then the
// import jobs and finally the metadata, so a failure never leaves rows
// behind without their database.
func (s *DatabaseService) DeleteDatabase(ctx context.Context, id string) error {
	db, err := resolveDatabase(ctx, s.schemas, "delete database", id)
	if err != nil {
		return err
	}
	if s.docs != nil {
		n, err := s.docs.DeleteDocumentsByDatabase(ctx, db.ID)
		if err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
		s.log.Debugf("databases: deleted %d documents of %s", n, db.ID)
	}
	if err := s.prov.DropTable(ctx, db); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if s.jobs != nil {
		if err := s.jobs.DeleteJobsByDatabase(ctx, db.ID); err != nil {
			return fmt.Errorf("delete import jobs: %w", err)
		}
	}
	if err := s.schemas.Delete(ctx, db.ID); err != nil {
		return err
	}
	s.log.Infof("databases: deleted %q (%s)", db.Name, db.ID)
	s.emitter.Emit(ctx, EventDatabaseDeleted, map[string]string{"databaseId": db.ID})
	return nil
}

// Stats returns the row count and last update of a database. A database
// without a table has no rows.
func (s *DatabaseService) Stats(ctx context.Context, id string) (*domain.DatabaseStats, error) {
	db, err := resolveDatabase(ctx, s.schemas, "database stats", id)
	if err != nil {
		return nil, err
	}
	stats, err := s.gw.Stats(ctx, db.TableName)
	if errors.Is(err, domain.ErrTableNotProvisioned) {
		return &domain.DatabaseStats{}, nil
	}
	if err != nil {
		return nil, withIDs(err, db.ID, "")
	}
	return &stats, nil
}

// VerifySchema compares the metadata of a database with its wide table.
func (s *DatabaseService) VerifySchema(ctx context.Context, id string) (*ConsistencyReport, error) {
	return s.prov.VerifySchema(ctx, id)
}

// ── Column mutations ───────────────────────────────────────

// AddColumn adds one column and waits until row operations can use it.
// Adding a column whose id is already known repairs a half-finished add.
func (s *DatabaseService) AddColumn(ctx context.Context, databaseID string, def domain.ColumnDef) (*ColumnChange, error) {
	db, err := resolveDatabase(ctx, s.schemas, "add column", databaseID)
	if err != nil {
		return nil, err
	}
	if _, known := db.Column(def.ID); !known || def.ID == "" {
		if def, err = s.prepareColumn("add column", db.ID, db.Columns, def); err != nil {
			return nil, err
		}
	}
	change, err := s.prov.AddColumn(ctx, db.ID, def)
	if err != nil {
		return nil, err
	}
	if s.waiter != nil {
		v := s.waiter.Wait(ctx, db.TableName, codec.EncodeColumn(change.Column.ID))
		if !v.Visible {
			s.log.Warnf("databases: column %q of %s not visible after %d attempts", change.Column.Name, db.ID, v.Attempts)
		}
	}
	s.emitter.Emit(ctx, EventSchemaChanged, map[string]string{"databaseId": db.ID, "columnId": change.Column.ID})
	return change, nil
}

// AddColumns adds several columns in order, stopping at the first failure.
func (s *DatabaseService) AddColumns(ctx context.Context, databaseID string, defs []domain.ColumnDef) ([]ColumnChange, error) {
	out := make([]ColumnChange, 0, len(defs))
	for _, def := range defs {
		change, err := s.AddColumn(ctx, databaseID, def)
		if err != nil {
			return out, err
		}
		out = append(out, *change)
	}
	return out, nil
}

// UpdateColumn changes column metadata only. The physical column is never
// touched, so a type change is refused.
func (s *DatabaseService) UpdateColumn(ctx context.Context, databaseID, columnID string, p ColumnPatch) (*domain.ColumnDef, error) {
	const op = "update column"
	if _, err := resolveDatabase(ctx, s.schemas, op, databaseID); err != nil {
		return nil, err
	}
	var updated domain.ColumnDef
	_, err := mutateColumns(ctx, s.schemas, databaseID, func(db *domain.LogicalDatabase) ([]domain.ColumnDef, bool, error) {
		cols := cloneColumns(db.Columns)
		idx := -1
		for i, c := range cols {
			if c.ID == columnID {
				idx = i
			}
		}
		if idx < 0 {
			return nil, false, domain.NotFound(op, "column", columnID).WithDatabase(databaseID)
		}
		c := cols[idx]
		if p.Type != nil && *p.Type != c.Type {
			return nil, false, domain.Validation(op, "the type of column %q cannot be changed", c.Name).
				WithDatabase(databaseID).WithColumn(columnID)
		}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return nil, false, domain.Validation(op, "column name is required").WithDatabase(databaseID).WithColumn(columnID)
			}
			others := append(cloneColumns(cols[:idx]), cols[idx+1:]...)
			if uniqueName(others, name) != name {
				return nil, false, domain.Validation(op, "column name %q is already used", name).WithDatabase(databaseID).WithColumn(columnID)
			}
			c.Name = name
		}
		if p.Visible != nil {
			c.Visible = *p.Visible
		}
		if p.Readonly != nil {
			c.Readonly = *p.Readonly
		}
		if p.Options != nil {
			c.Options = p.Options
		}
		cols[idx] = c
		updated = c
		return cols, true, nil
	})
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventSchemaChanged, map[string]string{"databaseId": databaseID, "columnId": columnID})
	return &updated, nil
}

// DeleteColumn drops a column and its data.
func (s *DatabaseService) DeleteColumn(ctx context.Context, databaseID, columnID string) (*ColumnChange, error) {
	change, err := s.prov.DropColumn(ctx, databaseID, columnID)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventSchemaChanged, map[string]string{"databaseId": databaseID, "columnId": columnID})
	return change, nil
}

// ReorderColumns sets the display order. ids must name every column once.
func (s *DatabaseService) ReorderColumns(ctx context.Context, databaseID string, ids []string) (*domain.LogicalDatabase, error) {
	const op = "reorder columns"
	if _, err := resolveDatabase(ctx, s.schemas, op, databaseID); err != nil {
		return nil, err
	}
	db, err := mutateColumns(ctx, s.schemas, databaseID, func(db *domain.LogicalDatabase) ([]domain.ColumnDef, bool, error) {
		if len(ids) != len(db.Columns) {
			return nil, false, domain.Validation(op, "expected %d column ids, got %d", len(db.Columns), len(ids)).WithDatabase(databaseID)
		}
		cols := make([]domain.ColumnDef, 0, len(ids))
		seen := make(map[string]bool, len(ids))
		for i, id := range ids {
			c, ok := db.Column(id)
			if !ok || seen[id] {
				return nil, false, domain.Validation(op, "column ids must list every column once").WithDatabase(databaseID).WithColumn(id)
			}
			seen[id] = true
			c.Order = i
			cols = append(cols, c)
		}
		return cols, true, nil
	})
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventSchemaChanged, map[string]string{"databaseId": databaseID})
	return db, nil
}

// ── Default schemas ────────────────────────────────────────

func choices(keys ...string) *domain.ColumnOptions {
	opts := &domain.ColumnOptions{}
	for _, k := range keys {
		label := strings.ToUpper(k[:1]) + strings.ReplaceAll(k[1:], "_", " ")
		opts.Choices = append(opts.Choices, domain.Choice{ID: k, Label: label})
	}
	return opts
}

// DefaultColumns is the starting schema of a database of type t. Column ids
// are fresh on every call.
func DefaultColumns(t domain.DatabaseType) []domain.ColumnDef {
	col := func(name string, typ domain.ColumnType) domain.ColumnDef {
		return domain.ColumnDef{ID: codec.NewColumnID(), Name: name, Type: typ, Visible: true}
	}
	var cols []domain.ColumnDef
	switch t {
	case domain.DatabaseTypeTask:
		number := col(ColumnTaskNumber, domain.ColTypeNumber)
		number.Readonly = true
		status := col(ColumnStatus, domain.ColTypeSelect)
		status.Options = choices(DefaultTaskStatus, "todo", "in_progress", "done")
		priority := col(ColumnPriority, domain.ColTypeSelect)
		priority.Options = choices("low", "medium", "high")
		tags := col(ColumnTags, domain.ColTypeMultiSelect)
		tags.Options = &domain.ColumnOptions{}
		cols = []domain.ColumnDef{
			col("Title", domain.ColTypeText), number, status, priority,
			col(ColumnDueDate, domain.ColTypeDate), col(ColumnAssignee, domain.ColTypePerson), tags,
		}
	case domain.DatabaseTypeEvent:
		number := col(ColumnEventNumber, domain.ColTypeNumber)
		number.Readonly = true
		category := col(ColumnCategory, domain.ColTypeSelect)
		category.Options = choices(DefaultCategories...)
		cols = []domain.ColumnDef{
			col("Title", domain.ColTypeText), number,
			col(ColumnStart, domain.ColTypeDatetime), col(ColumnEnd, domain.ColTypeDatetime),
			col(ColumnLocation, domain.ColTypeText), category,
			col(ColumnAttendees, domain.ColTypeAttendees), col(ColumnReminders, domain.ColTypeReminders),
			col(ColumnDescription, domain.ColTypeText),
		}
	default:
		cols = []domain.ColumnDef{col("Name", domain.ColTypeText)}
	}
	for i := range cols {
		cols[i].Order = i
	}
	return cols
}
