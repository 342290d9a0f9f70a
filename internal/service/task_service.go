package service

import (
	"context"

	"go.uber.org/zap"

	"dyntables/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Task Service: task rows with numbering and status defaults
// ─────────────────────────────────────────────────────────────

// Column names of the default task schema.
const (
	ColumnPriority = "Priority"
	ColumnDueDate  = "Due Date"
	ColumnAssignee = "Assignee"
	ColumnTags     = "Tags"
)

// TaskInput creates one task. Fields holds further cells keyed by column
// name.
type TaskInput struct {
	DatabaseID   string         `json:"databaseId"`
	Title        string         `json:"title"`
	Status       string         `json:"status,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	DueDate      string         `json:"dueDate,omitempty"`
	Assignee     string         `json:"assignee,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
	WithDocument bool           `json:"withDocument"`
}

// TaskPatch updates a task. Nil fields are left untouched.
type TaskPatch struct {
	Title    *string        `json:"title,omitempty"`
	Status   *string        `json:"status,omitempty"`
	Priority *string        `json:"priority,omitempty"`
	DueDate  *string        `json:"dueDate,omitempty"`
	Assignee *string        `json:"assignee,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// BuildResult is a row created by a builder plus its document. A failed
// document does not fail the row; DocumentError says why it is missing.
type BuildResult struct {
	Row           *domain.LogicalRow     `json:"row"`
	Document      *domain.LinkedDocument `json:"document,omitempty"`
	DocumentError string                 `json:"documentError,omitempty"`
}

// ListedRow is a row together with the database it came from.
type ListedRow struct {
	DatabaseID   string            `json:"databaseId"`
	DatabaseName string            `json:"databaseName"`
	Row          domain.LogicalRow `json:"row"`
}

// TaskService creates and updates rows of task databases.
type TaskService struct {
	schemas domain.SchemaStore
	rows    *RowService
	log     *zap.SugaredLogger
}

func NewTaskService(schemas domain.SchemaStore, rows *RowService, log *zap.SugaredLogger) *TaskService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TaskService{schemas: schemas, rows: rows, log: log}
}

// CreateTask adds a task row. The task number and the backlog status are
// filled in by the row layer when the caller leaves them out.
func (s *TaskService) CreateTask(ctx context.Context, in TaskInput) (*BuildResult, error) {
	db, err := s.taskDatabase(ctx, "create task", in.DatabaseID)
	if err != nil {
		return nil, err
	}
	cells := namedCells(s.log, db, in.Fields)
	if col, ok := TitleColumn(db, ""); ok && in.Title != "" {
		cells[col.ID] = in.Title
	}
	setNamed(db, cells, ColumnStatus, in.Status)
	setNamed(db, cells, ColumnPriority, in.Priority)
	setNamed(db, cells, ColumnDueDate, in.DueDate)
	setNamed(db, cells, ColumnAssignee, in.Assignee)
	if len(in.Tags) > 0 {
		setNamed(db, cells, ColumnTags, in.Tags)
	}

	row, err := s.rows.AddRow(ctx, db.ID, cells, nil)
	if err != nil {
		return nil, err
	}
	return s.rows.withDocument(ctx, db, row, in.Title, in.WithDocument), nil
}

// UpdateTask writes the supplied fields. The task number never changes.
func (s *TaskService) UpdateTask(ctx context.Context, databaseID, rowID string, p TaskPatch) (*domain.LogicalRow, error) {
	db, err := s.taskDatabase(ctx, "update task", databaseID)
	if err != nil {
		return nil, err
	}
	cells := namedCells(s.log, db, p.Fields)
	if p.Title != nil {
		if col, ok := TitleColumn(db, ""); ok {
			cells[col.ID] = *p.Title
		}
	}
	setNamedPtr(db, cells, ColumnStatus, p.Status)
	setNamedPtr(db, cells, ColumnPriority, p.Priority)
	setNamedPtr(db, cells, ColumnDueDate, p.DueDate)
	setNamedPtr(db, cells, ColumnAssignee, p.Assignee)
	if p.Tags != nil {
		setNamed(db, cells, ColumnTags, p.Tags)
	}
	if col, _, ok := numberColumn(db); ok {
		delete(cells, col.ID)
	}
	return s.rows.UpdateRow(ctx, db.ID, rowID, cells)
}

// ListTasks returns the tasks of every task database of owner, up to limit.
func (s *TaskService) ListTasks(ctx context.Context, ownerID string, limit int) ([]ListedRow, error) {
	return listByType(ctx, s.schemas, s.rows, ownerID, domain.DatabaseTypeTask, limit)
}

func (s *TaskService) taskDatabase(ctx context.Context, op, id string) (*domain.LogicalDatabase, error) {
	db, err := resolveDatabase(ctx, s.schemas, op, id)
	if err != nil {
		return nil, err
	}
	if db.Type != domain.DatabaseTypeTask {
		return nil, domain.Validation(op, "database %q is not a task database", db.Name).WithDatabase(db.ID)
	}
	return db, nil
}

// ── Shared builder helpers ─────────────────────────────────

// namedCells re-keys cells given by column name onto column ids. Names
// that match no column are dropped.
func namedCells(log *zap.SugaredLogger, db *domain.LogicalDatabase, fields map[string]any) map[string]any {
	cells := make(map[string]any, len(fields)+4)
	for name, v := range fields {
		if c, ok := columnNamed(db, name); ok {
			cells[c.ID] = v
			continue
		}
		if c, ok := db.Column(name); ok {
			cells[c.ID] = v
			continue
		}
		log.Debugf("builder: database %s has no column %q, dropping field", db.ID, name)
	}
	return cells
}

// setNamed sets the column called name when it exists and v is not empty.
func setNamed(db *domain.LogicalDatabase, cells map[string]any, name string, v any) {
	if s, ok := v.(string); ok && s == "" {
		return
	}
	if c, ok := columnNamed(db, name); ok {
		cells[c.ID] = v
	}
}

// setNamedPtr is setNamed for patches: an empty string clears the cell.
func setNamedPtr(db *domain.LogicalDatabase, cells map[string]any, name string, v *string) {
	if v == nil {
		return
	}
	c, ok := columnNamed(db, name)
	if !ok {
		return
	}
	if *v == "" {
		cells[c.ID] = nil
		return
	}
	cells[c.ID] = *v
}

// withDocument creates the row's document when asked to. Failures are
// logged and reported in the result; the row stays.
func (s *RowService) withDocument(ctx context.Context, db *domain.LogicalDatabase, row *domain.LogicalRow, title string, create bool) *BuildResult {
	res := &BuildResult{Row: row}
	if !create {
		return res
	}
	doc, err := s.createDocument(ctx, db, row.ID, title)
	if err != nil {
		s.log.Errorf("builder: document for row %s of %s not created: %v", row.ID, db.ID, err)
		res.DocumentError = PublicMessage(err)
		return res
	}
	res.Document = doc
	return res
}

func listByType(ctx context.Context, schemas domain.SchemaStore, rows *RowService, ownerID string, t domain.DatabaseType, limit int) ([]ListedRow, error) {
	if limit <= 0 {
		limit = rows.settings.DefaultLimit
	}
	dbs, err := schemas.ListByType(ctx, ownerID, t)
	if err != nil {
		return nil, err
	}
	out := []ListedRow{}
	for _, db := range dbs {
		if len(out) >= limit {
			break
		}
		page, err := rows.GetRowsWithCount(ctx, db.ID, domain.RowQuery{Limit: limit - len(out)})
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			out = append(out, ListedRow{DatabaseID: db.ID, DatabaseName: db.Name, Row: r})
		}
	}
	return out, nil
}
