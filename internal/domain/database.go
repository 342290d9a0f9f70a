package domain

import (
	"context"
	"time"
)

// DatabaseType tags a logical database with the row semantics layered on top.
type DatabaseType string

const (
	DatabaseTypeTask    DatabaseType = "task"
	DatabaseTypeEvent   DatabaseType = "event"
	DatabaseTypeGeneric DatabaseType = "generic"
)

// Valid reports whether t is one of the known database types.
func (t DatabaseType) Valid() bool {
	switch t {
	case DatabaseTypeTask, DatabaseTypeEvent, DatabaseTypeGeneric:
		return true
	}
	return false
}

// LogicalDatabase is the metadata record of a user-defined table.
// TableName is derived from ID once and never changes.
// Columns is display order, not creation order.
type LogicalDatabase struct {
	ID        string       `json:"id"`
	TableName string       `json:"tableName"`
	Name      string       `json:"name"`
	Type      DatabaseType `json:"type"`
	OwnerID   string       `json:"ownerId"`
	ParentID  string       `json:"parentId,omitempty"`
	Columns   []ColumnDef  `json:"columns"`
	Version   int64        `json:"version"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Column returns the column with the given id.
func (d *LogicalDatabase) Column(id string) (ColumnDef, bool) {
	for _, c := range d.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnByName returns the first column whose name matches exactly.
func (d *LogicalDatabase) ColumnByName(name string) (ColumnDef, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// CreateDatabaseInput describes a new logical database.
type CreateDatabaseInput struct {
	Name     string       `json:"name"`
	Type     DatabaseType `json:"type"`
	OwnerID  string       `json:"ownerId"`
	ParentID string       `json:"parentId,omitempty"`
	Columns  []ColumnDef  `json:"columns"`
}

// DatabaseStats summarizes the rows of a logical database.
type DatabaseStats struct {
	RowCount    int        `json:"rowCount"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// SchemaStore persists logical database metadata.
type SchemaStore interface {
	Get(ctx context.Context, id string) (*LogicalDatabase, error)
	Create(ctx context.Context, in CreateDatabaseInput) (*LogicalDatabase, error)
	// UpdateColumns replaces the column list when the stored version still
	// equals expectedVersion. It returns ErrConflict otherwise.
	UpdateColumns(ctx context.Context, id string, columns []ColumnDef, expectedVersion int64) (*LogicalDatabase, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, ownerID string) ([]LogicalDatabase, error)
	ListByType(ctx context.Context, ownerID string, t DatabaseType) ([]LogicalDatabase, error)
}

// Sequencer hands out globally monotonic numbers per sequence name.
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

const (
	SequenceTaskNumber  = "task_number"
	SequenceEventNumber = "event_number"
)
