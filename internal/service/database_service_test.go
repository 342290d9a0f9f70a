package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/domain"
	"dyntables/internal/service"
)

func columnNames(db *domain.LogicalDatabase) []string {
	out := make([]string, 0, len(db.Columns))
	for _, c := range db.Columns {
		out = append(out, c.Name)
	}
	return out
}

func TestDatabases_DefaultColumns(t *testing.T) {
	e := newEnv(t)

	task := createTyped(t, e, domain.DatabaseTypeTask)
	assert.Equal(t, []string{"Title", "Task Number", "Status", "Priority", "Due Date", "Assignee", "Tags"}, columnNames(task))
	number := column(t, task, service.ColumnTaskNumber)
	assert.True(t, number.Readonly)
	assert.Equal(t, domain.ColTypeNumber, number.Type)

	event := createTyped(t, e, domain.DatabaseTypeEvent)
	assert.Contains(t, columnNames(event), service.ColumnEventNumber)
	assert.Equal(t, domain.ColTypeAttendees, column(t, event, service.ColumnAttendees).Type)

	generic, err := e.dbs.CreateDatabase(e.ctx, domain.CreateDatabaseInput{Name: "Notes", OwnerID: "owner-1"}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.DatabaseTypeGeneric, generic.Type)
	assert.Equal(t, []string{"Name"}, columnNames(generic))

	report, err := e.dbs.VerifySchema(e.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, report.TableExists, "provisioned databases get their table up front")
	assert.True(t, report.Consistent())

	_, err = e.dbs.CreateDatabase(e.ctx, domain.CreateDatabaseInput{Name: " "}, false)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.dbs.CreateDatabase(e.ctx, domain.CreateDatabaseInput{Name: "x", Type: "kanban"}, false)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Len(t, e.emitter.Named(service.EventDatabaseCreated), 3)
}

func TestDatabases_AddColumnRenamesDuplicates(t *testing.T) {
	e := newEnv(t)
	db := e.createDB(t, domain.ColumnDef{ID: "name", Name: "Name", Type: domain.ColTypeText})

	change, err := e.dbs.AddColumn(e.ctx, db.ID, domain.ColumnDef{Name: "Name"})
	require.NoError(t, err)
	assert.Equal(t, "Name 2", change.Column.Name)
	assert.Equal(t, domain.ColTypeText, change.Column.Type)
	assert.NotEmpty(t, change.Column.ID)
	assert.True(t, change.PhysicalChanged)
	assert.True(t, change.MetadataChanged)
	assert.Equal(t, 1, change.Column.Order)

	_, err = e.dbs.AddColumn(e.ctx, db.ID, domain.ColumnDef{Name: "Bad", Type: "hologram"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.NotEmpty(t, e.emitter.Named(service.EventSchemaChanged))
}

func TestDatabases_AddColumnRepairsHalfFinishedAdd(t *testing.T) {
	e := newEnv(t)
	db := e.createDB(t, domain.ColumnDef{ID: "name", Name: "Name", Type: domain.ColTypeText})
	def := domain.ColumnDef{ID: "extra", Name: "Extra", Type: domain.ColTypeNumber, Visible: true}

	e.schemas.failUpdates.Store(1)
	_, err := e.dbs.AddColumn(e.ctx, db.ID, def)
	require.ErrorIs(t, err, domain.ErrBackend)
	assert.EqualValues(t, 1, e.procs.adds.Load())

	report, err := e.dbs.VerifySchema(e.ctx, db.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"col_extra"}, report.Orphaned)

	change, err := e.dbs.AddColumn(e.ctx, db.ID, def)
	require.NoError(t, err)
	assert.False(t, change.PhysicalChanged, "the physical column is already there")
	assert.True(t, change.MetadataChanged)
	assert.EqualValues(t, 1, e.procs.adds.Load(), "no second ALTER")

	report, err = e.dbs.VerifySchema(e.ctx, db.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Orphaned)
	assert.Equal(t, []string{"name"}, report.MissingPhysical, "unprovisioned columns stay lazy")

	again, err := e.dbs.AddColumn(e.ctx, db.ID, def)
	require.NoError(t, err)
	assert.False(t, again.PhysicalChanged)
	assert.False(t, again.MetadataChanged, "adding a complete column twice is a no-op")
}

func TestDatabases_UpdateAndReorderColumns(t *testing.T) {
	e := newEnv(t)
	db := e.createDB(t,
		domain.ColumnDef{ID: "a", Name: "A", Type: domain.ColTypeText},
		domain.ColumnDef{ID: "b", Name: "B", Type: domain.ColTypeNumber},
	)

	number := domain.ColTypeNumber
	_, err := e.dbs.UpdateColumn(e.ctx, db.ID, "a", service.ColumnPatch{Type: &number})
	assert.ErrorIs(t, err, domain.ErrValidation, "type changes are refused")

	_, err = e.dbs.UpdateColumn(e.ctx, db.ID, "a", service.ColumnPatch{Name: ptr("B")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.dbs.UpdateColumn(e.ctx, db.ID, "zzz", service.ColumnPatch{Name: ptr("Z")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := e.dbs.UpdateColumn(e.ctx, db.ID, "a", service.ColumnPatch{Name: ptr("Alpha"), Visible: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", updated.Name)
	assert.False(t, updated.Visible)

	_, err = e.dbs.ReorderColumns(e.ctx, db.ID, []string{"b"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.dbs.ReorderColumns(e.ctx, db.ID, []string{"b", "b"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	reordered, err := e.dbs.ReorderColumns(e.ctx, db.ID, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "Alpha"}, columnNames(reordered))
	assert.Equal(t, 0, reordered.Columns[0].Order)
	assert.Equal(t, 1, reordered.Columns[1].Order)
}

func TestDatabases_StatsAndDelete(t *testing.T) {
	e := newEnv(t)
	db := e.createDB(t, domain.ColumnDef{ID: "name", Name: "Name", Type: domain.ColTypeText})

	stats, err := e.dbs.Stats(e.ctx, db.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.RowCount)
	assert.Nil(t, stats.LastUpdated)

	for _, n := range []string{"a", "b"} {
		_, err := e.rows.AddRow(e.ctx, db.ID, map[string]any{"name": n}, nil)
		require.NoError(t, err)
	}
	stats, err = e.dbs.Stats(e.ctx, db.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RowCount)
	assert.NotNil(t, stats.LastUpdated)

	require.NoError(t, e.dbs.RenameDatabase(e.ctx, db.ID, "Renamed"))
	got, err := e.dbs.GetDatabase(e.ctx, db.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, db.TableName, got.TableName, "renaming never moves the table")

	require.NoError(t, e.dbs.DeleteDatabase(e.ctx, db.ID))
	_, err = e.dbs.GetDatabase(e.ctx, db.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	physical, err := e.procs.PhysicalColumns(e.ctx, db.TableName)
	require.NoError(t, err)
	assert.Empty(t, physical)
	assert.Len(t, e.emitter.Named(service.EventDatabaseDeleted), 1)
}
