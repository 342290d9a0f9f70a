package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyntables/internal/cache"
	"dyntables/internal/domain"
	"dyntables/internal/query"
	"dyntables/internal/service"
	"dyntables/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.New(domain.BackendConfig{
		Driver: domain.BackendSQLite,
		Path:   filepath.Join(t.TempDir(), "mcp.db"),
	}, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	settings := service.Settings{WaitAttempts: 3, WaitInterval: 1, DocumentRetryInterval: 1}
	schemas := storage.NewSchemaStore(db, nil)
	docs := storage.NewDocumentStore(db)
	emitter := &service.MockEmitter{}
	gw := query.New(db.Conn(), db.Dialect(), cache.NewSchemaCache(0), nil)
	waiter := service.NewWaiter(gw, settings.WaitAttempts, settings.WaitInterval, nil)
	prov := service.NewProvisioner(schemas, storage.NewProcedures(db), gw, waiter, nil)
	rows := service.NewRowService(schemas, gw, prov, storage.NewSequences(db), docs, emitter, settings, nil)
	jobStore := storage.NewImportJobStore(db)
	importer := service.NewImporter(rows, waiter, emitter, nil)
	jobs := service.NewImportJobService(jobStore, schemas, importer, emitter, nil)
	t.Cleanup(jobs.Stop)

	return New(Deps{
		OwnerID:   "owner-1",
		Databases: service.NewDatabaseService(schemas, prov, waiter, gw, docs, jobStore, emitter, nil),
		Rows:      rows,
		Importer:  importer,
		Tasks:     service.NewTaskService(schemas, rows, nil),
		Events:    service.NewEventService(schemas, rows, nil),
		Jobs:      jobs,
	})
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err, "tool failures are reported in the result")
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func callJSON(t *testing.T, h handler, args map[string]any, out any) {
	t.Helper()
	text, isErr := call(t, h, args)
	require.False(t, isErr, text)
	require.NoError(t, json.Unmarshal([]byte(text), out))
}

func TestTools_DatabaseAndRows(t *testing.T) {
	s := newTestServer(t)

	var db domain.LogicalDatabase
	callJSON(t, s.handleCreateDatabase, map[string]any{
		"name":    "Books",
		"columns": `[{"id": "title", "name": "Title", "type": "text"}, {"id": "pages", "name": "Pages", "type": "number"}]`,
	}, &db)
	assert.Equal(t, "owner-1", db.OwnerID)
	require.Len(t, db.Columns, 2)
	assert.True(t, db.Columns[0].Visible, "columns are visible unless told otherwise")

	for _, cells := range []any{
		`{"title": "Dune", "pages": 412}`,
		map[string]any{"title": "Emma", "pages": 474},
	} {
		var row domain.LogicalRow
		callJSON(t, s.handleAddRow, map[string]any{"databaseId": db.ID, "cells": cells}, &row)
		assert.NotEmpty(t, row.ID)
	}

	var page domain.RowPage
	callJSON(t, s.handleGetRows, map[string]any{
		"databaseId":    db.ID,
		"filters":       `[{"columnId": "pages", "operator": "gt", "value": 420}]`,
		"sortDirection": "desc",
	}, &page)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Emma", page.Rows[0].Cells["title"])

	var updated domain.LogicalRow
	callJSON(t, s.handleUpdateRow, map[string]any{
		"databaseId": db.ID, "rowId": page.Rows[0].ID, "cells": `{"pages": null}`,
	}, &updated)
	assert.NotContains(t, updated.Cells, "pages")

	text, isErr := call(t, s.handleDeleteRows, map[string]any{"databaseId": db.ID, "rowIds": []any{page.Rows[0].ID}})
	assert.False(t, isErr)
	assert.Equal(t, "Deleted 1 row(s)", text)

	var summaries []map[string]any
	callJSON(t, s.handleListDatabases, map[string]any{}, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Books", summaries[0]["name"])
}

func TestTools_ErrorsHideBackendDetail(t *testing.T) {
	s := newTestServer(t)

	text, isErr := call(t, s.handleGetRows, map[string]any{"databaseId": uuid.NewString()})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "NOT_FOUND: "), text)

	text, isErr = call(t, s.handleAddRow, map[string]any{"cells": "{}"})
	assert.True(t, isErr)
	assert.Equal(t, "VALIDATION_ERROR: databaseId is required", text)

	var db domain.LogicalDatabase
	callJSON(t, s.handleCreateDatabase, map[string]any{"name": "Notes"}, &db)
	text, isErr = call(t, s.handleGetRows, map[string]any{
		"databaseId": db.ID,
		"filters":    `[{"columnId": "nope", "operator": "equals", "value": 1}]`,
	})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "SCHEMA_MISMATCH: "), text)
	assert.NotContains(t, text, "SELECT")
	assert.NotContains(t, text, db.TableName)

	text, isErr = call(t, s.handleAddRow, map[string]any{"databaseId": db.ID, "cells": "{not json"})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "VALIDATION_ERROR: "), text)
}

func TestTools_ImportCSV(t *testing.T) {
	s := newTestServer(t)
	var db domain.LogicalDatabase
	callJSON(t, s.handleCreateDatabase, map[string]any{
		"name":    "People",
		"columns": `[{"id": "name", "name": "Name"}, {"id": "age", "name": "Age", "type": "number"}]`,
	}, &db)

	var res domain.ImportResult
	callJSON(t, s.handleImportCSV, map[string]any{
		"databaseId": db.ID,
		"csv":        "Name;Age\nAda;36\nGrace;abc\nAlan;41\n",
		"delimiter":  ";",
		"strategy":   "row_document",
	}, &res)
	assert.Equal(t, 2, res.RowsImported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, "Age", res.Errors[0].Column)

	text, isErr := call(t, s.handleImportCSV, map[string]any{"databaseId": db.ID})
	assert.True(t, isErr)
	assert.Equal(t, "VALIDATION_ERROR: csv or filePath is required", text)
}

func TestTools_Tasks(t *testing.T) {
	s := newTestServer(t)
	var db domain.LogicalDatabase
	callJSON(t, s.handleCreateDatabase, map[string]any{"name": "Sprint", "type": "task", "provision": true}, &db)

	var created service.BuildResult
	callJSON(t, s.handleCreateTask, map[string]any{
		"databaseId":   db.ID,
		"title":        "Ship it",
		"priority":     "High",
		"tags":         `["release"]`,
		"withDocument": true,
	}, &created)
	number, _ := db.ColumnByName(service.ColumnTaskNumber)
	assert.Equal(t, float64(1), created.Row.Cells[number.ID])
	require.NotNil(t, created.Document)

	var updated domain.LogicalRow
	callJSON(t, s.handleUpdateTask, map[string]any{
		"databaseId": db.ID, "rowId": created.Row.ID, "status": "done",
	}, &updated)
	status, _ := db.ColumnByName(service.ColumnStatus)
	assert.Equal(t, "done", updated.Cells[status.ID])
	assert.Equal(t, float64(1), updated.Cells[number.ID])

	var listed []service.ListedRow
	callJSON(t, s.handleListTasks, map[string]any{}, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "Sprint", listed[0].DatabaseName)

	text, isErr := call(t, s.handleCreateEvent, map[string]any{"databaseId": db.ID, "title": "x"})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "VALIDATION_ERROR: "), text)
}

func TestDatabaseIDFromURI(t *testing.T) {
	assert.Equal(t, "abc", databaseIDFromURI("dyntables://database/abc/schema"))
	assert.Equal(t, "abc", databaseIDFromURI("dyntables://database/abc"))
	assert.Empty(t, databaseIDFromURI("notes://page/abc/blocks"))
}
