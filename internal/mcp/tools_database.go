package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"dyntables/internal/domain"
	"dyntables/internal/service"
)

const columnDefHelp = `Column definition as JSON: {"name": "Due", "type": "date", "visible": true,
"options": {"choices": [{"id": "todo", "label": "To do"}]}}. Types: text, number, date, datetime,
checkbox, select, multi_select, url, email, phone, person, formula, relation, rollup, linked_items,
attendees, reminders, progress, rating, timer.`

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_databases",
		mcp.WithDescription("List the logical databases of an owner, optionally of one type"),
		mcp.WithString("ownerId", mcp.Description("Owner ID (optional, defaults to the configured owner)")),
		mcp.WithString("type", mcp.Description("Database type filter"), mcp.Enum("task", "event", "generic")),
	), s.handleListDatabases)

	s.mcp.AddTool(mcp.NewTool("get_database_schema",
		mcp.WithDescription("Get the columns of a logical database, with row count and last update"),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
	), s.handleGetDatabaseSchema)

	s.mcp.AddTool(mcp.NewTool("create_database",
		mcp.WithDescription("Create a logical database. Task and event databases get their default columns when none are given."),
		mcp.WithString("name", mcp.Description("Database name"), mcp.Required()),
		mcp.WithString("type", mcp.Description("Database type (default generic)"), mcp.Enum("task", "event", "generic")),
		mcp.WithString("ownerId", mcp.Description("Owner ID (optional, defaults to the configured owner)")),
		mcp.WithString("parentId", mcp.Description("Project or page the database belongs to")),
		mcp.WithString("columns", mcp.Description("JSON array of column definitions (optional)")),
		mcp.WithBoolean("provision", mcp.Description("Create the physical table now instead of on the first write")),
	), s.handleCreateDatabase)

	s.mcp.AddTool(mcp.NewTool("delete_database",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a database with all its rows and documents."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDatabase)

	s.mcp.AddTool(mcp.NewTool("add_column",
		mcp.WithDescription("Add a column to a database. A name already in use gets a numeric suffix."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("column", mcp.Description(columnDefHelp), mcp.Required()),
	), s.handleAddColumn)

	s.mcp.AddTool(mcp.NewTool("update_column",
		mcp.WithDescription("Rename a column or change its visibility, readonly flag or options. The type cannot change."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("columnId", mcp.Description("Column ID"), mcp.Required()),
		mcp.WithString("patch", mcp.Description(`JSON object with any of {"name", "visible", "readonly", "options"}`), mcp.Required()),
	), s.handleUpdateColumn)

	s.mcp.AddTool(mcp.NewTool("delete_column",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a column and the data stored in it."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("columnId", mcp.Description("Column ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteColumn)
}

func (s *Server) handleListDatabases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	owner := s.owner(args)

	var (
		dbs []domain.LogicalDatabase
		err error
	)
	if t := req.GetString("type", ""); t != "" {
		dbs, err = s.databases.ListByType(ctx, owner, domain.DatabaseType(t))
	} else {
		dbs, err = s.databases.ListDatabases(ctx, owner)
	}
	if err != nil {
		return s.fail("list_databases", err), nil
	}

	type databaseSummary struct {
		ID      string              `json:"id"`
		Name    string              `json:"name"`
		Type    domain.DatabaseType `json:"type"`
		Columns int                 `json:"columns"`
	}
	out := make([]databaseSummary, 0, len(dbs))
	for _, db := range dbs {
		out = append(out, databaseSummary{ID: db.ID, Name: db.Name, Type: db.Type, Columns: len(db.Columns)})
	}
	return jsonResult(out)
}

func (s *Server) handleGetDatabaseSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "databaseId")
	if err != nil {
		return s.fail("get_database_schema", err), nil
	}
	db, err := s.databases.GetDatabase(ctx, id)
	if err != nil {
		return s.fail("get_database_schema", err), nil
	}
	stats, err := s.databases.Stats(ctx, id)
	if err != nil {
		return s.fail("get_database_schema", err), nil
	}
	return jsonResult(map[string]any{
		"database": db,
		"stats":    stats,
	})
}

func (s *Server) handleCreateDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := domain.CreateDatabaseInput{
		Name:     req.GetString("name", ""),
		Type:     domain.DatabaseType(req.GetString("type", "")),
		OwnerID:  s.owner(args),
		ParentID: req.GetString("parentId", ""),
	}
	if err := decodeArg(args, "columns", &in.Columns); err != nil {
		return s.fail("create_database", err), nil
	}
	var raw []map[string]any
	_ = decodeArg(args, "columns", &raw)
	for i := range in.Columns {
		if i < len(raw) {
			if _, set := raw[i]["visible"]; set {
				continue
			}
		}
		in.Columns[i].Visible = true
	}
	db, err := s.databases.CreateDatabase(ctx, in, getBool(args, "provision"))
	if err != nil {
		return s.fail("create_database", err), nil
	}
	return jsonResult(db)
}

func (s *Server) handleDeleteDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "databaseId")
	if err != nil {
		return s.fail("delete_database", err), nil
	}
	if err := s.databases.DeleteDatabase(ctx, id); err != nil {
		return s.fail("delete_database", err), nil
	}
	return textResult(fmt.Sprintf("Deleted database %s", id)), nil
}

func (s *Server) handleAddColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("add_column", err), nil
	}
	var raw map[string]any
	if err := decodeArg(args, "column", &raw); err != nil {
		return s.fail("add_column", err), nil
	}
	var def domain.ColumnDef
	if err := decodeArg(args, "column", &def); err != nil {
		return s.fail("add_column", err), nil
	}
	if _, set := raw["visible"]; !set {
		def.Visible = true
	}
	change, err := s.databases.AddColumn(ctx, id, def)
	if err != nil {
		return s.fail("add_column", err), nil
	}
	return jsonResult(change)
}

func (s *Server) handleUpdateColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("update_column", err), nil
	}
	colID, err := requireString(args, "columnId")
	if err != nil {
		return s.fail("update_column", err), nil
	}
	var patch service.ColumnPatch
	if err := decodeArg(args, "patch", &patch); err != nil {
		return s.fail("update_column", err), nil
	}
	col, err := s.databases.UpdateColumn(ctx, id, colID, patch)
	if err != nil {
		return s.fail("update_column", err), nil
	}
	return jsonResult(col)
}

func (s *Server) handleDeleteColumn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("delete_column", err), nil
	}
	colID, err := requireString(args, "columnId")
	if err != nil {
		return s.fail("delete_column", err), nil
	}
	change, err := s.databases.DeleteColumn(ctx, id, colID)
	if err != nil {
		return s.fail("delete_column", err), nil
	}
	return jsonResult(change)
}
