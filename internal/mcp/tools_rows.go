package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"dyntables/internal/domain"
)

func (s *Server) registerRowTools() {
	s.mcp.AddTool(mcp.NewTool("get_database_rows",
		mcp.WithDescription("Read rows of a database with optional filters, sort and paging. Cells are keyed by column ID; empty cells are left out."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("filters", mcp.Description(`JSON array of {"columnId", "operator", "value"}. Operators: equals, not_equals, contains, not_contains, starts_with, ends_with, is_empty, is_not_empty, gt, gte, lt, lte`)),
		mcp.WithString("sortColumn", mcp.Description("Column ID, or row_order / created_at / updated_at (default row_order)")),
		mcp.WithString("sortDirection", mcp.Description("Sort direction"), mcp.Enum("asc", "desc")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip")),
	), s.handleGetRows)

	s.mcp.AddTool(mcp.NewTool("add_database_row",
		mcp.WithDescription("Insert a row. The table is created on the first write."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("cells", mcp.Description("JSON object {columnId: value, ...}"), mcp.Required()),
		mcp.WithNumber("rowOrder", mcp.Description("Position of the row (default 0)")),
		mcp.WithBoolean("withDocument", mcp.Description("Also create the row's linked document")),
	), s.handleAddRow)

	s.mcp.AddTool(mcp.NewTool("update_database_row",
		mcp.WithDescription("Update cells of a row. Cells left out are untouched; a null value clears the cell."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Row ID"), mcp.Required()),
		mcp.WithString("cells", mcp.Description("JSON object {columnId: value, ...}"), mcp.Required()),
	), s.handleUpdateRow)

	s.mcp.AddTool(mcp.NewTool("delete_database_rows",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete rows and their linked documents."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("rowIds", mcp.Description("JSON array of row IDs"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteRows)
}

func (s *Server) handleGetRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("get_database_rows", err), nil
	}
	q := domain.RowQuery{
		SortColumn:    req.GetString("sortColumn", ""),
		SortDirection: domain.SortDirection(req.GetString("sortDirection", "")),
		Limit:         getInt(args, "limit", 0),
		Offset:        getInt(args, "offset", 0),
	}
	if err := decodeArg(args, "filters", &q.Filters); err != nil {
		return s.fail("get_database_rows", err), nil
	}
	page, err := s.rows.GetRowsWithCount(ctx, id, q)
	if err != nil {
		return s.fail("get_database_rows", err), nil
	}
	return jsonResult(page)
}

func (s *Server) handleAddRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("add_database_row", err), nil
	}
	cells := map[string]any{}
	if err := decodeArg(args, "cells", &cells); err != nil {
		return s.fail("add_database_row", err), nil
	}
	var order *float64
	if _, ok := args["rowOrder"]; ok {
		o := getFloat(args, "rowOrder", 0)
		order = &o
	}
	row, err := s.rows.AddRow(ctx, id, cells, order)
	if err != nil {
		return s.fail("add_database_row", err), nil
	}
	if !getBool(args, "withDocument") {
		return jsonResult(row)
	}

	out := map[string]any{"row": row}
	doc, _, err := s.rows.EnsureDocument(ctx, id, row.ID, "")
	if err != nil {
		s.log.Warnw("mcp: row added without its document", "database", id, "row", row.ID, "error", err)
		out["documentError"] = fmt.Sprintf("%s: the row was saved but its document was not created", domain.Code(err))
	} else {
		out["document"] = doc
	}
	return jsonResult(out)
}

func (s *Server) handleUpdateRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("update_database_row", err), nil
	}
	rowID, err := requireString(args, "rowId")
	if err != nil {
		return s.fail("update_database_row", err), nil
	}
	cells := map[string]any{}
	if err := decodeArg(args, "cells", &cells); err != nil {
		return s.fail("update_database_row", err), nil
	}
	row, err := s.rows.UpdateRow(ctx, id, rowID, cells)
	if err != nil {
		return s.fail("update_database_row", err), nil
	}
	return jsonResult(row)
}

func (s *Server) handleDeleteRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("delete_database_rows", err), nil
	}
	var rowIDs []string
	if err := decodeArg(args, "rowIds", &rowIDs); err != nil {
		return s.fail("delete_database_rows", err), nil
	}
	n, err := s.rows.DeleteRows(ctx, id, rowIDs)
	if err != nil {
		return s.fail("delete_database_rows", err), nil
	}
	return textResult(fmt.Sprintf("Deleted %d row(s)", n)), nil
}
