package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"dyntables/internal/service"
)

func (s *Server) registerBuilderTools() {
	s.mcp.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task in a task database. The task number is assigned automatically and the status defaults to backlog."),
		mcp.WithString("databaseId", mcp.Description("Task database ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Status choice id or label")),
		mcp.WithString("priority", mcp.Description("Priority choice id or label")),
		mcp.WithString("dueDate", mcp.Description("Due date (YYYY-MM-DD)")),
		mcp.WithString("assignee", mcp.Description("Assignee")),
		mcp.WithString("tags", mcp.Description("JSON array of tags")),
		mcp.WithString("fields", mcp.Description("JSON object of other cells keyed by column name")),
		mcp.WithBoolean("withDocument", mcp.Description("Also create the task's document")),
	), s.handleCreateTask)

	s.mcp.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update a task. Fields left out are untouched; the task number never changes."),
		mcp.WithString("databaseId", mcp.Description("Task database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Task row ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Task title")),
		mcp.WithString("status", mcp.Description("Status choice id or label")),
		mcp.WithString("priority", mcp.Description("Priority choice id or label")),
		mcp.WithString("dueDate", mcp.Description("Due date (YYYY-MM-DD), empty to clear")),
		mcp.WithString("assignee", mcp.Description("Assignee, empty to clear")),
		mcp.WithString("tags", mcp.Description("JSON array of tags")),
		mcp.WithString("fields", mcp.Description("JSON object of other cells keyed by column name")),
	), s.handleUpdateTask)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks across every task database of an owner"),
		mcp.WithString("ownerId", mcp.Description("Owner ID (optional, defaults to the configured owner)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks (default 50)")),
	), s.handleListTasks)

	s.mcp.AddTool(mcp.NewTool("create_event",
		mcp.WithDescription("Create an event in an event database. Category labels in French or English map to the default categories."),
		mcp.WithString("databaseId", mcp.Description("Event database ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Event title"), mcp.Required()),
		mcp.WithString("start", mcp.Description("Start (ISO-8601)")),
		mcp.WithString("end", mcp.Description("End (ISO-8601)")),
		mcp.WithString("location", mcp.Description("Location")),
		mcp.WithString("category", mcp.Description("Category: meeting, personal, work, deadline, travel, other or a custom label")),
		mcp.WithString("description", mcp.Description("Description")),
		mcp.WithString("attendees", mcp.Description(`JSON array of {"email", "name", "status"}`)),
		mcp.WithString("guestPermissions", mcp.Description(`JSON object {"canModify", "canInvite", "canSeeGuests"}`)),
		mcp.WithString("reminders", mcp.Description(`JSON array of {"method", "minutes"}`)),
		mcp.WithString("fields", mcp.Description("JSON object of other cells keyed by column name")),
		mcp.WithBoolean("withDocument", mcp.Description("Also create the event's document")),
	), s.handleCreateEvent)

	s.mcp.AddTool(mcp.NewTool("update_event",
		mcp.WithDescription("Update an event. Attendees and guest permissions can be changed independently."),
		mcp.WithString("databaseId", mcp.Description("Event database ID"), mcp.Required()),
		mcp.WithString("rowId", mcp.Description("Event row ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Event title")),
		mcp.WithString("start", mcp.Description("Start (ISO-8601)")),
		mcp.WithString("end", mcp.Description("End (ISO-8601)")),
		mcp.WithString("location", mcp.Description("Location")),
		mcp.WithString("category", mcp.Description("Category")),
		mcp.WithString("description", mcp.Description("Description")),
		mcp.WithString("attendees", mcp.Description(`JSON array of {"email", "name", "status"}`)),
		mcp.WithString("guestPermissions", mcp.Description(`JSON object {"canModify", "canInvite", "canSeeGuests"}`)),
		mcp.WithString("reminders", mcp.Description(`JSON array of {"method", "minutes"}`)),
		mcp.WithString("fields", mcp.Description("JSON object of other cells keyed by column name")),
	), s.handleUpdateEvent)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("List events across every event database of an owner"),
		mcp.WithString("ownerId", mcp.Description("Owner ID (optional, defaults to the configured owner)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 50)")),
	), s.handleListEvents)
}

var (
	taskStructured  = []string{"tags", "fields"}
	eventStructured = []string{"attendees", "guestPermissions", "reminders", "fields"}
)

func (s *Server) handleCreateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in service.TaskInput
	if err := decodeArgs(req.GetArguments(), &in, taskStructured...); err != nil {
		return s.fail("create_task", err), nil
	}
	res, err := s.tasks.CreateTask(ctx, in)
	if err != nil {
		return s.fail("create_task", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleUpdateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("update_task", err), nil
	}
	rowID, err := requireString(args, "rowId")
	if err != nil {
		return s.fail("update_task", err), nil
	}
	var p service.TaskPatch
	if err := decodeArgs(args, &p, taskStructured...); err != nil {
		return s.fail("update_task", err), nil
	}
	row, err := s.tasks.UpdateTask(ctx, id, rowID, p)
	if err != nil {
		return s.fail("update_task", err), nil
	}
	return jsonResult(row)
}

func (s *Server) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	rows, err := s.tasks.ListTasks(ctx, s.owner(args), getInt(args, "limit", 0))
	if err != nil {
		return s.fail("list_tasks", err), nil
	}
	return jsonResult(rows)
}

func (s *Server) handleCreateEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in service.EventInput
	if err := decodeArgs(req.GetArguments(), &in, eventStructured...); err != nil {
		return s.fail("create_event", err), nil
	}
	res, err := s.events.CreateEvent(ctx, in)
	if err != nil {
		return s.fail("create_event", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleUpdateEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("update_event", err), nil
	}
	rowID, err := requireString(args, "rowId")
	if err != nil {
		return s.fail("update_event", err), nil
	}
	var p service.EventPatch
	if err := decodeArgs(args, &p, eventStructured...); err != nil {
		return s.fail("update_event", err), nil
	}
	row, err := s.events.UpdateEvent(ctx, id, rowID, p)
	if err != nil {
		return s.fail("update_event", err), nil
	}
	return jsonResult(row)
}

func (s *Server) handleListEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	rows, err := s.events.ListEvents(ctx, s.owner(args), getInt(args, "limit", 0))
	if err != nil {
		return s.fail("list_events", err), nil
	}
	return jsonResult(rows)
}
