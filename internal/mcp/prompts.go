package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("task_board",
		mcp.WithPromptDescription("Set up a task database and fill it with the tasks of a project"),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("Project the tasks belong to"),
			mcp.RequiredArgument(),
		),
	), s.handleTaskBoardPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("csv_import",
		mcp.WithPromptDescription("Import a CSV file into a new or existing database"),
		mcp.WithArgument("filePath",
			mcp.ArgumentDescription("Path of the CSV file"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("schedule",
			mcp.ArgumentDescription("Cron expression to re-import on a schedule (optional)"),
		),
	), s.handleCSVImportPrompt)
}

func (s *Server) handleTaskBoardPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	project := req.Params.Arguments["project"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Create a task board for: %s", project),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Create a task board for "%s". Follow these steps:

1. Use list_databases with type "task" to check whether a task database for this project exists
2. If not, create one with create_database (type "task"); it comes with Title, Task Number, Status, Priority, Due Date, Assignee and Tags
3. Break the project down into tasks and add each one with create_task
4. Use list_tasks to show the result grouped by status

Task numbers are assigned automatically; never set them yourself.`, project),
				},
			},
		},
	}, nil
}

func (s *Server) handleCSVImportPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	path := req.Params.Arguments["filePath"]
	schedule := req.Params.Arguments["schedule"]
	last := "5. Report how many rows were imported and list the rows that failed with their reason"
	if schedule != "" {
		last = fmt.Sprintf(`5. Save the import with create_import_job (triggerType "schedule", triggerConfig "%s")`, schedule)
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Import %s", path),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Import the CSV file %s. Follow these steps:

1. Use list_databases to find a database whose columns match the file's headers
2. If none matches, create one with create_database; column names must equal the CSV headers exactly
3. Check the schema with get_database_schema
4. Run import_csv with filePath "%s" (use createMissingColumns to add columns for extra headers)
%s`, path, path, last),
				},
			},
		},
	}, nil
}
