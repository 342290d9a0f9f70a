package mcpserver

import (
	"context"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"dyntables/internal/domain"
	"dyntables/internal/etl"
	"dyntables/internal/service"
)

func (s *Server) registerImportTools() {
	s.mcp.AddTool(mcp.NewTool("import_csv",
		mcp.WithDescription("Import CSV data into a database. Headers match column names exactly. Rows that fail are reported and the others are imported."),
		mcp.WithString("databaseId", mcp.Description("Database ID"), mcp.Required()),
		mcp.WithString("csv", mcp.Description("CSV text with a header row (or use filePath)")),
		mcp.WithString("filePath", mcp.Description("Path of a CSV file readable by the server")),
		mcp.WithString("delimiter", mcp.Description("Field delimiter (default comma)")),
		mcp.WithString("strategy", mcp.Description("batch inserts rows in chunks; row_document also creates a document per row"), mcp.Enum("batch", "row_document")),
		mcp.WithString("titleColumn", mcp.Description("Column whose value titles the documents (default Title, Nom or Name)")),
		mcp.WithBoolean("skipUnknownColumns", mcp.Description("Ignore headers that match no column")),
		mcp.WithBoolean("createMissingColumns", mcp.Description("Add a column for every header that matches no column")),
	), s.handleImportCSV)

	s.mcp.AddTool(mcp.NewTool("create_import_job",
		mcp.WithDescription("Save a CSV import that runs by hand, on a cron schedule or when the file changes"),
		mcp.WithString("name", mcp.Description("Job name"), mcp.Required()),
		mcp.WithString("databaseId", mcp.Description("Target database ID"), mcp.Required()),
		mcp.WithString("filePath", mcp.Description("CSV file path"), mcp.Required()),
		mcp.WithString("triggerType", mcp.Description("What starts the job (default manual)"), mcp.Enum("manual", "schedule", "file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, watched path for file_watch")),
		mcp.WithString("titleColumn", mcp.Description("Column whose value titles the documents")),
		mcp.WithBoolean("withDocuments", mcp.Description("Create a document for every imported row")),
		mcp.WithBoolean("skipUnknownColumns", mcp.Description("Ignore headers that match no column")),
		mcp.WithBoolean("enabled", mcp.Description("Whether the schedule or watcher is active")),
	), s.handleCreateImportJob)

	s.mcp.AddTool(mcp.NewTool("list_import_jobs",
		mcp.WithDescription("List saved import jobs with their last status"),
	), s.handleListImportJobs)

	s.mcp.AddTool(mcp.NewTool("run_import_job",
		mcp.WithDescription("Run a saved import job now"),
		mcp.WithString("jobId", mcp.Description("Import job ID"), mcp.Required()),
	), s.handleRunImportJob)
}

func (s *Server) handleImportCSV(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "databaseId")
	if err != nil {
		return s.fail("import_csv", err), nil
	}

	var opts etl.CSVOptions
	if d := req.GetString("delimiter", ""); d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return s.fail("import_csv", domain.Validation("import csv", "delimiter must be a single character")), nil
		}
		opts.Delimiter = r
	}

	var table *etl.Table
	switch text, path := req.GetString("csv", ""), req.GetString("filePath", ""); {
	case text != "":
		table, err = etl.ReadCSVString(text, opts)
	case path != "":
		table, err = etl.ReadCSVFile(path, opts)
	default:
		err = domain.Validation("import csv", "csv or filePath is required")
	}
	if err != nil {
		if domain.KindOf(err) == domain.ErrBackend {
			err = domain.Validation("import csv", "%v", err)
		}
		return s.fail("import_csv", err), nil
	}

	res, err := s.importer.ImportCSV(ctx, id, table, service.CSVImportOptions{
		ImportOptions: service.ImportOptions{
			Strategy:    service.ImportStrategy(req.GetString("strategy", "")),
			TitleColumn: req.GetString("titleColumn", ""),
		},
		SkipUnknownColumns:   getBool(args, "skipUnknownColumns"),
		CreateMissingColumns: getBool(args, "createMissingColumns"),
	})
	if err != nil {
		return s.fail("import_csv", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleCreateImportJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in service.ImportJobInput
	if err := decodeArgs(req.GetArguments(), &in); err != nil {
		return s.fail("create_import_job", err), nil
	}
	job, err := s.jobs.CreateJob(ctx, in)
	if err != nil {
		return s.fail("create_import_job", err), nil
	}
	return jsonResult(job)
}

func (s *Server) handleListImportJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return s.fail("list_import_jobs", err), nil
	}
	return jsonResult(jobs)
}

func (s *Server) handleRunImportJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "jobId")
	if err != nil {
		return s.fail("run_import_job", err), nil
	}
	res, err := s.jobs.RunJob(ctx, id)
	if err != nil {
		return s.fail("run_import_job", err), nil
	}
	return jsonResult(res)
}
