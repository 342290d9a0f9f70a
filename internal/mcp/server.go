package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"dyntables/internal/domain"
	"dyntables/internal/service"
)

// Server is the MCP server of the database layer. It exposes databases,
// rows, imports and the task/event builders as tools.
type Server struct {
	mcp *server.MCPServer
	log *zap.SugaredLogger

	// Owner used when a tool call does not name one.
	ownerID string

	databases *service.DatabaseService
	rows      *service.RowService
	importer  *service.Importer
	tasks     *service.TaskService
	events    *service.EventService
	jobs      *service.ImportJobService
}

// Deps holds everything the MCP server needs from the composition root.
type Deps struct {
	Name      string
	Version   string
	OwnerID   string
	Log       *zap.SugaredLogger
	Databases *service.DatabaseService
	Rows      *service.RowService
	Importer  *service.Importer
	Tasks     *service.TaskService
	Events    *service.EventService
	Jobs      *service.ImportJobService
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Name == "" {
		deps.Name = "dyntables"
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		log:       deps.Log,
		ownerID:   deps.OwnerID,
		databases: deps.Databases,
		rows:      deps.Rows,
		importer:  deps.Importer,
		tasks:     deps.Tasks,
		events:    deps.Events,
		jobs:      deps.Jobs,
	}

	s.mcp = server.NewMCPServer(
		deps.Name,
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDatabaseTools()
	s.registerRowTools()
	s.registerBuilderTools()
	s.registerImportTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx is cancelled or stdin
// is closed.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log.Desugar()))
	s.log.Info("mcp: starting stdio server")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// fail turns err into an error result. The caller sees the error code and
// a message safe to show; backend detail only goes to the log.
func (s *Server) fail(tool string, err error) *mcp.CallToolResult {
	var de *domain.Error
	fields := []any{"tool", tool, "code", domain.Code(err), "error", err}
	if errors.As(err, &de) {
		fields = append(fields, "database", de.DatabaseID, "row", de.RowID, "column", de.Column)
	}
	s.log.Errorw("mcp: tool call failed", fields...)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", domain.Code(err), service.PublicMessage(err)))
}

// owner returns the ownerId argument or the server default.
func (s *Server) owner(args map[string]any) string {
	if o, ok := args["ownerId"].(string); ok && o != "" {
		return o
	}
	return s.ownerID
}
