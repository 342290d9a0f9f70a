package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"dyntables/internal/service"
)

const (
	databasesURI      = "dyntables://databases"
	databaseSchemaURI = "dyntables://database/{databaseId}/schema"
)

func (s *Server) registerResources() {
	// ── dyntables://databases ──────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		databasesURI,
		"All Databases",
		mcp.WithMIMEType("application/json"),
	), s.handleDatabasesResource)

	// ── dyntables://database/{databaseId}/schema ───────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			databaseSchemaURI,
			"Columns of a Database",
		),
		s.handleDatabaseSchemaResource,
	)
}

func (s *Server) handleDatabasesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	dbs, err := s.databases.ListDatabases(ctx, s.ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s", service.PublicMessage(err))
	}

	type databaseSummary struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	summaries := make([]databaseSummary, 0, len(dbs))
	for _, db := range dbs {
		summaries = append(summaries, databaseSummary{ID: db.ID, Name: db.Name, Type: string(db.Type)})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      databasesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDatabaseSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := databaseIDFromURI(uri)
	if id == "" {
		return nil, fmt.Errorf("could not extract databaseId from URI: %s", uri)
	}
	db, err := s.databases.GetDatabase(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s", service.PublicMessage(err))
	}

	data, _ := json.MarshalIndent(db.Columns, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// databaseIDFromURI extracts the id from dyntables://database/{id}/schema.
func databaseIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "dyntables://database/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}
