package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"dyntables/internal/dbclient"
	"dyntables/internal/domain"

	"github.com/google/uuid"
)

// DocumentStore implements domain.DocumentStore on the linked_documents table.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, in domain.CreateDocumentInput) (*domain.LinkedDocument, error) {
	if _, err := s.GetDocumentByRow(ctx, in.DatabaseID, in.RowID); err == nil {
		return nil, &domain.Error{Kind: domain.ErrConflict, Op: "create document",
			DatabaseID: in.DatabaseID, RowID: in.RowID, Message: "row already has a document"}
	}

	now := time.Now().UTC()
	doc := &domain.LinkedDocument{
		ID:         uuid.NewString(),
		DatabaseID: in.DatabaseID,
		RowID:      in.RowID,
		Title:      in.Title,
		OwnerID:    in.OwnerID,
		ProjectID:  in.ProjectID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO linked_documents (id, database_id, row_id, title, owner_id, project_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		doc.ID, doc.DatabaseID, doc.RowID, doc.Title, doc.OwnerID, doc.ProjectID,
		s.db.dialect.BindTime(now), s.db.dialect.BindTime(now),
	)
	if err != nil {
		return nil, domain.Backend("create document", err)
	}
	return doc, nil
}

func (s *DocumentStore) GetDocumentByRow(ctx context.Context, databaseID, rowID string) (*domain.LinkedDocument, error) {
	doc := &domain.LinkedDocument{}
	var createdAt, updatedAt any
	err := s.db.queryRow(ctx, s.db.conn,
		`SELECT id, database_id, row_id, title, owner_id, project_id, content, created_at, updated_at
		 FROM linked_documents WHERE database_id = ? AND row_id = ?`, databaseID, rowID,
	).Scan(&doc.ID, &doc.DatabaseID, &doc.RowID, &doc.Title, &doc.OwnerID, &doc.ProjectID, &doc.Content, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("get document", "document for row", rowID).WithDatabase(databaseID)
	}
	if err != nil {
		return nil, domain.Backend("get document", err)
	}
	doc.CreatedAt = dbclient.ParseTime(createdAt)
	doc.UpdatedAt = dbclient.ParseTime(updatedAt)
	return doc, nil
}

func (s *DocumentStore) DeleteDocumentsByRows(ctx context.Context, databaseID string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(rowIDs)+1)
	args = append(args, databaseID)
	for _, id := range rowIDs {
		args = append(args, id)
	}
	_, err := s.db.exec(ctx, s.db.conn,
		`DELETE FROM linked_documents WHERE database_id = ? AND row_id IN (`+placeholders(len(rowIDs))+`)`,
		args...,
	)
	return domain.Backend("delete documents", err)
}

func (s *DocumentStore) DeleteDocumentsByDatabase(ctx context.Context, databaseID string) (int64, error) {
	res, err := s.db.exec(ctx, s.db.conn, `DELETE FROM linked_documents WHERE database_id = ?`, databaseID)
	if err != nil {
		return 0, domain.Backend("delete documents", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var _ domain.DocumentStore = (*DocumentStore)(nil)
