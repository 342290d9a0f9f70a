package domain

import (
	"context"
	"time"
)

// LinkedDocument is the free-text page attached one-to-one to a row.
type LinkedDocument struct {
	ID         string    `json:"id" bson:"_id"`
	DatabaseID string    `json:"databaseId" bson:"database_id"`
	RowID      string    `json:"rowId" bson:"row_id"`
	Title      string    `json:"title" bson:"title"`
	OwnerID    string    `json:"ownerId" bson:"owner_id"`
	ProjectID  string    `json:"projectId,omitempty" bson:"project_id,omitempty"`
	Content    string    `json:"content" bson:"content"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

// CreateDocumentInput describes the document created alongside a row.
type CreateDocumentInput struct {
	Title      string `json:"title"`
	DatabaseID string `json:"databaseId"`
	RowID      string `json:"rowId"`
	OwnerID    string `json:"ownerId"`
	ProjectID  string `json:"projectId,omitempty"`
}

// DocumentStore persists linked documents keyed by (database, row).
type DocumentStore interface {
	CreateDocument(ctx context.Context, in CreateDocumentInput) (*LinkedDocument, error)
	GetDocumentByRow(ctx context.Context, databaseID, rowID string) (*LinkedDocument, error)
	DeleteDocumentsByRows(ctx context.Context, databaseID string, rowIDs []string) error
	DeleteDocumentsByDatabase(ctx context.Context, databaseID string) (int64, error)
}
