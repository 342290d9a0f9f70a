package dbclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dyntables/internal/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const documentsCollection = "linked_documents"

// MongoDocumentStore keeps linked documents in a MongoDB collection with a
// unique (database_id, row_id) index.
type MongoDocumentStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.SugaredLogger
}

// NewMongoDocumentStore connects to uri and prepares the documents collection.
func NewMongoDocumentStore(ctx context.Context, uri, dbName string, log *zap.SugaredLogger) (*MongoDocumentStore, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		return nil, fmt.Errorf("invalid mongo uri: must start with mongodb:// or mongodb+srv://")
	}
	if dbName == "" {
		dbName = "dyntables"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(dbName).Collection(documentsCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "database_id", Value: 1}, {Key: "row_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create documents index: %w", err)
	}

	log.Infof("documents: using mongodb database %s", dbName)
	return &MongoDocumentStore{client: client, coll: coll, log: log}, nil
}

func (m *MongoDocumentStore) CreateDocument(ctx context.Context, in domain.CreateDocumentInput) (*domain.LinkedDocument, error) {
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
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &domain.Error{Kind: domain.ErrConflict, Op: "create document",
				DatabaseID: in.DatabaseID, RowID: in.RowID, Message: "row already has a document"}
		}
		return nil, domain.Backend("create document", err)
	}
	return doc, nil
}

func (m *MongoDocumentStore) GetDocumentByRow(ctx context.Context, databaseID, rowID string) (*domain.LinkedDocument, error) {
	var doc domain.LinkedDocument
	err := m.coll.FindOne(ctx, bson.M{"database_id": databaseID, "row_id": rowID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound("get document", "document for row", rowID).WithDatabase(databaseID)
	}
	if err != nil {
		return nil, domain.Backend("get document", err)
	}
	return &doc, nil
}

func (m *MongoDocumentStore) DeleteDocumentsByRows(ctx context.Context, databaseID string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	_, err := m.coll.DeleteMany(ctx, bson.M{"database_id": databaseID, "row_id": bson.M{"$in": rowIDs}})
	return domain.Backend("delete documents", err)
}

func (m *MongoDocumentStore) DeleteDocumentsByDatabase(ctx context.Context, databaseID string) (int64, error) {
	res, err := m.coll.DeleteMany(ctx, bson.M{"database_id": databaseID})
	if err != nil {
		return 0, domain.Backend("delete documents", err)
	}
	return res.DeletedCount, nil
}

func (m *MongoDocumentStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

var _ domain.DocumentStore = (*MongoDocumentStore)(nil)
