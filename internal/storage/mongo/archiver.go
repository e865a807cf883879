// Package mongo stores every saved document as a BSON document.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Name labels this archiver in logs and metrics.
const Name = "mongo"

const connectTimeout = 10 * time.Second

// Config locates the target collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

type inserter interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Record is the stored shape: the document plus where it was written.
type Record struct {
	RunID            string `bson:"run_id"`
	Prefix           string `bson:"prefix"`
	RecordPath       string `bson:"record_path"`
	TablePath        string `bson:"table_path,omitempty"`
	harvest.Document `bson:",inline"`
}

// Archiver inserts one Record per saved document.
type Archiver struct {
	client     *mongo.Client
	collection inserter
	logger     *zap.Logger
}

// Open connects, pings and ensures the lookup indexes exist.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Archiver, error) {
	if cfg.URI == "" || cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo uri, database and collection are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // ping error takes precedence
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "metadata.url", Value: 1}, {Key: "metadata.fetched_at", Value: -1}}},
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
	})
	if err != nil {
		logger.Warn("failed to create mongo indexes", zap.Error(err))
	}

	a := NewWithCollection(collection, logger)
	a.client = client
	return a, nil
}

// NewWithCollection wraps an existing collection (primarily for testing).
func NewWithCollection(collection inserter, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{collection: collection, logger: logger.Named(Name)}
}

// Close disconnects the client when Open created it.
func (a *Archiver) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

// Archive inserts the document.
func (a *Archiver) Archive(ctx context.Context, saved harvest.SavedDocument) error {
	if saved.Document == nil {
		return fmt.Errorf("document is required")
	}
	res, err := a.collection.InsertOne(ctx, NewRecord(saved))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	a.logger.Debug("document inserted", zap.Any("id", res.InsertedID), zap.String("url", saved.Document.Metadata.URL))
	return nil
}

// NewRecord builds the stored shape for saved.
func NewRecord(saved harvest.SavedDocument) Record {
	r := Record{
		RunID:      saved.RunID,
		Prefix:     saved.Prefix,
		RecordPath: saved.Paths.Record,
		TablePath:  saved.Paths.Table,
	}
	if saved.Document != nil {
		r.Document = *saved.Document
	}
	return r
}
