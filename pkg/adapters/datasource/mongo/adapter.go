package mongo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
)

// Adapter samples MongoDB collections with the $sample aggregation stage.
type Adapter struct {
	config *Config
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewAdapter creates a client. The driver connects lazily; use TestConnection to
// verify reachability.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	uri := config.ResolveURIForDocker(cfg.URI)

	clientOpts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetAppName("ekaya-catalog")

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %s", logging.SanitizeError(err))
	}

	logger.Debug("Created mongo client",
		logging.URI("uri", uri),
		zap.String("database", cfg.Database))

	return &Adapter{
		config: cfg,
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// TestConnection pings the primary.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.ConnectTimeout)
	defer cancel()

	if err := a.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// ListCollections returns the collection names of the database, excluding system
// collections.
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	filter := bson.D{{Key: "name", Value: bson.D{{Key: "$not", Value: bson.Regex{Pattern: "^system\\."}}}}}
	names, err := a.db.ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// SampleDocuments returns up to limit randomly chosen documents of collection.
func (a *Adapter) SampleDocuments(ctx context.Context, collection string, limit int) ([]document.Document, error) {
	names, err := a.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("collection %s.%s: %w", a.config.Database, collection, apperrors.ErrNotFound)
	}

	start := time.Now()
	cursor, err := a.db.Collection(collection).Aggregate(ctx, samplePipeline(limit))
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]document.Document, 0, limit)
	for cursor.Next(ctx) {
		var d bson.D
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		docs = append(docs, toDocument(d))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	a.logger.Debug("Sampled collection",
		zap.String("collection", collection),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)))
	return docs, nil
}

func samplePipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: limit}}}},
	}
}

// Close disconnects the client.
func (a *Adapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}

// Ensure Adapter implements DocumentSampler at compile time.
var _ datasource.DocumentSampler = (*Adapter)(nil)
