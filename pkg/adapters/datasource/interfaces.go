package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
)

// ConnectionTester tests datasource connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the datasource is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// DocumentSampler reads sample documents from the collections (tables, files) of one
// datasource. Values are converted into the document model so the schema extractor
// never sees driver types.
type DocumentSampler interface {
	ConnectionTester

	// ListCollections returns the names of all collections the datasource exposes,
	// sorted.
	ListCollections(ctx context.Context) ([]string, error)

	// SampleDocuments returns up to limit documents of collection. Implementations
	// sample randomly where the store supports it. A collection that does not exist
	// is an error wrapping apperrors.ErrNotFound.
	SampleDocuments(ctx context.Context, collection string, limit int) ([]document.Document, error)
}
