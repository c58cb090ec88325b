package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
)

// Adapter samples PostgreSQL tables. Each row is rendered by the server with
// row_to_json, so json/jsonb columns arrive as nested objects and numeric columns keep
// their integer or decimal form.
type Adapter struct {
	config *Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped to handle special characters in passwords
// (e.g., @, /, #, ?) that would otherwise break URL parsing.
func buildConnectionString(cfg *Config) string {
	if cfg.URI != "" {
		return cfg.URI
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return config.ResolveURIForDocker(fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	))
}

// NewAdapter opens a connection pool. The pool connects lazily; use TestConnection to
// verify reachability.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	connStr := buildConnectionString(cfg)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %s", logging.SanitizeError(err))
	}
	poolConfig.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Debug("Opened postgres pool",
		logging.URI("uri", connStr),
		zap.String("schema", cfg.Schema))

	return &Adapter{
		config: cfg,
		pool:   pool,
		logger: logger,
	}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1
	  AND table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY table_name`

// ListCollections returns the tables and views of the configured schema.
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, listTablesQuery, a.config.Schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

const tableExistsQuery = `
	SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2
	)`

// SampleDocuments returns up to limit randomly ordered rows of table.
func (a *Adapter) SampleDocuments(ctx context.Context, table string, limit int) ([]document.Document, error) {
	var exists bool
	if err := a.pool.QueryRow(ctx, tableExistsQuery, a.config.Schema, table).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check table %s: %w", table, err)
	}
	if !exists {
		return nil, fmt.Errorf("table %s.%s: %w", a.config.Schema, table, apperrors.ErrNotFound)
	}

	rows, err := a.pool.Query(ctx, sampleQuery(a.config.Schema, table), limit)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}

	docs := make([]document.Document, 0, len(raw))
	for i, r := range raw {
		doc, err := jsonutil.DecodeDocument([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("decode row %d of %s: %w", i, table, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// sampleQuery renders the sampling statement with safely quoted identifiers. The row
// limit is the only parameter.
func sampleQuery(schema, table string) string {
	ident := pgx.Identifier{schema, table}.Sanitize()
	return fmt.Sprintf(
		"SELECT row_to_json(t)::text FROM (SELECT * FROM %s ORDER BY random() LIMIT $1) AS t",
		ident,
	)
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// Ensure Adapter implements DocumentSampler at compile time.
var _ datasource.DocumentSampler = (*Adapter)(nil)
