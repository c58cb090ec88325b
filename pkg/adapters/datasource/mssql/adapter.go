package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
)

// Adapter samples SQL Server tables with support for SQL and Azure AD service
// principal authentication. Rows are rendered by the server with FOR JSON.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens a database handle. Connections are established lazily; use
// TestConnection to verify reachability.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	driver, connStr := buildConnectionString(cfg)

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %s", cfg.AuthMethod, logging.SanitizeError(err))
	}

	logger.Debug("Opened SQL Server handle",
		logging.URI("uri", connStr),
		zap.String("auth_method", string(cfg.AuthMethod)),
		zap.String("schema", cfg.Schema))

	return &Adapter{
		config: cfg,
		db:     db,
		logger: logger,
	}, nil
}

// buildConnectionString returns the driver name and sqlserver:// URL for cfg.
// Service principal authentication goes through the azuresql driver.
func buildConnectionString(cfg *Config) (driver, connStr string) {
	if cfg.URI != "" {
		return "sqlserver", cfg.URI
	}

	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	if cfg.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID)
		query.Add("password", cfg.ClientSecret)
		query.Add("tenant id", cfg.TenantID)

		return "azuresql", config.ResolveURIForDocker(fmt.Sprintf("sqlserver://%s:%d?%s",
			cfg.Host,
			cfg.Port,
			query.Encode(),
		))
	}

	return "sqlserver", config.ResolveURIForDocker(fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	))
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	// Run a simple query to ensure we have database access
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// ListCollections returns the tables and views of the configured schema.
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 ORDER BY TABLE_NAME",
		a.config.Schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SampleDocuments returns up to limit randomly ordered rows of collection, which may be
// qualified with a schema ("sales.orders").
func (a *Adapter) SampleDocuments(ctx context.Context, collection string, limit int) ([]document.Document, error) {
	schema, table := parseSchemaTable(collection, a.config.Schema)

	var count int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2",
		schema, table).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("check table %s: %w", collection, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("table %s.%s: %w", schema, table, apperrors.ErrNotFound)
	}

	rows, err := a.db.QueryContext(ctx, sampleQuery(schema, table), limit)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}
	defer rows.Close()

	// FOR JSON splits long results over several rows.
	var sb strings.Builder
	for rows.Next() {
		var chunk sql.NullString
		if err := rows.Scan(&chunk); err != nil {
			return nil, fmt.Errorf("sample %s: %w", collection, err)
		}
		sb.WriteString(chunk.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}

	docs, err := jsonutil.DecodeDocuments(strings.NewReader(sb.String()), 0)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return docs, nil
}

// Close releases the database handle.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

// Ensure Adapter implements DocumentSampler at compile time.
var _ datasource.DocumentSampler = (*Adapter)(nil)
