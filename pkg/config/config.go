package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-catalog.
// Configuration can come from a YAML file or environment variables; environment
// variables override YAML values for fields that support both. Datasources are only
// configured in YAML, but their URIs and string options may reference environment
// variables ($VAR or ${VAR}) so credentials stay out of the file.
type Config struct {
	Version string `yaml:"-"` // Set at load time, not from config

	Catalog     CatalogConfig      `yaml:"catalog"`
	Logging     LoggingConfig      `yaml:"logging"`
	Server      ServerConfig       `yaml:"server"`
	Datasources []DatasourceConfig `yaml:"datasources"`
}

// CatalogConfig holds storage, cache and extraction settings.
type CatalogConfig struct {
	// Dir is the catalog root holding index.yaml and sources/.
	Dir string `yaml:"dir" env:"CATALOG_DIR" env-default:"./catalog"`

	IndexCacheTTL  time.Duration `yaml:"index_cache_ttl" env:"CATALOG_INDEX_CACHE_TTL" env-default:"30s"`
	RecordCacheTTL time.Duration `yaml:"record_cache_ttl" env:"CATALOG_RECORD_CACHE_TTL" env-default:"5m"`

	// CardinalityLimit is the largest distinct-value count that still makes a field
	// enumerable.
	CardinalityLimit int `yaml:"cardinality_limit" env:"CATALOG_CARDINALITY_LIMIT" env-default:"50"`

	// SampleSize is how many documents are sampled per collection.
	SampleSize int `yaml:"sample_size" env:"CATALOG_SAMPLE_SIZE" env-default:"1000"`

	MaxConcurrentExtractions int `yaml:"max_concurrent_extractions" env:"CATALOG_MAX_CONCURRENT_EXTRACTIONS" env-default:"4"`

	// The catalog directory is watched so that hand edits invalidate reader caches.
	// Zero values are replaced by defaults, hence the negative flag.
	WatchDisabled bool          `yaml:"watch_disabled" env:"CATALOG_WATCH_DISABLED"`
	WatchDebounce time.Duration `yaml:"watch_debounce" env:"CATALOG_WATCH_DEBOUNCE" env-default:"200ms"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // json or console

	// File enables a rotating log file in addition to stderr.
	File       string `yaml:"file" env:"LOG_FILE" env-default:""`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
	Compress   bool   `yaml:"compress" env:"LOG_COMPRESS"`
}

// ServerConfig configures the HTTP listener of `serve`: /metrics, /health, /ping and
// the read-only catalog API.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the listener.
	Addr string `yaml:"addr" env:"SERVER_ADDR" env-default:""`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// DatasourceConfig describes one external data store to catalog.
type DatasourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // mongodb, postgres, mssql, jsonfile
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`

	// Collections limits extraction to these collections. Empty means all.
	Collections []string `yaml:"collections"`

	// Schedule is a cron expression for periodic re-extraction. Empty disables it.
	Schedule string `yaml:"schedule"`

	// SampleSize overrides catalog.sample_size when positive.
	SampleSize int `yaml:"sample_size"`

	// Options are passed through to the adapter.
	Options map[string]any `yaml:"options"`
}

// AdapterConfig returns the map handed to the datasource adapter factory.
func (d *DatasourceConfig) AdapterConfig() map[string]any {
	out := make(map[string]any, len(d.Options)+3)
	for k, v := range d.Options {
		out[k] = v
	}
	out["name"] = d.Name
	if d.URI != "" {
		out["uri"] = ResolveURIForDocker(d.URI)
	}
	if d.Database != "" {
		out["database"] = d.Database
	}
	return out
}

// Load reads configuration from path with environment variable overrides. If the
// file does not exist, configuration comes from the environment and defaults only.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{
		Version: version,
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, os.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	cfg.expandDatasourceEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandDatasourceEnv() {
	for i := range c.Datasources {
		ds := &c.Datasources[i]
		ds.URI = os.ExpandEnv(ds.URI)
		for k, v := range ds.Options {
			if s, ok := v.(string); ok {
				ds.Options[k] = os.ExpandEnv(s)
			}
		}
	}
}

// Validate checks value ranges and datasource uniqueness. Errors wrap
// apperrors.ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Catalog.Dir) == "" {
		problems = append(problems, "catalog.dir must be set")
	}
	if c.Catalog.IndexCacheTTL <= 0 {
		problems = append(problems, "catalog.index_cache_ttl must be positive")
	}
	if c.Catalog.RecordCacheTTL <= 0 {
		problems = append(problems, "catalog.record_cache_ttl must be positive")
	}
	if c.Catalog.CardinalityLimit < 0 {
		problems = append(problems, "catalog.cardinality_limit must not be negative")
	}
	if c.Catalog.SampleSize <= 0 {
		problems = append(problems, "catalog.sample_size must be positive")
	}
	if c.Catalog.MaxConcurrentExtractions <= 0 {
		problems = append(problems, "catalog.max_concurrent_extractions must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}

	seen := make(map[string]bool, len(c.Datasources))
	for i, ds := range c.Datasources {
		switch {
		case ds.Name == "":
			problems = append(problems, fmt.Sprintf("datasources[%d].name must be set", i))
		case seen[ds.Name]:
			problems = append(problems, fmt.Sprintf("datasource %q is defined more than once", ds.Name))
		}
		seen[ds.Name] = true
		if ds.Type == "" {
			problems = append(problems, fmt.Sprintf("datasource %q has no type", ds.Name))
		}
		if ds.SampleSize < 0 {
			problems = append(problems, fmt.Sprintf("datasource %q sample_size must not be negative", ds.Name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Datasource returns the datasource named name, or nil.
func (c *Config) Datasource(name string) *DatasourceConfig {
	for i := range c.Datasources {
		if c.Datasources[i].Name == name {
			return &c.Datasources[i]
		}
	}
	return nil
}

// SampleSizeFor returns the effective sample size for ds.
func (c *Config) SampleSizeFor(ds *DatasourceConfig) int {
	if ds != nil && ds.SampleSize > 0 {
		return ds.SampleSize
	}
	return c.Catalog.SampleSize
}
