package postgres

import "fmt"

// Config contains PostgreSQL-specific connection options. Either URI or the discrete
// host fields must be set; URI wins when both are present.
type Config struct {
	URI string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"

	// Schema holds the tables that are cataloged.
	Schema string

	MaxConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// DefaultSchema returns the schema cataloged when none is configured.
func DefaultSchema() string {
	return "public"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:     DefaultPort(),
		SSLMode:  DefaultSSLMode(),
		Schema:   DefaultSchema(),
		MaxConns: 4,
	}

	if schema, ok := config["schema"].(string); ok && schema != "" {
		cfg.Schema = schema
	}
	if maxConns, ok := intValue(config["max_conns"]); ok && maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	if uri, ok := config["uri"].(string); ok && uri != "" {
		cfg.URI = uri
		return cfg, nil
	}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("uri or host is required")
	}

	if port, ok := intValue(config["port"]); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}

// intValue accepts the numeric types produced by YAML and JSON decoding.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64: // JSON numbers are float64
		return int(n), true
	}
	return 0, false
}
