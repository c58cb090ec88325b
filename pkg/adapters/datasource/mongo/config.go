package mongo

import (
	"fmt"
	"strings"
	"time"
)

// Config contains MongoDB-specific connection options.
type Config struct {
	URI      string
	Database string

	// ConnectTimeout bounds server selection for each operation.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout returns the server selection timeout used when none is set.
func DefaultConnectTimeout() time.Duration {
	return 10 * time.Second
}

// FromMap creates a Config from a generic config map. The database may come from the
// "database" key or from the path of the URI.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		ConnectTimeout: DefaultConnectTimeout(),
	}

	uri, ok := config["uri"].(string)
	if !ok || uri == "" {
		return nil, fmt.Errorf("uri is required")
	}
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		return nil, fmt.Errorf("uri must start with mongodb:// or mongodb+srv://")
	}
	cfg.URI = uri

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else if database := databaseFromURI(uri); database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	switch v := config["connect_timeout"].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	case int:
		cfg.ConnectTimeout = time.Duration(v) * time.Second
	case float64: // JSON numbers are float64
		cfg.ConnectTimeout = time.Duration(v * float64(time.Second))
	}

	return cfg, nil
}

// databaseFromURI extracts the default database from user:pass@host/DB?params.
// Multi-host seed lists are not valid net/url hosts, so the URI is split by hand.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		if strings.HasPrefix(rest, prefix) {
			rest = rest[len(prefix):]
			break
		}
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return ""
	}
	path := rest[slash+1:]
	if q := strings.Index(path, "?"); q != -1 {
		path = path[:q]
	}
	return path
}
