package mssql

import (
	"fmt"
)

// AuthMethod selects how the sampler authenticates to SQL Server.
type AuthMethod string

const (
	AuthSQL              AuthMethod = "sql"
	AuthServicePrincipal AuthMethod = "service_principal"
)

const (
	defaultPort              = 1433
	defaultSchema            = "dbo"
	defaultConnectionTimeout = 30 // seconds
)

// Config locates the tables to sample. Either URI or Host plus Database is set.
type Config struct {
	URI string // sqlserver:// URL; implies SQL authentication

	Host     string
	Port     int
	Database string
	Schema   string

	AuthMethod AuthMethod
	Username   string
	Password   string

	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// FromMap reads a datasource's options. Without an explicit auth_method, a client_id
// selects service principal authentication and a user name selects SQL authentication.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              defaultPort,
		Schema:            defaultSchema,
		Encrypt:           true,
		ConnectionTimeout: defaultConnectionTimeout,
	}
	if schema := stringOpt(config, "schema"); schema != "" {
		cfg.Schema = schema
	}

	if uri := stringOpt(config, "uri"); uri != "" {
		cfg.URI = uri
		cfg.AuthMethod = AuthSQL
		return cfg, nil
	}

	if cfg.Host = stringOpt(config, "host"); cfg.Host == "" {
		return nil, fmt.Errorf("uri or host is required")
	}
	if cfg.Database = stringOpt(config, "database"); cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	if port, ok := intValue(config["port"]); ok {
		cfg.Port = port
	}
	if timeout, ok := intValue(config["connection_timeout"]); ok {
		cfg.ConnectionTimeout = timeout
	}
	switch v := config["encrypt"].(type) {
	case bool:
		cfg.Encrypt = v
	case string:
		cfg.Encrypt = v == "true" || v == "strict"
	}
	cfg.TrustServerCertificate, _ = config["trust_server_certificate"].(bool)

	cfg.Username = stringOpt(config, "username", "user")
	cfg.Password = stringOpt(config, "password")
	cfg.TenantID = stringOpt(config, "tenant_id")
	cfg.ClientID = stringOpt(config, "client_id")
	cfg.ClientSecret = stringOpt(config, "client_secret")

	cfg.AuthMethod = AuthMethod(stringOpt(config, "auth_method"))
	if cfg.AuthMethod == "" {
		switch {
		case cfg.ClientID != "":
			cfg.AuthMethod = AuthServicePrincipal
		case cfg.Username != "":
			cfg.AuthMethod = AuthSQL
		default:
			return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
		}
	}

	if err := cfg.checkCredentials(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) checkCredentials() error {
	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		for _, f := range []struct{ name, value string }{
			{"tenant_id", c.TenantID},
			{"client_id", c.ClientID},
			{"client_secret", c.ClientSecret},
		} {
			if f.value == "" {
				return fmt.Errorf("%s is required for service principal authentication", f.name)
			}
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}
	return nil
}

// stringOpt returns the first non-empty string option among keys.
func stringOpt(config map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := config[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64: // JSON numbers
		return int(n), true
	}
	return 0, false
}
