// Package dbconfig provides the source connection settings shared by the
// config and driver packages. It exists to break the import cycle between them.
package dbconfig

import "fmt"

// SourceConfig holds source database connection settings.
type SourceConfig struct {
	Type            string `yaml:"type"`              // sqlite, postgres, mysql or mssql (default: sqlite)
	Path            string `yaml:"path"`              // sqlite: database file path
	Host            string `yaml:"host"`              // networked sources
	Port            int    `yaml:"port"`              // default comes from the driver
	Database        string `yaml:"database"`          // networked sources
	User            string `yaml:"user"`              // networked sources
	Password        string `yaml:"password"`          // networked sources
	Schema          string `yaml:"schema"`            // postgres: public, mssql: dbo, mysql: database name
	SSLMode         string `yaml:"ssl_mode"`          // postgres/mysql: disable, require, verify-ca, verify-full
	TrustServerCert bool   `yaml:"trust_server_cert"` // mssql: trust server certificate (default: false)
	Encrypt         *bool  `yaml:"encrypt"`           // mssql: enable TLS encryption (default: driver default)
	MaxConns        int    `yaml:"max_conns"`         // connection pool size (default: 2)
}

// DSNOptions returns the optional DSN settings as a map for Dialect.BuildDSN.
func (c *SourceConfig) DSNOptions() map[string]any {
	opts := make(map[string]any)
	if c.SSLMode != "" {
		opts["sslmode"] = c.SSLMode
	}
	if c.Encrypt != nil {
		opts["encrypt"] = *c.Encrypt
	}
	if c.TrustServerCert {
		opts["trustServerCertificate"] = true
	}
	if c.Path != "" {
		opts["path"] = c.Path
	}
	return opts
}

// Describe returns a credential-free label for log messages.
func (c *SourceConfig) Describe() string {
	if c.Path != "" {
		return c.Type + ":" + c.Path
	}
	return fmt.Sprintf("%s://%s:%d/%s", c.Type, c.Host, c.Port, c.Database)
}
