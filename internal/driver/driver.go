// Package driver provides pluggable source database driver abstractions.
// Each database (SQLite, PostgreSQL, MySQL, SQL Server) implements the Driver
// interface in its own subpackage and registers itself on import.
package driver

import (
	"database/sql"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
)

// Kind distinguishes file-based sources from networked servers.
type Kind int

const (
	KindFile Kind = iota
	KindNetworked
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "networked"
}

// DriverDefaults contains default values for a database driver.
// Used by config.applyDefaults() to set sensible defaults for each database type.
type DriverDefaults struct {
	// Port is the default port (e.g., 5432 for PostgreSQL, 0 for file databases).
	Port int

	// Schema is the default schema (e.g., "public" for PostgreSQL, "dbo" for MSSQL).
	Schema string

	// SSLMode is the default SSL mode for PostgreSQL/MySQL-style connections.
	SSLMode string
}

// Driver represents a pluggable source database driver.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "sqlite", "postgres").
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// Kind reports whether the source is a local file or a server.
	Kind() Kind

	// Defaults returns the default configuration values for this driver.
	Defaults() DriverDefaults

	// Dialect returns the SQL dialect for this database.
	Dialect() Dialect

	// Open creates a connection pool. It does not verify connectivity.
	Open(cfg *dbconfig.SourceConfig, maxConns int) (*sql.DB, error)
}
