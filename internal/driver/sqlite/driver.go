// Package sqlite provides the file-based SQLite source driver (pure Go, modernc.org/sqlite).
// It registers itself with the driver registry on import.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
	_ "modernc.org/sqlite" // registers "sqlite"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQLite database files.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlite3", "file"}
}

// Kind reports a file-based source.
func (d *Driver) Kind() driver.Kind {
	return driver.KindFile
}

// Defaults returns the default configuration values for SQLite.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{}
}

// Dialect returns the SQLite dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open opens the database file named by cfg.Path.
func (d *Driver) Open(cfg *dbconfig.SourceConfig, maxConns int) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite source requires a path")
	}
	dsn := (&Dialect{}).BuildDSN("", 0, "", "", "", cfg.DSNOptions())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
	}
	// A single writer-free reader; more connections only add lock contention.
	db.SetMaxOpenConns(max(1, min(maxConns, 2)))
	return db, nil
}
