// Package postgres provides the PostgreSQL source driver (pgx via database/sql).
// It registers itself with the driver registry on import.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for PostgreSQL databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "postgres"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"postgresql", "pg"}
}

// Kind reports a networked source.
func (d *Driver) Kind() driver.Kind {
	return driver.KindNetworked
}

// Defaults returns the default configuration values for PostgreSQL.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:    5432,
		Schema:  "public",
		SSLMode: "prefer",
	}
}

// Dialect returns the PostgreSQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open creates a PostgreSQL connection pool.
func (d *Driver) Open(cfg *dbconfig.SourceConfig, maxConns int) (*sql.DB, error) {
	dsn := (&Dialect{}).BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/4))
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
