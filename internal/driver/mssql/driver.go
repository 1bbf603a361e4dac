// Package mssql provides the Microsoft SQL Server source driver.
// It registers itself with the driver registry on import.
package mssql

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
	_ "github.com/microsoft/go-mssqldb" // registers "sqlserver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for Microsoft SQL Server.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mssql"
}

// Aliases returns alternative names for the driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlserver", "sql-server"}
}

// Kind reports a networked source.
func (d *Driver) Kind() driver.Kind {
	return driver.KindNetworked
}

// Defaults returns the default configuration values for SQL Server.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:   1433,
		Schema: "dbo",
	}
}

// Dialect returns the MSSQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open creates a SQL Server connection pool.
func (d *Driver) Open(cfg *dbconfig.SourceConfig, maxConns int) (*sql.DB, error) {
	dsn := (&Dialect{}).BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/4))
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
