// Package mysql provides the MySQL/MariaDB source driver.
// It registers itself with the driver registry on import.
package mysql

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for MySQL/MariaDB databases.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mysql"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"mariadb", "maria"}
}

// Kind reports a networked source.
func (d *Driver) Kind() driver.Kind {
	return driver.KindNetworked
}

// Defaults returns the default configuration values for MySQL.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{
		Port:    3306,
		Schema:  "", // MySQL uses database name, not schema
		SSLMode: "preferred",
	}
}

// Dialect returns the MySQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return &Dialect{}
}

// Open creates a MySQL connection pool.
func (d *Driver) Open(cfg *dbconfig.SourceConfig, maxConns int) (*sql.DB, error) {
	dsn := (&Dialect{}).BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/4))
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
