// Package source is the Connection Provider: it opens a source database
// through the driver registry and answers table and column introspection.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
	"github.com/johndauphine/retail-etl/internal/logging"

	// Register the supported source drivers.
	_ "github.com/johndauphine/retail-etl/internal/driver/mssql"
	_ "github.com/johndauphine/retail-etl/internal/driver/mysql"
	_ "github.com/johndauphine/retail-etl/internal/driver/postgres"
	_ "github.com/johndauphine/retail-etl/internal/driver/sqlite"
)

// ErrConnection marks failures to establish a source connection.
var ErrConnection = errors.New("source connection failed")

const defaultMaxConns = 2

// Source is an open, read-only handle on a source database. It is used
// sequentially by one run; the quote style is fixed when it connects.
type Source struct {
	db      *sql.DB
	cfg     *dbconfig.SourceConfig
	drv     driver.Driver
	dialect driver.Dialect
	quote   driver.QuoteStyle
}

// Connect resolves the driver for cfg.Type, opens the database and pings it.
// Every failure wraps ErrConnection.
func Connect(ctx context.Context, cfg *dbconfig.SourceConfig) (*Source, error) {
	drv, err := driver.Get(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	db, err := drv.Open(cfg, maxConns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging %s: %v", ErrConnection, cfg.Describe(), err)
	}

	dialect := drv.Dialect()
	logging.Debug("Connected to %s (%s quoting)", cfg.Describe(), dialect.QuoteStyle())

	return &Source{
		db:      db,
		cfg:     cfg,
		drv:     drv,
		dialect: dialect,
		quote:   dialect.QuoteStyle(),
	}, nil
}

// Close closes all connections in the pool.
func (s *Source) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Source) DB() *sql.DB {
	return s.db
}

// DBType returns the canonical dialect name, e.g. "sqlite" or "mssql".
func (s *Source) DBType() string {
	return s.dialect.DBType()
}

// Kind reports whether the source is a file or a server.
func (s *Source) Kind() driver.Kind {
	return s.drv.Kind()
}

// Dialect returns the SQL dialect of the source.
func (s *Source) Dialect() driver.Dialect {
	return s.dialect
}

// QuoteStyle returns the identifier quoting convention selected at connect time.
func (s *Source) QuoteStyle() driver.QuoteStyle {
	return s.quote
}

// QualifiedTable returns the quoted, schema-qualified name of table.
func (s *Source) QualifiedTable(table string) string {
	return driver.Qualify(s.quote, s.cfg.Schema, table)
}

// Tables lists the base tables of the configured schema.
func (s *Source) Tables(ctx context.Context) ([]string, error) {
	query, args := s.dialect.TablesQuery(s.cfg.Schema)
	tables, err := s.names(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return tables, nil
}

// Columns lists the columns of table in ordinal order. An unknown table yields
// no columns and no error.
func (s *Source) Columns(ctx context.Context, table string) ([]string, error) {
	query, args := s.dialect.ColumnsQuery(s.cfg.Schema, table)
	cols, err := s.names(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", table, err)
	}
	return cols, nil
}

// Introspect returns every table with its columns.
func (s *Source) Introspect(ctx context.Context) (map[string][]string, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(tables))
	for _, t := range tables {
		cols, err := s.Columns(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = cols
	}
	return out, nil
}

// Describe returns table metadata including exact row counts, sorted by name.
func (s *Source) Describe(ctx context.Context) ([]Table, error) {
	schema, err := s.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]Table, 0, len(schema))
	for name, cols := range schema {
		t := Table{Schema: s.cfg.Schema, Name: name, Columns: cols}
		if t.RowCount, err = s.RowCount(ctx, name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// RowCount returns the exact number of rows in table.
func (s *Source) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.QualifiedTable(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}

// Query runs a read query. The caller closes the rows.
func (s *Source) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Source) names(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
