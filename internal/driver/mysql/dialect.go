package mysql

import (
	"net"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/johndauphine/retail-etl/internal/driver"
)

// Dialect implements driver.Dialect for MySQL/MariaDB.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mysql" }

func (d *Dialect) QuoteStyle() driver.QuoteStyle { return driver.QuoteBacktick }

func (d *Dialect) QuoteIdentifier(name string) string {
	return driver.QuoteBacktick.Quote(name)
}

func (d *Dialect) QualifyTable(schema, table string) string {
	// MySQL uses database.table, but schema is often empty (database is in DSN)
	return driver.Qualify(driver.QuoteBacktick, schema, table)
}

func (d *Dialect) ColumnList(cols []string) string {
	return driver.QuotedColumns(driver.QuoteBacktick, cols)
}

// BuildDSN returns a go-sql-driver DSN (user:password@tcp(host:port)/database?params).
// The driver's own formatter escapes the credentials.
func (d *Dialect) BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	cfg := gomysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	sslMode, _ := opts["sslmode"].(string)
	switch strings.ToLower(sslMode) {
	case "disable", "disabled", "false":
		cfg.TLSConfig = "false"
	case "require", "required", "true", "verify-full", "verify_full":
		cfg.TLSConfig = "true"
	case "verify-ca", "verify_ca":
		cfg.TLSConfig = "skip-verify"
	default:
		cfg.TLSConfig = "preferred"
	}
	return cfg.FormatDSN()
}

func (d *Dialect) TablesQuery(schema string) (string, []any) {
	return `SELECT TABLE_NAME FROM information_schema.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		ORDER BY TABLE_NAME`, []any{schema}
}

func (d *Dialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}
