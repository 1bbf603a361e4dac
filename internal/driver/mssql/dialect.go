package mssql

import (
	"fmt"
	"net/url"

	"github.com/johndauphine/retail-etl/internal/driver"
)

// Dialect implements driver.Dialect for SQL Server.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mssql" }

func (d *Dialect) QuoteStyle() driver.QuoteStyle { return driver.QuoteBracket }

func (d *Dialect) QuoteIdentifier(name string) string {
	return driver.QuoteBracket.Quote(name)
}

func (d *Dialect) QualifyTable(schema, table string) string {
	return driver.Qualify(driver.QuoteBracket, schema, table)
}

func (d *Dialect) ColumnList(cols []string) string {
	return driver.QuotedColumns(driver.QuoteBracket, cols)
}

// BuildDSN returns a sqlserver:// URL with the database as a query parameter.
func (d *Dialect) BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	params := url.Values{}
	params.Set("database", database)
	if enc, ok := opts["encrypt"].(bool); ok {
		params.Set("encrypt", fmt.Sprintf("%t", enc))
	}
	if trust, ok := opts["trustServerCertificate"].(bool); ok && trust {
		params.Set("TrustServerCertificate", "true")
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, params.Encode())
}

func (d *Dialect) TablesQuery(schema string) (string, []any) {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = @p1
		ORDER BY TABLE_NAME`, []any{schema}
}

func (d *Dialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}
