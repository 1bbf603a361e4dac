package postgres

import (
	"fmt"
	"net/url"

	"github.com/johndauphine/retail-etl/internal/driver"
)

// Dialect implements driver.Dialect for PostgreSQL.
type Dialect struct{}

func (d *Dialect) DBType() string { return "postgres" }

func (d *Dialect) QuoteStyle() driver.QuoteStyle { return driver.QuoteDouble }

func (d *Dialect) QuoteIdentifier(name string) string {
	return driver.QuoteDouble.Quote(name)
}

func (d *Dialect) QualifyTable(schema, table string) string {
	return driver.Qualify(driver.QuoteDouble, schema, table)
}

func (d *Dialect) ColumnList(cols []string) string {
	return driver.QuotedColumns(driver.QuoteDouble, cols)
}

// BuildDSN returns a postgres:// URL. User and password are query-escaped,
// the database is path-escaped.
func (d *Dialect) BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	params := url.Values{}
	sslMode, _ := opts["sslmode"].(string)
	if sslMode == "" {
		sslMode = "prefer"
	}
	params.Set("sslmode", sslMode)

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port,
		url.PathEscape(database), params.Encode())
}

func (d *Dialect) TablesQuery(schema string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, []any{schema}
}

func (d *Dialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, []any{schema, table}
}
