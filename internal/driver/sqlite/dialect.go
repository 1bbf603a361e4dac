package sqlite

import (
	"github.com/johndauphine/retail-etl/internal/driver"
)

// Dialect implements driver.Dialect for SQLite.
type Dialect struct{}

func (d *Dialect) DBType() string { return "sqlite" }

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

// BuildDSN returns the file path; SQLite has no host or credentials.
func (d *Dialect) BuildDSN(_ string, _ int, _, _, _ string, opts map[string]any) string {
	path, _ := opts["path"].(string)
	return path
}

func (d *Dialect) TablesQuery(_ string) (string, []any) {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, nil
}

func (d *Dialect) ColumnsQuery(_, table string) (string, []any) {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`, []any{table}
}
