package driver

import "strings"

// QuoteStyle is the identifier quoting convention of a SQL dialect.
// The set is closed; a source picks one when it connects.
type QuoteStyle int

const (
	// QuoteBracket quotes as [name] (SQL Server, Access). It is the fallback
	// for dialects nobody registered.
	QuoteBracket QuoteStyle = iota
	// QuoteDouble quotes as "name" (ANSI: PostgreSQL, SQLite, Oracle).
	QuoteDouble
	// QuoteBacktick quotes as `name` (MySQL, MariaDB).
	QuoteBacktick
)

func (q QuoteStyle) String() string {
	switch q {
	case QuoteDouble:
		return "double"
	case QuoteBacktick:
		return "backtick"
	default:
		return "bracket"
	}
}

// Quote wraps name in the style's delimiters, doubling any embedded closing delimiter.
func (q QuoteStyle) Quote(name string) string {
	switch q {
	case QuoteDouble:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	case QuoteBacktick:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
}

// QuoteStyleFor returns the quote style of the registered dialect for dbType,
// or QuoteBracket when the dialect is unknown.
func QuoteStyleFor(dbType string) QuoteStyle {
	if d := GetDialect(dbType); d != nil {
		return d.QuoteStyle()
	}
	return QuoteBracket
}

// Dialect captures the SQL differences between source databases.
type Dialect interface {
	// DBType returns the canonical database type name.
	DBType() string

	// QuoteStyle returns the identifier quoting convention.
	QuoteStyle() QuoteStyle

	// QuoteIdentifier quotes a single identifier.
	QuoteIdentifier(name string) string

	// QualifyTable returns schema.table quoted; an empty schema yields the bare table.
	QualifyTable(schema, table string) string

	// ColumnList returns the quoted, comma separated column list.
	ColumnList(cols []string) string

	// BuildDSN builds the connection string passed to sql.Open.
	BuildDSN(host string, port int, database, user, password string, opts map[string]any) string

	// TablesQuery lists base tables; the query yields one name column.
	TablesQuery(schema string) (string, []any)

	// ColumnsQuery lists a table's columns in ordinal order; one name column.
	ColumnsQuery(schema, table string) (string, []any)
}

// QuotedColumns quotes every column with style q and joins them with ", ".
func QuotedColumns(q QuoteStyle, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// Qualify joins a quoted schema and table, omitting an empty schema.
func Qualify(q QuoteStyle, schema, table string) string {
	if schema == "" {
		return q.Quote(table)
	}
	return q.Quote(schema) + "." + q.Quote(table)
}
