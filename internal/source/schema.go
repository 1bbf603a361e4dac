package source

// Table represents a source table's metadata
type Table struct {
	Schema   string   `json:"schema"`
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// FullName returns schema.table format, or the bare name without a schema
func (t *Table) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// HasColumn reports whether the table has a column with exactly this name
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}
