package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Transformation kinds.
const (
	FillNA   = "fill_na"
	TypeCast = "type_cast"
)

// Cast target types. "str" is accepted as an alias of "string".
const (
	DTypeInt    = "int"
	DTypeFloat  = "float"
	DTypeString = "string"
)

// ErrUnmapped is returned by Resolve for an expected table without a source table.
var ErrUnmapped = errors.New("table not mapped")

// Transformation is a per-column cleaning directive. Column names a source column.
type Transformation struct {
	Type   string `yaml:"type" json:"type"`
	Column string `yaml:"column" json:"column"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
	DType  string `yaml:"dtype,omitempty" json:"dtype,omitempty"`
}

// FillMissing returns a fill_na directive.
func FillMissing(column, value string) Transformation {
	return Transformation{Type: FillNA, Column: column, Value: value}
}

// CastType returns a type_cast directive.
func CastType(column, dtype string) Transformation {
	return Transformation{Type: TypeCast, Column: column, DType: dtype}
}

// NormalizedDType returns the canonical cast type, or "" if dtype is not supported.
func NormalizedDType(dtype string) string {
	switch strings.ToLower(strings.TrimSpace(dtype)) {
	case "int", "integer", "int64":
		return DTypeInt
	case "float", "float64", "double":
		return DTypeFloat
	case "str", "string", "text":
		return DTypeString
	default:
		return ""
	}
}

// Validate checks that the directive is well formed.
func (t Transformation) Validate() error {
	if t.Column == "" {
		return fmt.Errorf("%s: column is required", t.Type)
	}
	switch t.Type {
	case FillNA:
		return nil
	case TypeCast:
		if NormalizedDType(t.DType) == "" {
			return fmt.Errorf("type_cast %s: unsupported dtype %q (int, float or str)", t.Column, t.DType)
		}
		return nil
	default:
		return fmt.Errorf("unknown transformation type %q", t.Type)
	}
}

func (t Transformation) String() string {
	if t.Type == TypeCast {
		return fmt.Sprintf("type_cast(%s, %s)", t.Column, t.DType)
	}
	return fmt.Sprintf("%s(%s, %q)", t.Type, t.Column, t.Value)
}

// Mapping is the persisted run configuration: expected table to source table,
// per-table expected column to source column, and per-table transformations.
type Mapping struct {
	Tables          map[string]string            `yaml:"table_mapping" json:"table_mapping"`
	Columns         map[string]map[string]string `yaml:"column_mappings" json:"column_mappings"`
	Transformations map[string][]Transformation  `yaml:"transformations,omitempty" json:"transformations,omitempty"`
}

// New returns an empty mapping.
func New() *Mapping {
	return &Mapping{
		Tables:          make(map[string]string),
		Columns:         make(map[string]map[string]string),
		Transformations: make(map[string][]Transformation),
	}
}

// MapTable sets the source table of an expected table.
func (m *Mapping) MapTable(expected, source string) {
	if m.Tables == nil {
		m.Tables = make(map[string]string)
	}
	m.Tables[expected] = source
}

// MapColumn sets the source column of an expected column.
func (m *Mapping) MapColumn(table, expected, source string) {
	if m.Columns == nil {
		m.Columns = make(map[string]map[string]string)
	}
	if m.Columns[table] == nil {
		m.Columns[table] = make(map[string]string)
	}
	m.Columns[table][expected] = source
}

// AddTransformation appends a directive to a table.
func (m *Mapping) AddTransformation(table string, t Transformation) {
	if m.Transformations == nil {
		m.Transformations = make(map[string][]Transformation)
	}
	m.Transformations[table] = append(m.Transformations[table], t)
}

// SourceTable returns the source table for an expected table and whether it is mapped.
func (m *Mapping) SourceTable(expected string) (string, bool) {
	src := m.Tables[expected]
	if IsUnmapped(src) {
		return "", false
	}
	return src, true
}

// MappedTables returns the expected tables with a source table, in canonical order.
func (m *Mapping) MappedTables() []string {
	var out []string
	for _, name := range ExpectedTableNames() {
		if _, ok := m.SourceTable(name); ok {
			out = append(out, name)
		}
	}
	return out
}

// Plan is the resolved input of one table export.
type Plan struct {
	Table           string // expected table
	SourceTable     string
	SourceColumns   []string
	TargetColumns   []string
	Transformations []Transformation
}

// Resolve turns the mapping of one expected table into positional source and
// target column lists, in expected-schema order. Unmapped expected columns are
// omitted. An empty column list is not an error here; the export rejects it.
func (m *Mapping) Resolve(expected string) (Plan, error) {
	et, ok := Expected(expected)
	if !ok {
		return Plan{}, fmt.Errorf("unknown expected table %q", expected)
	}
	src, ok := m.SourceTable(expected)
	if !ok {
		return Plan{}, fmt.Errorf("%s: %w", expected, ErrUnmapped)
	}

	plan := Plan{
		Table:           expected,
		SourceTable:     src,
		Transformations: append([]Transformation(nil), m.Transformations[expected]...),
	}
	cols := m.Columns[expected]
	for _, c := range et.Columns {
		if s := cols[c]; !IsUnmapped(s) {
			plan.SourceColumns = append(plan.SourceColumns, s)
			plan.TargetColumns = append(plan.TargetColumns, c)
		}
	}
	return plan, nil
}

// Severity of a mapping problem.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Problem is one finding of Validate or Check.
type Problem struct {
	Severity Severity
	Table    string
	Column   string
	Message  string
}

func (p Problem) String() string {
	loc := p.Table
	if p.Column != "" {
		loc += "." + p.Column
	}
	return fmt.Sprintf("%s: %s: %s", p.Severity, loc, p.Message)
}

// HasErrors reports whether any problem is an error.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks the mapping against the expected schema. Unknown expected
// names and malformed transformations are errors. Two expected tables sharing
// a source table is allowed and reported as a warning.
func (m *Mapping) Validate() []Problem {
	var problems []Problem

	for _, name := range sortedKeys(m.Tables) {
		if _, ok := Expected(name); !ok {
			problems = append(problems, Problem{SeverityError, name, "", "not an expected table"})
		}
	}

	bySource := make(map[string][]string)
	for _, name := range ExpectedTableNames() {
		if src, ok := m.SourceTable(name); ok {
			bySource[src] = append(bySource[src], name)
		}
	}
	for _, src := range sortedKeys(bySource) {
		if users := bySource[src]; len(users) > 1 {
			problems = append(problems, Problem{SeverityWarning, strings.Join(users, ", "), "",
				fmt.Sprintf("source table %q is mapped more than once", src)})
		}
	}

	for _, table := range sortedKeys(m.Columns) {
		et, ok := Expected(table)
		if !ok {
			problems = append(problems, Problem{SeverityError, table, "", "column mapping for unknown expected table"})
			continue
		}
		for _, col := range sortedKeys(m.Columns[table]) {
			if !et.HasColumn(col) {
				problems = append(problems, Problem{SeverityError, table, col, "not an expected column"})
			}
		}
	}
	for _, table := range m.MappedTables() {
		if len(mappedColumns(m.Columns[table])) == 0 {
			problems = append(problems, Problem{SeverityWarning, table, "", "no columns mapped; export will fail"})
		}
	}

	for _, table := range sortedKeys(m.Transformations) {
		for _, t := range m.Transformations[table] {
			if err := t.Validate(); err != nil {
				problems = append(problems, Problem{SeverityError, table, t.Column, err.Error()})
			}
		}
	}
	return problems
}

// Check validates the mapping against a live source introspection
// ({table: [columns]}). Missing source tables are errors; missing source
// columns are warnings because the export drops them.
func (m *Mapping) Check(introspection map[string][]string) []Problem {
	problems := m.Validate()
	for _, table := range ExpectedTableNames() {
		src, ok := m.SourceTable(table)
		if !ok {
			problems = append(problems, Problem{SeverityWarning, table, "", "not mapped; will be skipped"})
			continue
		}
		actual, ok := introspection[src]
		if !ok {
			problems = append(problems, Problem{SeverityError, table, "", fmt.Sprintf("source table %q not found", src)})
			continue
		}
		present := make(map[string]bool, len(actual))
		for _, c := range actual {
			present[c] = true
		}
		for _, col := range sortedKeys(m.Columns[table]) {
			if s := m.Columns[table][col]; !IsUnmapped(s) && !present[s] {
				problems = append(problems, Problem{SeverityWarning, table, col, fmt.Sprintf("source column %q not found in %s", s, src)})
			}
		}
		for _, t := range m.Transformations[table] {
			if !present[t.Column] {
				problems = append(problems, Problem{SeverityWarning, table, t.Column, fmt.Sprintf("%s targets a column missing from %s", t.Type, src)})
			}
		}
	}
	return problems
}

func mappedColumns(cols map[string]string) []string {
	var out []string
	for k, v := range cols {
		if !IsUnmapped(v) {
			out = append(out, k)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
