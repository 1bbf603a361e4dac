package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/johndauphine/retail-etl/internal/driver"
	"github.com/johndauphine/retail-etl/internal/mapping"
	"github.com/johndauphine/retail-etl/internal/transform"
	"github.com/johndauphine/retail-etl/internal/validate"
)

// DefaultPreviewRows is the number of rows shown when none is requested.
const DefaultPreviewRows = 5

// Preview holds the leading rows of a source table or a recorded export.
type Preview struct {
	Table   string     `json:"table"`
	Origin  string     `json:"origin"` // "source" or "export"
	Path    string     `json:"path,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// PreviewSource reads the first n rows of a source table. An expected table
// name is resolved through the saved mapping to its source table.
func (o *Orchestrator) PreviewSource(ctx context.Context, table string, n int) (*Preview, error) {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	src, err := o.Source(ctx)
	if err != nil {
		return nil, err
	}

	name := o.previewSourceTable(table)
	cols, err := src.Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found in source", name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s",
		driver.QuotedColumns(src.QuoteStyle(), cols), src.QualifiedTable(name))
	rows, err := src.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	defer rows.Close()

	// Rows past n are never scanned.
	b := transform.NewBatch(cols, n)
	for b.Len() < n && rows.Next() {
		if err := b.ScanRow(rows); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	p := &Preview{Table: name, Origin: "source", Columns: cols, Rows: make([][]string, 0, b.Len())}
	for _, r := range b.Rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = transform.Format(v)
		}
		p.Rows = append(p.Rows, cells)
	}
	return p, nil
}

func (o *Orchestrator) previewSourceTable(table string) string {
	if _, ok := mapping.Expected(table); !ok {
		return table
	}
	m, err := mapping.Load(o.config.Export.MappingFile)
	if err != nil {
		return table
	}
	if st, ok := m.SourceTable(table); ok {
		return st
	}
	return table
}

// PreviewExport reads the first n rows of the recorded export of an expected table.
func (o *Orchestrator) PreviewExport(table string, n int) (*Preview, error) {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	e, err := o.state.GetExport(table)
	if err != nil {
		return nil, fmt.Errorf("loading export of %s: %w", table, err)
	}
	if e == nil {
		return nil, fmt.Errorf("no recorded export for %s", table)
	}
	header, rows, err := validate.Head(e.Path, n)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", e.Path, err)
	}
	if rows == nil {
		rows = [][]string{}
	}
	return &Preview{Table: table, Origin: "export", Path: e.Path, Columns: header, Rows: rows}, nil
}

// ShowPreview prints p as a table.
func ShowPreview(p *Preview) error {
	return writePreview(os.Stdout, p)
}

func writePreview(out io.Writer, p *Preview) error {
	label := p.Table
	if p.Path != "" {
		label = p.Path
	}
	fmt.Fprintf(out, "%s (%s, %d rows)\n", label, p.Origin, len(p.Rows))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(p.Columns, "\t"))
	for _, r := range p.Rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = strings.ReplaceAll(c, "\n", `\n`)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}
