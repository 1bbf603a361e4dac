// Package export is the transform-and-export engine: it streams one source
// table in bounded chunks, applies the column directives to each chunk and
// writes the result to a CSV or Parquet file under the expected column names.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johndauphine/retail-etl/internal/driver"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/mapping"
	"github.com/johndauphine/retail-etl/internal/metrics"
	"github.com/johndauphine/retail-etl/internal/transform"
)

// DefaultChunkSize is the number of rows read, transformed and flushed at a time.
const DefaultChunkSize = 10000

// Source is what the engine needs from a connection.
type Source interface {
	Columns(ctx context.Context, table string) ([]string, error)
	QualifiedTable(table string) string
	QuoteStyle() driver.QuoteStyle
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options configure an Exporter.
type Options struct {
	ChunkSize int    // default DefaultChunkSize
	Format    Format // default: inferred from the output path

	// OnBatch is called after each chunk is flushed.
	OnBatch func(table string, rows int)
}

// Request describes one table export. SourceColumns[i] produces TargetColumns[i].
type Request struct {
	Table           string // expected table name for logs and metrics; defaults to SourceTable
	SourceTable     string
	SourceColumns   []string
	TargetColumns   []string
	OutputPath      string
	Transformations []mapping.Transformation
	ChunkSize       int    // overrides Options.ChunkSize when > 0
	Format          Format // overrides Options.Format
}

// Record is the result of one successful export.
type Record struct {
	Table       string        `json:"table"`
	SourceTable string        `json:"source_table"`
	Path        string        `json:"path"`
	Format      Format        `json:"format"`
	Columns     []string      `json:"columns"`
	Rows        int64         `json:"rows"`
	Chunks      int           `json:"chunks"`
	Checksum    string        `json:"checksum"`
	Warnings    []Warning     `json:"warnings,omitempty"`
	Duration    time.Duration `json:"duration"`
	ExportedAt  time.Time     `json:"exported_at"`
}

// Exporter runs table exports against one source. It keeps no state between calls.
type Exporter struct {
	src  Source
	opts Options
}

// New creates an Exporter.
func New(src Source, opts Options) *Exporter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Exporter{src: src, opts: opts}
}

// Export streams req.SourceTable to req.OutputPath. The file is written to a
// temporary name and renamed on success, so a failed export leaves any
// previous file untouched. Only the returned error kinds are fatal; column and
// directive problems come back as warnings on the Record.
func (e *Exporter) Export(ctx context.Context, req Request) (rec *Record, err error) {
	start := time.Now()
	if req.Table == "" {
		req.Table = req.SourceTable
	}
	defer func() {
		metrics.RecordExport(req.Table, err, time.Since(start))
	}()

	if len(req.SourceColumns) == 0 {
		logging.Warn("No columns mapped for table '%s'", req.Table)
		return nil, fmt.Errorf("%s: %w", req.Table, ErrNoColumnsMapped)
	}
	if len(req.SourceColumns) != len(req.TargetColumns) {
		return nil, fmt.Errorf("%s: %w (%d source, %d target)",
			req.Table, ErrColumnCountMismatch, len(req.SourceColumns), len(req.TargetColumns))
	}

	rec = &Record{
		Table:       req.Table,
		SourceTable: req.SourceTable,
		Path:        req.OutputPath,
		Format:      e.format(req),
	}
	w := newWarnings(req.Table)

	actual, err := e.src.Columns(ctx, req.SourceTable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrSourceRead, err)
	}
	present := make(map[string]bool, len(actual))
	for _, c := range actual {
		present[c] = true
	}

	var srcCols, tgtCols []string
	for i, c := range req.SourceColumns {
		if present[c] {
			srcCols = append(srcCols, c)
			tgtCols = append(tgtCols, req.TargetColumns[i])
			continue
		}
		w.add(Warning{
			Kind:    UnknownSourceColumn,
			Table:   req.Table,
			Column:  c,
			Message: fmt.Sprintf("column '%s' not found in source table '%s'; dropping target '%s'", c, req.SourceTable, req.TargetColumns[i]),
		})
	}
	if len(srcCols) == 0 {
		logging.Warn("No valid columns to export for table '%s'", req.Table)
		return nil, fmt.Errorf("%s: %w", req.Table, ErrNoValidColumns)
	}
	rec.Columns = tgtCols

	query := fmt.Sprintf("SELECT %s FROM %s",
		driver.QuotedColumns(e.src.QuoteStyle(), srcCols), e.src.QualifiedTable(req.SourceTable))
	logging.Debug("Export query for %s: %s", req.Table, query)

	rows, err := e.src.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrSourceRead, err)
	}
	defer rows.Close()

	if dir := filepath.Dir(req.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrExportIO, err)
		}
	}
	tmp := req.OutputPath + ".tmp"
	out, err := openSink(rec.Format, tmp, fieldTypes(srcCols, tgtCols, req.Transformations))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrExportIO, err)
	}
	committed := false
	defer func() {
		if !committed {
			out.Abort()
		}
	}()

	chunkSize := e.opts.ChunkSize
	if req.ChunkSize > 0 {
		chunkSize = req.ChunkSize
	}

	flush := func(b *transform.Batch) error {
		stats, skipped := transform.ApplyAll(b, req.Transformations)
		for _, s := range skipped {
			w.skip(s)
		}
		for i, st := range stats {
			if st.Filled > 0 {
				logging.Debug("%s: %s filled %d nulls", req.Table, req.Transformations[i], st.Filled)
			}
			if st.Nulled > 0 {
				logging.Debug("%s: %s nulled %d unparseable values", req.Table, req.Transformations[i], st.Nulled)
			}
		}
		if err := b.Rename(tgtCols); err != nil {
			return err
		}
		if err := out.WriteBatch(b); err != nil {
			return fmt.Errorf("%w: %v", ErrExportIO, err)
		}
		rec.Rows += int64(b.Len())
		rec.Chunks++
		metrics.RecordRows(req.Table, int64(b.Len()))
		metrics.RecordBatches(req.Table, 1)
		if e.opts.OnBatch != nil {
			e.opts.OnBatch(req.Table, b.Len())
		}
		return nil
	}

	batch := transform.NewBatch(srcCols, chunkSize)
	for rows.Next() {
		if err := batch.ScanRow(rows); err != nil {
			return nil, fmt.Errorf("%s: %w: scanning row: %v", req.Table, ErrSourceRead, err)
		}
		if batch.Len() == chunkSize {
			if err := flush(batch); err != nil {
				return nil, fmt.Errorf("%s: %w", req.Table, err)
			}
			batch = transform.NewBatch(srcCols, chunkSize)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrSourceRead, err)
	}
	if batch.Len() > 0 {
		if err := flush(batch); err != nil {
			return nil, fmt.Errorf("%s: %w", req.Table, err)
		}
	}

	if rec.Rows == 0 {
		w.add(Warning{
			Kind:    EmptyTable,
			Table:   req.Table,
			Message: fmt.Sprintf("table '%s' is empty; writing header only", req.SourceTable),
		})
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		committed = true
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrExportIO, err)
	}
	committed = true
	if err := os.Rename(tmp, req.OutputPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrExportIO, err)
	}

	if rec.Checksum, err = checksumFile(req.OutputPath); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", req.Table, ErrExportIO, err)
	}
	rec.Warnings = w.list
	rec.Duration = time.Since(start)
	rec.ExportedAt = time.Now().UTC()

	logging.Info("Exported table '%s' to %s (%d rows, %d columns, %d chunks)",
		req.Table, req.OutputPath, rec.Rows, len(rec.Columns), rec.Chunks)
	return rec, nil
}

func (e *Exporter) format(req Request) Format {
	if req.Format != "" {
		return req.Format
	}
	if e.opts.Format != "" {
		return e.opts.Format
	}
	return FormatFromPath(req.OutputPath)
}

// fieldTypes derives the output column types from the directives: the last
// cast on a column decides, unless a later fill value does not fit that type.
func fieldTypes(srcCols, tgtCols []string, ts []mapping.Transformation) []Field {
	fields := make([]Field, len(srcCols))
	for i, c := range srcCols {
		typ := TypeText
		for _, t := range ts {
			if t.Column != c {
				continue
			}
			switch {
			case t.Type == mapping.TypeCast:
				switch mapping.NormalizedDType(t.DType) {
				case mapping.DTypeInt:
					typ = TypeInt
				case mapping.DTypeFloat:
					typ = TypeFloat
				default:
					typ = TypeText
				}
			case t.Type == mapping.FillNA && typ != TypeText:
				if !fillFits(t.Value, typ) {
					typ = TypeText
				}
			}
		}
		fields[i] = Field{Name: tgtCols[i], Type: typ}
	}
	return fields
}

func fillFits(value string, typ ColumnType) bool {
	if typ == TypeInt {
		return transform.Fits(value, mapping.DTypeInt)
	}
	return transform.Fits(value, mapping.DTypeFloat)
}

// warnings collects recoverable problems, keeping the first of each kind per
// column and directive so a per-chunk problem is reported once.
type warnings struct {
	table string
	seen  map[string]bool
	list  []Warning
}

func newWarnings(table string) *warnings {
	return &warnings{table: table, seen: make(map[string]bool)}
}

func (w *warnings) add(wn Warning) {
	key := strings.Join([]string{string(wn.Kind), wn.Column, wn.Transformation}, "\x00")
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.list = append(w.list, wn)
	metrics.RecordWarning(w.table, string(wn.Kind))
	logging.Warn("%s: %s", w.table, wn.Message)
}

func (w *warnings) skip(err error) {
	var se *transform.SkipError
	if !errors.As(err, &se) {
		w.add(Warning{Kind: TransformationError, Table: w.table, Message: err.Error()})
		return
	}
	msg := fmt.Sprintf("transformation %s skipped: %v", se.Transformation, se.Err)
	if errors.Is(se, transform.ErrColumnMissing) {
		msg = fmt.Sprintf("transformation column '%s' not in data for '%s'; %s skipped",
			se.Transformation.Column, w.table, se.Transformation.Type)
	}
	w.add(Warning{
		Kind:           TransformationError,
		Table:          w.table,
		Column:         se.Transformation.Column,
		Transformation: se.Transformation.String(),
		Message:        msg,
	})
}
