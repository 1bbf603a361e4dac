// Package orchestrator wires configuration, the source connection, the export
// engine and the run-state store into the commands the CLI exposes.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johndauphine/retail-etl/internal/checkpoint"
	"github.com/johndauphine/retail-etl/internal/config"
	"github.com/johndauphine/retail-etl/internal/export"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/mapping"
	"github.com/johndauphine/retail-etl/internal/metrics"
	"github.com/johndauphine/retail-etl/internal/progress"
	"github.com/johndauphine/retail-etl/internal/publish"
	"github.com/johndauphine/retail-etl/internal/source"
)

// Orchestrator owns the resources of one CLI invocation.
type Orchestrator struct {
	config    *config.Config
	state     checkpoint.StateBackend
	src       *source.Source
	publisher publish.Publisher
	progress  *progress.Tracker

	closeMetrics func()
}

// New creates an Orchestrator. The source is connected on first use so that
// history commands work without database access.
func New(cfg *config.Config) (*Orchestrator, error) {
	if dir := filepath.Dir(cfg.Export.StateFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	state, err := checkpoint.Open(cfg.Export.StateFile)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	o := &Orchestrator{
		config:   cfg,
		state:    state,
		progress: progress.New(),
	}

	if cfg.Upload.Enabled() {
		pub, err := publish.New(cfg.Upload)
		if err != nil {
			state.Close()
			return nil, err
		}
		o.publisher = pub
	}

	closeMetrics, err := setupMetrics(cfg.Metrics)
	if err != nil {
		state.Close()
		return nil, err
	}
	o.closeMetrics = closeMetrics
	return o, nil
}

// Close releases the source connection, the state store and the metrics backend.
func (o *Orchestrator) Close() {
	if o.src != nil {
		o.src.Close()
	}
	if o.state != nil {
		o.state.Close()
	}
	if o.closeMetrics != nil {
		o.closeMetrics()
	}
}

// Source returns the connected source, connecting on first call.
func (o *Orchestrator) Source(ctx context.Context) (*source.Source, error) {
	if o.src != nil {
		return o.src, nil
	}
	src, err := source.Connect(ctx, &o.config.Source)
	if err != nil {
		return nil, err
	}
	logging.Debug("Connected to %s (quote style %s)", o.config.Source.Describe(), src.QuoteStyle())
	o.src = src
	return src, nil
}

// RunOptions control a bulk export.
type RunOptions struct {
	Force  bool     // re-export tables that were already exported
	Tables []string // restrict to these expected tables
}

// Run exports the mapped tables and records the run. The returned error covers
// setup failures only; per-table failures are in the result.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	m, err := o.loadMapping()
	if err != nil {
		return nil, err
	}
	for _, t := range opts.Tables {
		if _, ok := mapping.Expected(t); !ok {
			return nil, fmt.Errorf("unknown table %q (expected one of %s)", t, strings.Join(mapping.ExpectedTableNames(), ", "))
		}
	}

	src, err := o.Source(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(o.config.Export.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if err := preflight(o.config.Export.OutputDir, o.config.Export.MinFreeDiskMB); err != nil {
		return nil, err
	}

	if o.publisher != nil {
		if s3, ok := o.publisher.(*publish.S3Publisher); ok {
			if err := s3.EnsureBucket(ctx); err != nil {
				return nil, err
			}
		}
	}

	already, err := o.alreadyExported()
	if err != nil {
		return nil, err
	}

	runID := checkpoint.NewRunID()
	if err := o.state.CreateRun(runID, o.config.Source.Describe()); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	logging.Info("Starting export run %s from %s", runID, o.config.Source.Describe())

	exp := export.New(src, export.Options{
		ChunkSize: o.config.Export.ChunkSize,
		Format:    o.config.ExportFormat(),
		OnBatch: func(table string, rows int) {
			o.progress.Add(int64(rows))
		},
	})
	runner := NewRunner(exp, o.config.OutputPath)
	runner.Tables = opts.Tables
	runner.OnTable = func(tr TableResult) {
		o.finishTable(ctx, runID, tr)
	}

	o.progress.SetTotal(o.estimateRows(ctx, src, m, runner.Selected(m), already, opts.Force))
	res := runner.RunAll(ctx, m, already, opts.Force)
	res.RunID = runID
	o.progress.Finish()

	status := checkpoint.StatusSuccess
	switch {
	case ctx.Err() != nil:
		status = checkpoint.StatusCancelled
	case res.Outcome == AllFailed:
		status = checkpoint.StatusFailed
	}
	errMsg := ""
	if len(res.Failed) > 0 {
		errMsg = "failed tables: " + strings.Join(res.Failed, ", ")
	}
	if err := o.state.CompleteRun(runID, status, string(res.Outcome), errMsg); err != nil {
		logging.Warn("Failed to record run completion: %v", err)
	}

	metrics.RecordRun(string(res.Outcome))
	if err := metrics.Flush(); err != nil {
		logging.Warn("Failed to flush metrics: %v", err)
	}

	logSummary(res)
	return res, nil
}

// finishTable persists a table's terminal state and mirrors a new export.
func (o *Orchestrator) finishTable(ctx context.Context, runID string, tr TableResult) {
	if err := o.state.RecordTable(runID, checkpoint.TableRun{
		Table:    tr.Table,
		Status:   tr.Status,
		Rows:     tr.Rows,
		Warnings: tr.Warnings,
		Error:    tr.Error,
	}); err != nil {
		logging.Warn("Failed to record table %s: %v", tr.Table, err)
	}

	rec := tr.Record
	if rec == nil {
		return
	}
	if err := o.state.SaveExport(runID, checkpoint.ExportEntry{
		Table:       rec.Table,
		SourceTable: rec.SourceTable,
		Path:        rec.Path,
		Format:      string(rec.Format),
		Columns:     rec.Columns,
		Rows:        rec.Rows,
		Checksum:    rec.Checksum,
		ExportedAt:  rec.ExportedAt,
	}); err != nil {
		logging.Warn("Failed to record export of %s: %v", tr.Table, err)
	}
	if o.publisher == nil || ctx.Err() != nil {
		return
	}
	url, size, err := o.publisher.Publish(ctx, runID, rec.Table, rec.Path)
	metrics.RecordUpload(rec.Table, err, size)
	if err != nil {
		logging.Warn("Upload of %s failed: %v", rec.Path, err)
		return
	}
	logging.Info("Uploaded %s to %s (%d bytes)", filepath.Base(rec.Path), url, size)
}

// alreadyExported returns the tables whose recorded export still exists at
// the path and in the format the current configuration would produce.
func (o *Orchestrator) alreadyExported() (map[string]bool, error) {
	entries, err := o.state.GetExports()
	if err != nil {
		return nil, fmt.Errorf("loading export history: %w", err)
	}
	format := string(o.config.ExportFormat())
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Format != format || e.Path != o.config.OutputPath(e.Table) {
			continue
		}
		if _, err := os.Stat(e.Path); err != nil {
			logging.Debug("Recorded export of %s is missing at %s", e.Table, e.Path)
			continue
		}
		out[e.Table] = true
	}
	return out, nil
}

// estimateRows sums the source row counts of the tables that will be read.
// It returns -1 when any count is unavailable.
func (o *Orchestrator) estimateRows(ctx context.Context, src *source.Source, m *mapping.Mapping, tables []string, already map[string]bool, force bool) int64 {
	var total int64
	for _, t := range tables {
		if !force && already[t] {
			continue
		}
		st, ok := m.SourceTable(t)
		if !ok {
			continue
		}
		n, err := src.RowCount(ctx, st)
		if err != nil {
			logging.Debug("Row count for %s unavailable: %v", st, err)
			return -1
		}
		total += n
	}
	return total
}

func (o *Orchestrator) loadMapping() (*mapping.Mapping, error) {
	m, err := mapping.Load(o.config.Export.MappingFile)
	if err != nil {
		return nil, fmt.Errorf("loading mapping (run 'mapping init' to create one): %w", err)
	}
	problems := m.Validate()
	for _, p := range problems {
		if p.Severity == mapping.SeverityWarning {
			logging.Warn("Mapping: %s", p)
		}
	}
	if mapping.HasErrors(problems) {
		var msgs []string
		for _, p := range problems {
			if p.Severity == mapping.SeverityError {
				msgs = append(msgs, p.String())
			}
		}
		return nil, fmt.Errorf("invalid mapping %s:\n  %s", o.config.Export.MappingFile, strings.Join(msgs, "\n  "))
	}
	return m, nil
}

func logSummary(res *RunResult) {
	logging.Info("Run %s finished in %s: %s (%d succeeded, %d failed, %d skipped, %d rows)",
		res.RunID, time.Duration(res.DurationSeconds*float64(time.Second)).Round(time.Millisecond),
		res.Outcome, len(res.Succeeded), len(res.Failed), len(res.Skipped), res.RowsExported)
	if len(res.Failed) > 0 {
		logging.Warn("Failed tables: %s", strings.Join(res.Failed, ", "))
	}
}
