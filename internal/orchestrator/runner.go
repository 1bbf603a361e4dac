package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johndauphine/retail-etl/internal/checkpoint"
	"github.com/johndauphine/retail-etl/internal/export"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/mapping"
)

// Outcome is the aggregate result of a bulk run.
type Outcome string

const (
	NothingToDo    Outcome = "nothing_to_do"
	AllSucceeded   Outcome = "all_succeeded"
	PartialSuccess Outcome = "partial_success"
	AllFailed      Outcome = "all_failed"
)

func outcomeOf(succeeded, failed int) Outcome {
	switch {
	case succeeded == 0 && failed == 0:
		return NothingToDo
	case failed == 0:
		return AllSucceeded
	case succeeded == 0:
		return AllFailed
	default:
		return PartialSuccess
	}
}

// TableExporter runs one table export. *export.Exporter implements it.
type TableExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Record, error)
}

// TableResult is the terminal state of one table in a run.
type TableResult struct {
	Table    string         `json:"table"`
	Status   string         `json:"status"` // success, skipped, failed or cancelled
	Rows     int64          `json:"rows"`
	Path     string         `json:"path,omitempty"`
	Checksum string         `json:"checksum,omitempty"`
	Warnings int            `json:"warnings"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	Record   *export.Record `json:"-"`
}

// Succeeded reports whether the table ended in the Succeeded state.
func (r TableResult) Succeeded() bool {
	return r.Status == checkpoint.StatusSuccess || r.Status == checkpoint.StatusSkipped
}

// RunResult aggregates the tables of one bulk run. Skipped tables count as succeeded.
type RunResult struct {
	RunID           string        `json:"run_id,omitempty"`
	Outcome         Outcome       `json:"outcome"`
	Succeeded       []string      `json:"succeeded"`
	Failed          []string      `json:"failed"`
	Skipped         []string      `json:"skipped,omitempty"`
	Tables          []TableResult `json:"tables"`
	RowsExported    int64         `json:"rows_exported"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	DurationSeconds float64       `json:"duration_seconds"`
}

// Records returns the export records produced in this run, keyed by table.
func (r *RunResult) Records() map[string]*export.Record {
	out := make(map[string]*export.Record)
	for _, t := range r.Tables {
		if t.Record != nil {
			out[t.Table] = t.Record
		}
	}
	return out
}

// Runner drives the export engine over the mapped tables one at a time.
type Runner struct {
	exporter   TableExporter
	outputPath func(table string) string

	// Tables restricts the run to these expected tables when non-empty.
	Tables []string

	// OnTable is called when a table reaches a terminal state.
	OnTable func(TableResult)
}

// NewRunner creates a Runner. outputPath maps an expected table to its file.
func NewRunner(exp TableExporter, outputPath func(table string) string) *Runner {
	return &Runner{exporter: exp, outputPath: outputPath}
}

// RunAll exports every mapped table in expected-schema order. A table in
// alreadyExported is reported as succeeded without touching the source unless
// force is set. Errors and panics are contained at the table boundary.
// Cancelling ctx stops the run between tables; an in-flight export completes.
func (r *Runner) RunAll(ctx context.Context, m *mapping.Mapping, alreadyExported map[string]bool, force bool) *RunResult {
	res := &RunResult{StartedAt: time.Now(), Succeeded: []string{}, Failed: []string{}}

	tables := r.Selected(m)
	for _, table := range tables {
		var tr TableResult
		switch {
		case ctx.Err() != nil:
			tr = TableResult{Table: table, Status: checkpoint.StatusCancelled, Error: ctx.Err().Error()}
		case !force && alreadyExported[table]:
			logging.Info("%-30s SKIP already exported", table)
			tr = TableResult{Table: table, Status: checkpoint.StatusSkipped}
		default:
			tr = r.runTable(context.WithoutCancel(ctx), m, table)
		}
		res.add(tr)
		if r.OnTable != nil {
			r.OnTable(tr)
		}
	}

	res.CompletedAt = time.Now()
	res.DurationSeconds = res.CompletedAt.Sub(res.StartedAt).Seconds()
	res.Outcome = outcomeOf(len(res.Succeeded), len(res.Failed))
	return res
}

func (r *RunResult) add(tr TableResult) {
	r.Tables = append(r.Tables, tr)
	if tr.Succeeded() {
		r.Succeeded = append(r.Succeeded, tr.Table)
		if tr.Status == checkpoint.StatusSkipped {
			r.Skipped = append(r.Skipped, tr.Table)
		}
		r.RowsExported += tr.Rows
		return
	}
	r.Failed = append(r.Failed, tr.Table)
}

// Selected returns the mapped tables in expected-schema order, filtered by r.Tables.
func (r *Runner) Selected(m *mapping.Mapping) []string {
	mapped := m.MappedTables()
	if len(r.Tables) == 0 {
		return mapped
	}
	want := make(map[string]bool, len(r.Tables))
	for _, t := range r.Tables {
		want[t] = true
	}
	var out []string
	for _, t := range mapped {
		if want[t] {
			out = append(out, t)
		}
	}
	return out
}

func (r *Runner) runTable(ctx context.Context, m *mapping.Mapping, table string) (tr TableResult) {
	start := time.Now()
	tr = TableResult{Table: table}
	defer func() {
		if p := recover(); p != nil {
			tr.Status = checkpoint.StatusFailed
			tr.Error = fmt.Sprintf("panic: %v", p)
			tr.Record = nil
			logging.Error("%-30s FAIL %s", table, tr.Error)
		}
		tr.Duration = time.Since(start)
	}()

	plan, err := m.Resolve(table)
	if err != nil {
		return failed(tr, err)
	}

	rec, err := r.exporter.Export(ctx, export.Request{
		Table:           table,
		SourceTable:     plan.SourceTable,
		SourceColumns:   plan.SourceColumns,
		TargetColumns:   plan.TargetColumns,
		OutputPath:      r.outputPath(table),
		Transformations: plan.Transformations,
	})
	if err != nil {
		return failed(tr, err)
	}

	tr.Status = checkpoint.StatusSuccess
	tr.Rows = rec.Rows
	tr.Path = rec.Path
	tr.Checksum = rec.Checksum
	tr.Warnings = len(rec.Warnings)
	tr.Record = rec
	logging.Info("%-30s OK %d rows (%d warnings)", table, rec.Rows, len(rec.Warnings))
	return tr
}

func failed(tr TableResult, err error) TableResult {
	tr.Status = checkpoint.StatusFailed
	tr.Error = err.Error()
	switch {
	case errors.Is(err, export.ErrNoColumnsMapped), errors.Is(err, export.ErrNoValidColumns),
		errors.Is(err, export.ErrColumnCountMismatch), errors.Is(err, mapping.ErrUnmapped):
		logging.Warn("%-30s FAIL %v", tr.Table, err)
	default:
		logging.Error("%-30s FAIL %v", tr.Table, err)
	}
	return tr
}
