// Package metrics records export metrics through a pluggable backend.
// The default backend discards everything, so calls are always safe.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names.
const (
	ExportTotal    = "etl_export_total"
	ExportDuration = "etl_export_duration_seconds"
	RecordsTotal   = "etl_records_total"
	BatchesTotal   = "etl_batches_total"
	WarningsTotal  = "etl_warnings_total"
	RunsTotal      = "etl_runs_total"
	UploadsTotal   = "etl_uploads_total"
	UploadBytes    = "etl_upload_bytes_total"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

func status(err error) string {
	if err != nil {
		return statusFailure
	}
	return statusSuccess
}

// RecordExport counts one table export and its duration.
func RecordExport(table string, err error, d time.Duration) {
	lbls := Labels{"table": table, "status": status(err)}
	b := current()
	b.IncCounter(ExportTotal, 1, lbls)
	b.ObserveHistogram(ExportDuration, d.Seconds(), lbls)
}

// RecordRows adds written rows for a table.
func RecordRows(table string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"table": table})
}

// RecordBatches adds flushed batches for a table.
func RecordBatches(table string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"table": table})
}

// RecordWarning counts one recoverable problem by kind.
func RecordWarning(table, kind string) {
	current().IncCounter(WarningsTotal, 1, Labels{"table": table, "kind": kind})
}

// RecordRun counts one bulk run by outcome.
func RecordRun(outcome string) {
	current().IncCounter(RunsTotal, 1, Labels{"outcome": outcome})
}

// RecordUpload counts one mirrored file and its size.
func RecordUpload(table string, err error, size int64) {
	b := current()
	b.IncCounter(UploadsTotal, 1, Labels{"table": table, "status": status(err)})
	if err == nil && size > 0 {
		b.IncCounter(UploadBytes, float64(size), Labels{"table": table})
	}
}
