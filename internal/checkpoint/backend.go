// Package checkpoint persists run history and the latest export of each
// expected table, so a later run can skip tables that are already exported.
package checkpoint

import (
	"encoding/json"
	"time"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// StateBackend defines the interface for state persistence.
type StateBackend interface {
	// Run management
	CreateRun(id, source string) error
	CompleteRun(id, status, outcome, errorMsg string) error
	RecordTable(runID string, tr TableRun) error

	// Latest export per expected table
	SaveExport(runID string, e ExportEntry) error
	GetExports() ([]ExportEntry, error)
	GetExport(table string) (*ExportEntry, error)

	// History
	GetAllRuns() ([]Run, error)
	GetRunByID(runID string) (*Run, error)
	GetRunTables(runID string) ([]TableRun, error)

	// Lifecycle
	Close() error
}

// Ensure State implements StateBackend
var _ StateBackend = (*State)(nil)

// Run is one bulk export invocation.
type Run struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Outcome     string     `json:"outcome,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TableRun is the terminal state of one table within a run.
type TableRun struct {
	Table     string    `json:"table"`
	Status    string    `json:"status"`
	Rows      int64     `json:"rows"`
	Warnings  int       `json:"warnings"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExportEntry is the most recent successful export of an expected table.
type ExportEntry struct {
	Table       string    `json:"table"`
	SourceTable string    `json:"source_table"`
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	Columns     []string  `json:"columns"`
	Rows        int64     `json:"rows"`
	Checksum    string    `json:"checksum"`
	RunID       string    `json:"run_id"`
	ExportedAt  time.Time `json:"exported_at"`
}

// ColumnsJSON returns the columns as a JSON array for storage.
func (e ExportEntry) ColumnsJSON() string {
	if e.Columns == nil {
		return "[]"
	}
	b, err := json.Marshal(e.Columns)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParseColumns parses a stored JSON array of column names.
func ParseColumns(s string) []string {
	var cols []string
	if err := json.Unmarshal([]byte(s), &cols); err != nil {
		return nil
	}
	return cols
}
