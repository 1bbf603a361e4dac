package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	status       TEXT NOT NULL,
	outcome      TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS run_tables (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	table_name TEXT NOT NULL,
	status     TEXT NOT NULL,
	rows       INTEGER NOT NULL DEFAULT 0,
	warnings   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, table_name)
);
CREATE TABLE IF NOT EXISTS exports (
	table_name   TEXT PRIMARY KEY,
	source_table TEXT NOT NULL,
	path         TEXT NOT NULL,
	format       TEXT NOT NULL,
	columns      TEXT NOT NULL,
	rows         INTEGER NOT NULL,
	checksum     TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	exported_at  TIMESTAMP NOT NULL
);
`

// ErrRunNotFound is returned by GetRunByID for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// State is the SQLite-backed StateBackend.
type State struct {
	db *sql.DB
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates the state database at path.
func Open(path string) (*State, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}
	return &State{db: db}, nil
}

// Close closes the state database.
func (s *State) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a run.
func (s *State) CreateRun(id, source string) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, source, started_at, status) VALUES (?, ?, ?, ?)`,
		id, source, time.Now().UTC(), StatusRunning)
	return err
}

// CompleteRun records the terminal status and outcome of a run.
func (s *State) CompleteRun(id, status, outcome, errorMsg string) error {
	res, err := s.db.Exec(`UPDATE runs SET completed_at = ?, status = ?, outcome = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), status, outcome, errorMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordTable stores the terminal state of a table within a run.
func (s *State) RecordTable(runID string, tr TableRun) error {
	if tr.UpdatedAt.IsZero() {
		tr.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO run_tables (run_id, table_name, status, rows, warnings, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, table_name) DO UPDATE SET
			status = excluded.status, rows = excluded.rows, warnings = excluded.warnings,
			error = excluded.error, updated_at = excluded.updated_at`,
		runID, tr.Table, tr.Status, tr.Rows, tr.Warnings, tr.Error, tr.UpdatedAt)
	return err
}

// SaveExport replaces the recorded export of e.Table.
func (s *State) SaveExport(runID string, e ExportEntry) error {
	if e.ExportedAt.IsZero() {
		e.ExportedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO exports (table_name, source_table, path, format, columns, rows, checksum, run_id, exported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name) DO UPDATE SET
			source_table = excluded.source_table, path = excluded.path, format = excluded.format,
			columns = excluded.columns, rows = excluded.rows, checksum = excluded.checksum,
			run_id = excluded.run_id, exported_at = excluded.exported_at`,
		e.Table, e.SourceTable, e.Path, e.Format, e.ColumnsJSON(), e.Rows, e.Checksum, runID, e.ExportedAt)
	return err
}

// GetExports returns every recorded export ordered by table name.
func (s *State) GetExports() ([]ExportEntry, error) {
	rows, err := s.db.Query(`
		SELECT table_name, source_table, path, format, columns, rows, checksum, run_id, exported_at
		FROM exports ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportEntry
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetExport returns the recorded export of table, or nil if there is none.
func (s *State) GetExport(table string) (*ExportEntry, error) {
	row := s.db.QueryRow(`
		SELECT table_name, source_table, path, format, columns, rows, checksum, run_id, exported_at
		FROM exports WHERE table_name = ?`, table)
	e, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(r scanner) (*ExportEntry, error) {
	var e ExportEntry
	var cols string
	if err := r.Scan(&e.Table, &e.SourceTable, &e.Path, &e.Format, &cols, &e.Rows, &e.Checksum, &e.RunID, &e.ExportedAt); err != nil {
		return nil, err
	}
	e.Columns = ParseColumns(cols)
	return &e, nil
}

// GetAllRuns returns every run, newest first.
func (s *State) GetAllRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, source, started_at, completed_at, status, outcome, error
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunByID returns one run or ErrRunNotFound.
func (s *State) GetRunByID(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, source, started_at, completed_at, status, outcome, error
		FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

func scanRun(r scanner) (*Run, error) {
	var run Run
	var completed sql.NullTime
	if err := r.Scan(&run.ID, &run.Source, &run.StartedAt, &completed, &run.Status, &run.Outcome, &run.Error); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

// GetRunTables returns the table states of a run ordered by update time.
func (s *State) GetRunTables(runID string) ([]TableRun, error) {
	rows, err := s.db.Query(`
		SELECT table_name, status, rows, warnings, error, updated_at
		FROM run_tables WHERE run_id = ? ORDER BY updated_at, table_name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableRun
	for rows.Next() {
		var tr TableRun
		if err := rows.Scan(&tr.Table, &tr.Status, &tr.Rows, &tr.Warnings, &tr.Error, &tr.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
