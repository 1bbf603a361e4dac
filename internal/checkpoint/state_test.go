package checkpoint

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestState(t *testing.T) *State {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "state.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestState(t)
	id := NewRunID()

	if err := s.CreateRun(id, "sqlite:retail.db"); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	run, err := s.GetRunByID(id)
	if err != nil {
		t.Fatalf("GetRunByID() error = %v", err)
	}
	if run.Status != StatusRunning || run.CompletedAt != nil {
		t.Errorf("new run = %+v", run)
	}

	if err := s.RecordTable(id, TableRun{Table: "Produit", Status: StatusSuccess, Rows: 3, Warnings: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTable(id, TableRun{Table: "Stock", Status: StatusFailed, Error: "no valid columns"}); err != nil {
		t.Fatal(err)
	}
	// Re-recording a table replaces its row.
	if err := s.RecordTable(id, TableRun{Table: "Produit", Status: StatusSuccess, Rows: 4}); err != nil {
		t.Fatal(err)
	}

	if err := s.CompleteRun(id, StatusFailed, "PartialSuccess", "1 table failed"); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}
	run, _ = s.GetRunByID(id)
	if run.Outcome != "PartialSuccess" || run.CompletedAt == nil || run.Error != "1 table failed" {
		t.Errorf("completed run = %+v", run)
	}

	tables, err := s.GetRunTables(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 {
		t.Fatalf("GetRunTables() = %+v, want 2", tables)
	}
	for _, tr := range tables {
		if tr.Table == "Produit" && tr.Rows != 4 {
			t.Errorf("Produit rows = %d, want 4", tr.Rows)
		}
	}
}

func TestUnknownRun(t *testing.T) {
	s := openTestState(t)
	if _, err := s.GetRunByID("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunByID() error = %v, want ErrRunNotFound", err)
	}
	if err := s.CompleteRun("missing", StatusSuccess, "", ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("CompleteRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestGetAllRunsNewestFirst(t *testing.T) {
	s := openTestState(t)
	first, second := NewRunID(), NewRunID()
	if err := s.CreateRun(first, "a"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.CreateRun(second, "b"); err != nil {
		t.Fatal(err)
	}

	runs, err := s.GetAllRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second {
		t.Errorf("GetAllRuns() = %+v", runs)
	}
}

func TestExports(t *testing.T) {
	s := openTestState(t)

	e, err := s.GetExport("Produit")
	if err != nil || e != nil {
		t.Fatalf("GetExport() on empty store = %v, %v", e, err)
	}

	entry := ExportEntry{
		Table:       "Produit",
		SourceTable: "products",
		Path:        "/out/Produit.csv",
		Format:      "csv",
		Columns:     []string{"id_produit", "nom_produit"},
		Rows:        3,
		Checksum:    "00000000deadbeef",
	}
	if err := s.SaveExport("run-1", entry); err != nil {
		t.Fatalf("SaveExport() error = %v", err)
	}
	entry.Columns = []string{"id_produit"}
	entry.Rows = 1
	if err := s.SaveExport("run-2", entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetExport("Produit")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-2" || got.Rows != 1 || !reflect.DeepEqual(got.Columns, []string{"id_produit"}) {
		t.Errorf("GetExport() = %+v", got)
	}

	all, err := s.GetExports()
	if err != nil || len(all) != 1 {
		t.Errorf("GetExports() = %v, %v", all, err)
	}
}

func TestParseColumns(t *testing.T) {
	if got := ParseColumns(`["a","b"]`); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ParseColumns() = %v", got)
	}
	if got := ParseColumns("not json"); got != nil {
		t.Errorf("ParseColumns(invalid) = %v", got)
	}
	if (ExportEntry{}).ColumnsJSON() != "[]" {
		t.Error("nil columns should encode as []")
	}
}
