package orchestrator

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/johndauphine/retail-etl/internal/checkpoint"
	"github.com/johndauphine/retail-etl/internal/config"
	"github.com/johndauphine/retail-etl/internal/mapping"
)

// setup creates a sqlite source, a mapping file and a config in a temp dir.
func setup(t *testing.T, m *mapping.Mapping) (*Orchestrator, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open("sqlite", filepath.Join(dir, "retail.db"))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		`CREATE TABLE products (id INTEGER, name TEXT, price REAL)`,
		`INSERT INTO products VALUES (1, 'pen', 1.5), (2, NULL, 3), (3, 'ink', NULL)`,
		`CREATE TABLE clients (client_id INTEGER, city TEXT)`,
		`INSERT INTO clients VALUES (10, 'Lyon'), (11, NULL)`,
		`CREATE TABLE stores (store_id INTEGER)`,
	} {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	db.Close()

	if m != nil {
		if err := m.Save(filepath.Join(dir, "mappings.yaml")); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	body := `
source:
  type: sqlite
  path: retail.db
export:
  chunk_size: 2
  min_free_disk_mb: -1
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(o.Close)
	return o, cfg
}

func retailMapping() *mapping.Mapping {
	m := mapping.New()
	m.MapTable("Produit", "products")
	m.MapColumn("Produit", "id_produit", "id")
	m.MapColumn("Produit", "nom_produit", "name")
	m.MapColumn("Produit", "prix_achat", "cost")
	m.AddTransformation("Produit", mapping.FillMissing("name", "inconnu"))
	m.MapTable("Client", "clients")
	m.MapColumn("Client", "id_client", "client_id")
	m.MapColumn("Client", "ville", "city")
	m.MapTable("Magasin", "stores")
	return m
}

func TestRunExportsAndRecords(t *testing.T) {
	o, cfg := setup(t, retailMapping())
	ctx := context.Background()

	res, err := o.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"Client", "Produit"}; !reflect.DeepEqual(res.Succeeded, want) {
		t.Errorf("Succeeded = %v, want %v", res.Succeeded, want)
	}
	if want := []string{"Magasin"}; !reflect.DeepEqual(res.Failed, want) {
		t.Errorf("Failed = %v, want %v", res.Failed, want)
	}
	if res.Outcome != PartialSuccess {
		t.Errorf("Outcome = %s, want %s", res.Outcome, PartialSuccess)
	}

	data, err := os.ReadFile(cfg.OutputPath("Produit"))
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if want := "id_produit,nom_produit\n1,pen\n2,inconnu\n3,ink\n"; string(data) != want {
		t.Errorf("Produit export = %q, want %q", data, want)
	}

	run, err := o.state.GetRunByID(res.RunID)
	if err != nil {
		t.Fatalf("GetRunByID: %v", err)
	}
	if run.Status != checkpoint.StatusSuccess || run.Outcome != string(PartialSuccess) {
		t.Errorf("run = %+v", run)
	}
	if !strings.Contains(run.Error, "Magasin") {
		t.Errorf("run error %q should name the failed table", run.Error)
	}
	tables, err := o.state.GetRunTables(res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 3 {
		t.Errorf("recorded %d tables, want 3", len(tables))
	}
	entry, err := o.state.GetExport("Produit")
	if err != nil || entry == nil {
		t.Fatalf("GetExport(Produit) = %v, %v", entry, err)
	}
	if entry.Rows != 3 || len(entry.Checksum) != 16 {
		t.Errorf("export entry = %+v", entry)
	}
}

func TestRunSkipsThenForces(t *testing.T) {
	o, cfg := setup(t, retailMapping())
	ctx := context.Background()

	if _, err := o.Run(ctx, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	res, err := o.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Client", "Produit"}; !reflect.DeepEqual(res.Skipped, want) {
		t.Errorf("second run skipped %v, want %v", res.Skipped, want)
	}

	// A deleted file is exported again even without force.
	if err := os.Remove(cfg.OutputPath("Client")); err != nil {
		t.Fatal(err)
	}
	res, err = o.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Produit"}; !reflect.DeepEqual(res.Skipped, want) {
		t.Errorf("third run skipped %v, want %v", res.Skipped, want)
	}
	if _, err := os.Stat(cfg.OutputPath("Client")); err != nil {
		t.Errorf("Client not re-exported: %v", err)
	}

	res, err = o.Run(ctx, RunOptions{Force: true, Tables: []string{"Produit"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Skipped) != 0 || !reflect.DeepEqual(res.Succeeded, []string{"Produit"}) {
		t.Errorf("forced run = succeeded %v skipped %v", res.Succeeded, res.Skipped)
	}
}

func TestRunForcedReexportReflectsNewMapping(t *testing.T) {
	o, cfg := setup(t, retailMapping())
	ctx := context.Background()
	if _, err := o.Run(ctx, RunOptions{Tables: []string{"Produit"}}); err != nil {
		t.Fatal(err)
	}

	m := mapping.New()
	m.MapTable("Produit", "products")
	m.MapColumn("Produit", "id_produit", "id")
	m.MapColumn("Produit", "prix_vente", "price")
	if err := m.Save(cfg.Export.MappingFile); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(ctx, RunOptions{Force: true, Tables: []string{"Produit"}}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.OutputPath("Produit"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "id_produit,prix_vente\n1,1.5\n2,3.0\n3,\n"; string(data) != want {
		t.Errorf("re-export = %q, want %q", data, want)
	}
}

func TestRunRejectsUnknownTable(t *testing.T) {
	o, _ := setup(t, retailMapping())
	if _, err := o.Run(context.Background(), RunOptions{Tables: []string{"Orders"}}); err == nil {
		t.Fatal("expected error for unknown table filter")
	}
}

func TestRunWithoutMapping(t *testing.T) {
	o, _ := setup(t, nil)
	_, err := o.Run(context.Background(), RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "mapping init") {
		t.Fatalf("Run error = %v, want a hint to run mapping init", err)
	}
}

func TestRunRejectsInvalidMapping(t *testing.T) {
	m := retailMapping()
	m.AddTransformation("Client", mapping.CastType("city", "date"))
	o, _ := setup(t, m)
	if _, err := o.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected error for invalid mapping")
	}
}

func TestValidateExports(t *testing.T) {
	o, cfg := setup(t, retailMapping())
	ctx := context.Background()
	if _, err := o.Run(ctx, RunOptions{}); err != nil {
		t.Fatal(err)
	}

	results, err := o.ValidateExports(ctx)
	if err != nil {
		t.Fatalf("ValidateExports: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("validated %d exports, want 2", len(results))
	}
	for _, r := range results {
		if !r.Result.Valid {
			t.Errorf("%s: %s", r.Table, r.Result.Message)
		}
	}

	if err := os.WriteFile(cfg.OutputPath("Client"), []byte("id_client\n10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err = o.ValidateExports(ctx)
	if err == nil {
		t.Fatal("expected validation failure after tampering")
	}
	for _, r := range results {
		if r.Table == "Client" && (r.Result.Valid || !reflect.DeepEqual(r.Result.Missing, []string{"ville"})) {
			t.Errorf("Client result = %+v", r.Result)
		}
	}
}

func TestHistoryOutput(t *testing.T) {
	o, _ := setup(t, retailMapping())
	var buf bytes.Buffer
	if err := o.writeHistory(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No runs recorded") {
		t.Errorf("empty history = %q", buf.String())
	}

	res, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := o.writeHistory(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), res.RunID) || !strings.Contains(buf.String(), string(PartialSuccess)) {
		t.Errorf("history = %q", buf.String())
	}

	buf.Reset()
	if err := o.writeRunDetails(&buf, res.RunID); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Produit", "Client", "Magasin", "failed"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("run details missing %q:\n%s", want, buf.String())
		}
	}

	if err := o.writeRunDetails(&buf, "no-such-run"); !errors.Is(err, checkpoint.ErrRunNotFound) {
		t.Errorf("unknown run error = %v, want ErrRunNotFound", err)
	}
}

func TestInitAndCheckMapping(t *testing.T) {
	o, cfg := setup(t, nil)
	ctx := context.Background()

	m, err := o.InitMapping(ctx, false)
	if err != nil {
		t.Fatalf("InitMapping: %v", err)
	}
	if _, err := os.Stat(cfg.Export.MappingFile); err != nil {
		t.Fatalf("mapping file not written: %v", err)
	}
	if _, err := o.InitMapping(ctx, false); err == nil {
		t.Error("second InitMapping without overwrite should fail")
	}
	if _, err := o.InitMapping(ctx, true); err != nil {
		t.Errorf("InitMapping with overwrite: %v", err)
	}

	problems, err := o.CheckMapping(ctx)
	if err != nil {
		t.Fatalf("CheckMapping: %v", err)
	}
	if mapping.HasErrors(problems) {
		t.Errorf("suggested mapping has errors: %v", problems)
	}
	_ = m
}

func TestHealthCheck(t *testing.T) {
	o, _ := setup(t, nil)
	res, err := o.HealthCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Healthy || !res.SourceConnected {
		t.Errorf("HealthCheck = %+v", res)
	}
	if res.SourceTableCount != 3 {
		t.Errorf("SourceTableCount = %d, want 3", res.SourceTableCount)
	}
	if res.QuoteStyle != "double" {
		t.Errorf("QuoteStyle = %q", res.QuoteStyle)
	}
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	if err := preflight(dir, -1); err != nil {
		t.Errorf("disabled preflight failed: %v", err)
	}
	if err := preflight(dir, 1<<50); err == nil {
		t.Error("expected preflight failure for an impossible threshold")
	}
}

func TestPreviewSource(t *testing.T) {
	o, _ := setup(t, retailMapping())
	ctx := context.Background()

	tests := []struct {
		name      string
		table     string
		n         int
		wantTable string
		wantCols  []string
		wantRows  [][]string
	}{
		{
			name:      "source table",
			table:     "products",
			n:         2,
			wantTable: "products",
			wantCols:  []string{"id", "name", "price"},
			wantRows:  [][]string{{"1", "pen", "1.5"}, {"2", "", "3.0"}},
		},
		{
			name:      "expected table through mapping",
			table:     "Client",
			wantTable: "clients",
			wantCols:  []string{"client_id", "city"},
			wantRows:  [][]string{{"10", "Lyon"}, {"11", ""}},
		},
		{
			name:      "empty table",
			table:     "Magasin",
			n:         3,
			wantTable: "stores",
			wantCols:  []string{"store_id"},
			wantRows:  [][]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := o.PreviewSource(ctx, tt.table, tt.n)
			if err != nil {
				t.Fatalf("PreviewSource() error = %v", err)
			}
			if p.Table != tt.wantTable || p.Origin != "source" {
				t.Errorf("Table=%s Origin=%s", p.Table, p.Origin)
			}
			if !reflect.DeepEqual(p.Columns, tt.wantCols) {
				t.Errorf("Columns = %v, want %v", p.Columns, tt.wantCols)
			}
			if !reflect.DeepEqual(p.Rows, tt.wantRows) {
				t.Errorf("Rows = %q, want %q", p.Rows, tt.wantRows)
			}
		})
	}

	if _, err := o.PreviewSource(ctx, "Fournisseur", 5); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("PreviewSource(unknown) error = %v", err)
	}
}

func TestPreviewExport(t *testing.T) {
	o, cfg := setup(t, retailMapping())

	if _, err := o.PreviewExport("Produit", 5); err == nil || !strings.Contains(err.Error(), "no recorded export") {
		t.Errorf("PreviewExport() before any run error = %v", err)
	}

	if _, err := o.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	p, err := o.PreviewExport("Produit", 2)
	if err != nil {
		t.Fatalf("PreviewExport() error = %v", err)
	}
	if p.Origin != "export" || p.Path != cfg.OutputPath("Produit") {
		t.Errorf("Origin=%s Path=%s", p.Origin, p.Path)
	}
	if want := []string{"id_produit", "nom_produit"}; !reflect.DeepEqual(p.Columns, want) {
		t.Errorf("Columns = %v, want %v", p.Columns, want)
	}
	if want := [][]string{{"1", "pen"}, {"2", "inconnu"}}; !reflect.DeepEqual(p.Rows, want) {
		t.Errorf("Rows = %q, want %q", p.Rows, want)
	}

	var buf bytes.Buffer
	if err := writePreview(&buf, p); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Produit.csv (export, 2 rows)", "nom_produit", "inconnu"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("preview output missing %q:\n%s", want, buf.String())
		}
	}
}
