package source

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
)

func newTestDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retail.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestConnectAndIntrospect(t *testing.T) {
	path := newTestDB(t,
		`CREATE TABLE products (id INTEGER, name TEXT, price REAL)`,
		`CREATE TABLE clients (client_id INTEGER, city TEXT)`,
		`INSERT INTO products VALUES (1, 'pen', 1.5), (2, 'ink', 3.0)`,
	)

	ctx := context.Background()
	src, err := Connect(ctx, &dbconfig.SourceConfig{Type: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer src.Close()

	if src.DBType() != "sqlite" {
		t.Errorf("DBType() = %q, want sqlite", src.DBType())
	}
	if src.QuoteStyle() != driver.QuoteDouble {
		t.Errorf("QuoteStyle() = %v, want double", src.QuoteStyle())
	}
	if src.Kind() != driver.KindFile {
		t.Errorf("Kind() = %v, want file", src.Kind())
	}

	got, err := src.Introspect(ctx)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	want := map[string][]string{
		"clients":  {"client_id", "city"},
		"products": {"id", "name", "price"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Introspect() = %v, want %v", got, want)
	}

	cols, err := src.Columns(ctx, "missing")
	if err != nil {
		t.Fatalf("Columns(missing) error = %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("Columns(missing) = %v, want none", cols)
	}

	tables, err := src.Describe(ctx)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(tables) != 2 || tables[1].Name != "products" || tables[1].RowCount != 2 {
		t.Errorf("Describe() = %+v", tables)
	}
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name string
		cfg  dbconfig.SourceConfig
	}{
		{"unknown driver", dbconfig.SourceConfig{Type: "access", Path: "x.mdb"}},
		{"sqlite without path", dbconfig.SourceConfig{Type: "sqlite"}},
		{"missing directory", dbconfig.SourceConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "no", "such", "dir", "x.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Connect(context.Background(), &tt.cfg)
			if err == nil {
				src.Close()
				t.Fatal("Connect() expected error")
			}
			if !errors.Is(err, ErrConnection) {
				t.Errorf("Connect() error = %v, want ErrConnection", err)
			}
		})
	}
}

func TestQualifiedTable(t *testing.T) {
	path := newTestDB(t, `CREATE TABLE t (a INTEGER)`)
	src, err := Connect(context.Background(), &dbconfig.SourceConfig{Type: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer src.Close()

	if got := src.QualifiedTable(`Employé "x"`); got != `"Employé ""x"""` {
		t.Errorf("QualifiedTable() = %s", got)
	}
}

func TestTableHasColumn(t *testing.T) {
	tbl := Table{Name: "Produit", Columns: []string{"id", "name"}}
	if !tbl.HasColumn("id") || tbl.HasColumn("ID") {
		t.Error("HasColumn should be exact and case-sensitive")
	}
	if tbl.FullName() != "Produit" {
		t.Errorf("FullName() = %s", tbl.FullName())
	}
}
