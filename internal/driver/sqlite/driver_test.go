package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
)

func TestDriverRegistration(t *testing.T) {
	for _, name := range []string{"sqlite", "sqlite3", "file"} {
		d, err := driver.Get(name)
		if err != nil {
			t.Errorf("Get(%q): %v", name, err)
			continue
		}
		if d.Name() != "sqlite" || d.Kind() != driver.KindFile {
			t.Errorf("Get(%q) = %s (%s)", name, d.Name(), d.Kind())
		}
	}
}

func TestDialect(t *testing.T) {
	d := &Dialect{}
	if got := d.QualifyTable("", "Employé"); got != `"Employé"` {
		t.Errorf("QualifyTable = %q", got)
	}
	if got := d.BuildDSN("", 0, "", "", "", map[string]any{"path": "/data/shop.db"}); got != "/data/shop.db" {
		t.Errorf("BuildDSN = %q", got)
	}
	if d.QuoteStyle() != driver.QuoteDouble {
		t.Errorf("QuoteStyle = %s", d.QuoteStyle())
	}
}

func TestOpen(t *testing.T) {
	d := &Driver{}
	if _, err := d.Open(&dbconfig.SourceConfig{Type: "sqlite"}, 1); err == nil {
		t.Error("Open without a path should fail")
	}

	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := d.Open(&dbconfig.SourceConfig{Type: "sqlite", Path: path}, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got := db.Stats().MaxOpenConnections; got != 2 {
		t.Errorf("MaxOpenConnections = %d, want 2", got)
	}
}
