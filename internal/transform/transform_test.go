package transform

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/johndauphine/retail-etl/internal/mapping"
)

func column(b *Batch, name string) []any {
	idx := b.ColumnIndex(name)
	out := make([]any, len(b.Rows))
	for i, row := range b.Rows {
		out[i] = row[idx]
	}
	return out
}

func batchOf(col string, values ...any) *Batch {
	b := NewBatch([]string{col, "other"}, len(values))
	for _, v := range values {
		b.Rows = append(b.Rows, []any{v, "keep"})
	}
	return b
}

func TestFillMissing(t *testing.T) {
	b := batchOf("city", "Paris", nil, "Lyon", nil, nil)

	st, err := Apply(b, mapping.FillMissing("city", "X"))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if st.Filled != 3 {
		t.Errorf("Filled = %d, want 3", st.Filled)
	}
	want := []any{"Paris", "X", "Lyon", "X", "X"}
	if got := column(b, "city"); !reflect.DeepEqual(got, want) {
		t.Errorf("city = %v, want %v", got, want)
	}
	if got := column(b, "other"); got[1] != "keep" {
		t.Errorf("other column modified: %v", got)
	}
}

func TestCastInt(t *testing.T) {
	b := batchOf("qty", "1", "abc", "3")

	st, err := Apply(b, mapping.CastType("qty", "int"))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []any{int64(1), nil, int64(3)}
	if got := column(b, "qty"); !reflect.DeepEqual(got, want) {
		t.Errorf("qty = %v, want %v", got, want)
	}
	if st.Nulled != 1 {
		t.Errorf("Nulled = %d, want 1", st.Nulled)
	}
	if b.Len() != 3 {
		t.Errorf("rows = %d, want 3", b.Len())
	}
}

func TestCastIntLenient(t *testing.T) {
	b := batchOf("v", " 7 ", "2.0", "2.5", 4.0, 4.5, int64(9), true, nil, "1e3", time.Now())
	if _, err := Apply(b, mapping.CastType("v", "int")); err != nil {
		t.Fatal(err)
	}
	want := []any{int64(7), int64(2), nil, int64(4), nil, int64(9), int64(1), nil, int64(1000), nil}
	if got := column(b, "v"); !reflect.DeepEqual(got, want) {
		t.Errorf("v = %v, want %v", got, want)
	}
}

func TestCastFloat(t *testing.T) {
	b := batchOf("price", "1.5", int64(2), "n/a", nil, "NaN", 3.25)
	st, err := Apply(b, mapping.CastType("price", "float"))
	if err != nil {
		t.Fatal(err)
	}
	want := []any{1.5, 2.0, nil, nil, nil, 3.25}
	if got := column(b, "price"); !reflect.DeepEqual(got, want) {
		t.Errorf("price = %v, want %v", got, want)
	}
	if st.Nulled != 2 {
		t.Errorf("Nulled = %d, want 2", st.Nulled)
	}
}

func TestCastString(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	b := batchOf("v", int64(12), 1.0, true, ts, nil, math.NaN(), "x")
	st, err := Apply(b, mapping.CastType("v", "str"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Nulled != 0 {
		t.Errorf("Nulled = %d, a string cast never fails", st.Nulled)
	}
	want := []any{"12", "1.0", "True", "2024-03-01 09:30:00", "None", "None", "x"}
	got := column(b, "v")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("v = %v, want %v", got, want)
	}
	for i, v := range got {
		if _, ok := v.(string); !ok {
			t.Errorf("row %d = %#v, want text", i, v)
		}
	}
}

func TestApplyRepeatedSourceColumn(t *testing.T) {
	b := NewBatch([]string{"prix", "id", "prix"}, 2)
	b.Rows = append(b.Rows, []any{"2.5", int64(1), "2.5"}, []any{nil, int64(2), nil})

	st, err := Apply(b, mapping.FillMissing("prix", "0"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Filled != 2 {
		t.Errorf("Filled = %d, want 2", st.Filled)
	}
	st, err = Apply(b, mapping.CastType("prix", "float"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Nulled != 0 {
		t.Errorf("Nulled = %d, want 0", st.Nulled)
	}
	want := [][]any{{2.5, int64(1), 2.5}, {0.0, int64(2), 0.0}}
	if !reflect.DeepEqual(b.Rows, want) {
		t.Errorf("Rows = %v, want %v", b.Rows, want)
	}
}

func TestFits(t *testing.T) {
	tests := []struct {
		value any
		dtype string
		want  bool
	}{
		{"42", "int", true},
		{"4.0", "int", true},
		{"4.5", "int", false},
		{"inconnu", "int", false},
		{"4.5", "float", true},
		{"n/a", "float", false},
		{"n/a", "str", true},
		{"n/a", "string", true},
	}
	for _, tt := range tests {
		if got := Fits(tt.value, tt.dtype); got != tt.want {
			t.Errorf("Fits(%q, %s) = %v, want %v", tt.value, tt.dtype, got, tt.want)
		}
	}
}

func TestApplySkips(t *testing.T) {
	b := batchOf("a", "1")
	tests := []struct {
		name string
		tr   mapping.Transformation
		want error
	}{
		{"missing column", mapping.FillMissing("zzz", "0"), ErrColumnMissing},
		{"bad dtype", mapping.CastType("a", "decimal"), ErrInvalid},
		{"bad type", mapping.Transformation{Type: "trim", Column: "a"}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(b, tt.tr)
			var skip *SkipError
			if !errors.As(err, &skip) {
				t.Fatalf("Apply() error = %v, want *SkipError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Apply() error = %v, want %v", err, tt.want)
			}
		})
	}
	if got := column(b, "a"); got[0] != "1" {
		t.Errorf("skipped directives must not touch data: %v", got)
	}
}

func TestApplyAllContinuesAfterSkip(t *testing.T) {
	b := batchOf("a", nil, "2")
	_, skipped := ApplyAll(b, []mapping.Transformation{
		mapping.FillMissing("missing", "0"),
		mapping.FillMissing("a", "0"),
		mapping.CastType("a", "int"),
	})
	if len(skipped) != 1 {
		t.Fatalf("skipped = %v, want 1", skipped)
	}
	if got := column(b, "a"); !reflect.DeepEqual(got, []any{int64(0), int64(2)}) {
		t.Errorf("a = %v", got)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{int64(-3), "-3"},
		{2.0, "2.0"},
		{0.1, "0.1"},
		{math.NaN(), ""},
		{false, "False"},
		{time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.UTC), "2024-01-02 03:04:05.600000"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRename(t *testing.T) {
	b := NewBatch([]string{"id", "name"}, 0)
	if err := b.Rename([]string{"id_produit", "nom_produit"}); err != nil {
		t.Fatal(err)
	}
	if b.ColumnIndex("nom_produit") != 1 {
		t.Errorf("Columns = %v", b.Columns)
	}
	if err := b.Rename([]string{"x"}); err == nil {
		t.Error("Rename() with wrong arity should fail")
	}
}
