package validate

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileCSV(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		expected       []string
		wantValid      bool
		wantRows       int64
		wantMissing    []string
		wantUnexpected []string
	}{
		{
			name:      "exact match",
			content:   "id_produit,nom_produit\n1,pen\n2,ink\n",
			expected:  []string{"id_produit", "nom_produit"},
			wantValid: true,
			wantRows:  2,
		},
		{
			name:      "order ignored",
			content:   "nom_produit,id_produit\npen,1\n",
			expected:  []string{"id_produit", "nom_produit"},
			wantValid: true,
			wantRows:  1,
		},
		{
			name:      "header only",
			content:   "id_produit\n",
			expected:  []string{"id_produit"},
			wantValid: true,
			wantRows:  0,
		},
		{
			name:      "quoted newlines count once",
			content:   "id,note\n1,\"line1\nline2\"\n2,\"a \"\"b\"\"\"\n",
			expected:  []string{"id", "note"},
			wantValid: true,
			wantRows:  2,
		},
		{
			name:           "symmetric difference",
			content:        "id_produit,colour\n1,red\n",
			expected:       []string{"id_produit", "prix_achat"},
			wantValid:      false,
			wantRows:       1,
			wantMissing:    []string{"prix_achat"},
			wantUnexpected: []string{"colour"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := File(writeTemp(t, "out.csv", tt.content), tt.expected)
			if res.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (%s)", res.Valid, tt.wantValid, res.Message)
			}
			if res.RowCount != tt.wantRows {
				t.Errorf("RowCount = %d, want %d", res.RowCount, tt.wantRows)
			}
			if !reflect.DeepEqual(res.Missing, tt.wantMissing) || !reflect.DeepEqual(res.Unexpected, tt.wantUnexpected) {
				t.Errorf("Missing=%v Unexpected=%v", res.Missing, res.Unexpected)
			}
			for _, c := range append(tt.wantMissing, tt.wantUnexpected...) {
				if !strings.Contains(res.Message, c) {
					t.Errorf("Message %q should name %s", res.Message, c)
				}
			}
		})
	}
}

func TestFileReadFailures(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.csv")},
		{"empty file", writeTemp(t, "empty.csv", "")},
		{"ragged rows", writeTemp(t, "bad.csv", "a,b\n1,2,3\n")},
		{"unterminated quote", writeTemp(t, "bad2.csv", "a\n\"oops\n")},
		{"not parquet", writeTemp(t, "bad.parquet", "PAR1 garbage")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := File(tt.path, []string{"a"})
			if res.Valid {
				t.Fatal("Valid = true, want false")
			}
			if !strings.Contains(res.Message, "cannot read") {
				t.Errorf("Message = %q", res.Message)
			}
		})
	}
}

func writeClientParquet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Client.parquet")
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	schema := `{"Tag":"name=parquet_go_root, repetitiontype=REQUIRED","Fields":[
		{"Tag":"name=id_client, type=INT64, repetitiontype=OPTIONAL"},
		{"Tag":"name=ville, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"}]}`
	pw, err := writer.NewJSONWriter(schema, fw, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range []string{`{"id_client":1,"ville":"Paris"}`, `{"id_client":2,"ville":null}`} {
		if err := pw.Write(row); err != nil {
			t.Fatal(err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		t.Fatal(err)
	}
	fw.Close()
	return path
}

func TestFileParquet(t *testing.T) {
	res := File(writeClientParquet(t), []string{"ville", "id_client"})
	if !res.Valid || res.RowCount != 2 || res.ColumnCount != 2 {
		t.Errorf("File() = %+v", res)
	}
}

func TestHeadCSV(t *testing.T) {
	path := writeTemp(t, "Produit.csv", "id_produit,nom_produit\n1,\"stylo\nbleu\"\n2,\n3,encre\n")
	tests := []struct {
		n    int
		want [][]string
	}{
		{0, nil},
		{2, [][]string{{"1", "stylo\nbleu"}, {"2", ""}}},
		{10, [][]string{{"1", "stylo\nbleu"}, {"2", ""}, {"3", "encre"}}},
	}
	for _, tt := range tests {
		header, rows, err := Head(path, tt.n)
		if err != nil {
			t.Fatalf("Head(%d) error = %v", tt.n, err)
		}
		if !reflect.DeepEqual(header, []string{"id_produit", "nom_produit"}) {
			t.Errorf("Head(%d) header = %v", tt.n, header)
		}
		if !reflect.DeepEqual(rows, tt.want) {
			t.Errorf("Head(%d) rows = %q, want %q", tt.n, rows, tt.want)
		}
	}

	if _, _, err := Head(writeTemp(t, "empty.csv", ""), 5); err == nil {
		t.Error("Head() on an empty file should fail")
	}
}

func TestHeadParquet(t *testing.T) {
	header, rows, err := Head(writeClientParquet(t), 5)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if want := []string{"id_client", "ville"}; !reflect.DeepEqual(header, want) {
		t.Errorf("header = %v, want %v", header, want)
	}
	if want := [][]string{{"1", "Paris"}, {"2", ""}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}
