// Package validate re-reads an export file and checks its header against the
// expected column set. Problems are reported in the Result, never as errors.
package validate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/johndauphine/retail-etl/internal/transform"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// Result is the outcome of validating one file.
type Result struct {
	Valid       bool     `json:"valid"`
	Message     string   `json:"message"`
	RowCount    int64    `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	Missing     []string `json:"missing,omitempty"`    // expected but absent from the file
	Unexpected  []string `json:"unexpected,omitempty"` // present but not expected
}

// File validates path against expectedColumns. Column order is ignored.
// The format follows the extension: .parquet, otherwise CSV.
func File(path string, expectedColumns []string) Result {
	var (
		header []string
		rows   int64
		err    error
	)
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		header, rows, err = readParquet(path)
	} else {
		header, rows, err = readCSV(path)
	}
	if err != nil {
		return Result{Valid: false, Message: fmt.Sprintf("cannot read %s: %v", path, err)}
	}

	res := Result{RowCount: rows, ColumnCount: len(header)}
	res.Missing, res.Unexpected = diff(expectedColumns, header)
	if len(res.Missing) == 0 && len(res.Unexpected) == 0 {
		res.Valid = true
		res.Message = fmt.Sprintf("valid: %d rows, %d columns", rows, len(header))
		return res
	}

	var parts []string
	if len(res.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(res.Missing, ", "))
	}
	if len(res.Unexpected) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(res.Unexpected, ", "))
	}
	res.Message = strings.Join(parts, "; ")
	return res
}

// readCSV returns the header and the number of data records. Quoted fields
// may span lines; a record with the wrong field count is malformed.
func readCSV(path string) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, errors.New("file is empty")
	}
	if err != nil {
		return nil, 0, err
	}
	header = append([]string(nil), header...)

	r.ReuseRecord = true
	var rows int64
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		rows++
	}
	return header, rows, nil
}

func readParquet(path string) ([]string, int64, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, 0, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, 0, err
	}
	defer pr.ReadStop()

	infos := pr.SchemaHandler.Infos
	if len(infos) == 0 {
		return nil, 0, errors.New("parquet file has no schema")
	}
	header := make([]string, 0, len(infos)-1)
	for _, info := range infos[1:] {
		header = append(header, info.ExName)
	}
	return header, pr.GetNumRows(), nil
}

// Head returns the header and at most n leading data rows of an export file,
// every cell rendered as text. Nulls render as the empty string.
func Head(path string, n int) ([]string, [][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return headParquet(path, n)
	}
	return headCSV(path, n)
}

func headCSV(path string, n int) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, nil, err
	}
	var rows [][]string
	for len(rows) < n {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

func headParquet(path string, n int) ([]string, [][]string, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return nil, nil, err
	}
	defer pr.ReadStop()

	infos := pr.SchemaHandler.Infos
	if len(infos) == 0 {
		return nil, nil, errors.New("parquet file has no schema")
	}
	header := make([]string, 0, len(infos)-1)
	for _, info := range infos[1:] {
		header = append(header, info.ExName)
	}

	if total := int(pr.GetNumRows()); n > total {
		n = total
	}
	if n <= 0 {
		return header, nil, nil
	}
	objs, err := pr.ReadByNumber(n)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]string, 0, len(objs))
	for _, obj := range objs {
		v := reflect.Indirect(reflect.ValueOf(obj))
		row := make([]string, v.NumField())
		for i := range row {
			row[i] = parquetCell(v.Field(i))
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// parquetCell renders one decoded field; optional columns decode as pointers.
func parquetCell(f reflect.Value) string {
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return ""
		}
		f = f.Elem()
	}
	switch f.Kind() {
	case reflect.Int32, reflect.Int64:
		return transform.Format(f.Int())
	case reflect.Float32, reflect.Float64:
		return transform.Format(f.Float())
	case reflect.Bool:
		return transform.Format(f.Bool())
	case reflect.String:
		return f.String()
	default:
		return fmt.Sprint(f.Interface())
	}
}

func diff(expected, actual []string) (missing, unexpected []string) {
	exp := make(map[string]bool, len(expected))
	for _, c := range expected {
		exp[c] = true
	}
	act := make(map[string]bool, len(actual))
	for _, c := range actual {
		act[c] = true
		if !exp[c] {
			unexpected = append(unexpected, c)
		}
	}
	for _, c := range expected {
		if !act[c] {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return missing, unexpected
}
