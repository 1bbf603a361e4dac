package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/johndauphine/retail-etl/internal/transform"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetSink struct {
	path   string
	pf     source.ParquetFile
	pw     *writer.JSONWriter
	fields []Field
}

func newParquetSink(path string, fields []Field) (*parquetSink, error) {
	for _, f := range fields {
		// Tag syntax is comma and equals delimited.
		if strings.ContainsAny(f.Name, ",=") {
			return nil, fmt.Errorf("column name %q cannot be stored in parquet", f.Name)
		}
	}

	pf, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, err
	}
	pw, err := writer.NewJSONWriter(parquetSchema(fields), pf, 4)
	if err != nil {
		pf.Close()
		os.Remove(path)
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	return &parquetSink{path: path, pf: pf, pw: pw, fields: fields}, nil
}

func parquetSchema(fields []Field) string {
	defs := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		var typ string
		switch f.Type {
		case TypeInt:
			typ = "type=INT64"
		case TypeFloat:
			typ = "type=DOUBLE"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		defs = append(defs, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", f.Name, typ),
		})
	}
	b, _ := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": defs,
	})
	return string(b)
}

// WriteBatch encodes every row as a JSON object keyed by column name.
func (s *parquetSink) WriteBatch(b *transform.Batch) error {
	row := make(map[string]any, len(s.fields))
	for _, r := range b.Rows {
		for i, f := range s.fields {
			row[f.Name] = parquetValue(r[i], f.Type)
		}
		doc, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := s.pw.Write(string(doc)); err != nil {
			return err
		}
	}
	return nil
}

// parquetValue maps a cell onto the column's physical type. A cell that does
// not fit a numeric column becomes null.
func parquetValue(v any, t ColumnType) any {
	if v == nil {
		return nil
	}
	switch t {
	case TypeInt:
		if n, ok := v.(int64); ok {
			return n
		}
		return nil
	case TypeFloat:
		switch x := v.(type) {
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil
			}
			return x
		case int64:
			return float64(x)
		}
		return nil
	default:
		return transform.Format(v)
	}
}

func (s *parquetSink) Close() error {
	if err := s.pw.WriteStop(); err != nil {
		s.pf.Close()
		return err
	}
	return s.pf.Close()
}

func (s *parquetSink) Abort() {
	_ = s.pw.WriteStop()
	s.pf.Close()
	os.Remove(s.path)
}
