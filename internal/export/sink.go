package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/johndauphine/retail-etl/internal/transform"
	"github.com/zeebo/xxh3"
)

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts "csv" or "parquet" in any case. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (csv or parquet)", s)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to csv.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Ext returns the file extension with its dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ColumnType is the physical type of an output column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInt
	TypeFloat
)

// Field is one output column.
type Field struct {
	Name string
	Type ColumnType
}

// sink writes one export file. The header or schema is written on open, so an
// empty table still yields a complete file.
type sink interface {
	WriteBatch(b *transform.Batch) error
	Close() error
	Abort()
}

func openSink(format Format, path string, fields []Field) (sink, error) {
	switch format {
	case FormatParquet:
		return newParquetSink(path, fields)
	default:
		return newCSVSink(path, fields)
	}
}

// checksumFile returns the xxh3 digest of a file as 16 hex digits.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
