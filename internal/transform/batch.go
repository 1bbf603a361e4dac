// Package transform applies per-column cleaning directives to row batches.
// Batches are independent: nothing carries over from one batch to the next.
package transform

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Batch is a bounded, row-major slice of a table. A nil cell is a null.
// Non-null cells are string, int64, float64, bool or time.Time.
type Batch struct {
	Columns []string
	Rows    [][]any
}

// NewBatch returns an empty batch with room for capacity rows.
func NewBatch(columns []string, capacity int) *Batch {
	return &Batch{Columns: columns, Rows: make([][]any, 0, capacity)}
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	return len(b.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (b *Batch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnIndexes returns every position holding name.
func (b *Batch) ColumnIndexes(name string) []int {
	var idxs []int
	for i, c := range b.Columns {
		if c == name {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// Rename replaces the column names positionally.
func (b *Batch) Rename(names []string) error {
	if len(names) != len(b.Columns) {
		return fmt.Errorf("rename: %d names for %d columns", len(names), len(b.Columns))
	}
	b.Columns = append([]string(nil), names...)
	return nil
}

// ScanRow reads the current row of rows into a new batch row.
func (b *Batch) ScanRow(rows *sql.Rows) error {
	raw := make([]any, len(b.Columns))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return err
	}
	for i, v := range raw {
		raw[i] = normalize(v)
	}
	b.Rows = append(b.Rows, raw)
	return nil
}

// normalize maps driver values onto the batch cell types.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > 1<<63-1 {
			return strconv.FormatUint(x, 10)
		}
		return int64(x)
	case float32:
		return float64(x)
	case string, int64, float64, bool, time.Time:
		return x
	default:
		return fmt.Sprint(x)
	}
}
