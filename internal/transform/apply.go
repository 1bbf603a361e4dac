package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/johndauphine/retail-etl/internal/mapping"
)

var (
	// ErrColumnMissing means the directive names a column the batch lacks.
	ErrColumnMissing = errors.New("column not in batch")
	// ErrInvalid means the directive itself is malformed.
	ErrInvalid = errors.New("invalid transformation")
)

// SkipError reports a directive that was not applied to a batch. The batch is
// left untouched for that column.
type SkipError struct {
	Transformation mapping.Transformation
	Err            error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s skipped: %v", e.Transformation, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// Stats describes the effect of one directive on one batch.
type Stats struct {
	Filled int // nulls replaced by fill_na
	Nulled int // values a cast could not convert
}

// Apply runs one directive over the batch in place.
func Apply(b *Batch, t mapping.Transformation) (Stats, error) {
	if err := t.Validate(); err != nil {
		return Stats{}, &SkipError{t, fmt.Errorf("%w: %v", ErrInvalid, err)}
	}
	idxs := b.ColumnIndexes(t.Column)
	if len(idxs) == 0 {
		return Stats{}, &SkipError{t, ErrColumnMissing}
	}

	// A source column selected twice is transformed in every position.
	var st Stats
	for _, idx := range idxs {
		switch t.Type {
		case mapping.FillNA:
			for _, row := range b.Rows {
				if row[idx] == nil {
					row[idx] = t.Value
					st.Filled++
				}
			}
		case mapping.TypeCast:
			st.Nulled += cast(b, idx, mapping.NormalizedDType(t.DType))
		}
	}
	return st, nil
}

// Fits reports whether value survives a cast to dtype without becoming null.
func Fits(value any, dtype string) bool {
	switch mapping.NormalizedDType(dtype) {
	case mapping.DTypeInt:
		_, ok := toInt(value)
		return ok
	case mapping.DTypeFloat:
		_, ok := toFloat(value)
		return ok
	default:
		return true
	}
}

// ApplyAll runs every directive in order and returns one SkipError per
// directive that could not be applied. It never fails the batch.
func ApplyAll(b *Batch, ts []mapping.Transformation) ([]Stats, []error) {
	stats := make([]Stats, len(ts))
	var skipped []error
	for i, t := range ts {
		st, err := Apply(b, t)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		stats[i] = st
	}
	return stats, skipped
}

func cast(b *Batch, idx int, dtype string) (nulled int) {
	for _, row := range b.Rows {
		v := row[idx]
		if v == nil {
			if dtype == mapping.DTypeString {
				row[idx] = NullText
			}
			continue
		}
		switch dtype {
		case mapping.DTypeInt:
			if n, ok := toInt(v); ok {
				row[idx] = n
			} else {
				row[idx] = nil
				nulled++
			}
		case mapping.DTypeFloat:
			if f, ok := toFloat(v); ok {
				row[idx] = f
			} else {
				row[idx] = nil
				nulled++
			}
		case mapping.DTypeString:
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				row[idx] = NullText
			} else {
				row[idx] = Format(v)
			}
		}
	}
	return nulled
}
