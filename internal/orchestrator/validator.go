package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/validate"
)

// ExportValidation pairs a recorded export with its validation result.
type ExportValidation struct {
	Table  string          `json:"table"`
	Path   string          `json:"path"`
	Rows   int64           `json:"recorded_rows"`
	Result validate.Result `json:"result"`
}

// ValidateExports checks every recorded export file against the columns and
// row count recorded when it was written.
func (o *Orchestrator) ValidateExports(ctx context.Context) ([]ExportValidation, error) {
	entries, err := o.state.GetExports()
	if err != nil {
		return nil, fmt.Errorf("loading export history: %w", err)
	}
	if len(entries) == 0 {
		logging.Info("No exports recorded yet")
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Table < entries[j].Table })

	logging.Info("\nValidation Results:")
	logging.Info("-------------------")

	var out []ExportValidation
	var failed bool
	for _, e := range entries {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		v := ExportValidation{Table: e.Table, Path: e.Path, Rows: e.Rows, Result: validate.File(e.Path, e.Columns)}
		r := &v.Result
		if r.Valid && r.RowCount != e.Rows {
			r.Valid = false
			r.Message = fmt.Sprintf("row count %d differs from recorded %d", r.RowCount, e.Rows)
		}
		out = append(out, v)

		switch {
		case r.Valid:
			logging.Info("%-30s OK %d rows", e.Table, r.RowCount)
		case len(r.Missing) > 0 || len(r.Unexpected) > 0:
			logging.Error("%-30s FAIL missing=[%s] unexpected=[%s]", e.Table,
				strings.Join(r.Missing, ", "), strings.Join(r.Unexpected, ", "))
			failed = true
		default:
			logging.Error("%-30s FAIL %s", e.Table, r.Message)
			failed = true
		}
	}

	if failed {
		return out, fmt.Errorf("validation failed")
	}
	return out, nil
}
