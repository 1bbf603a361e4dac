package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/mapping"
	"github.com/johndauphine/retail-etl/internal/source"
)

// ListTables returns the source tables with their columns and row counts.
func (o *Orchestrator) ListTables(ctx context.Context) ([]source.Table, error) {
	src, err := o.Source(ctx)
	if err != nil {
		return nil, err
	}
	return src.Describe(ctx)
}

// InitMapping suggests a mapping from the live source and saves it to the
// configured mapping file. An existing file is kept unless overwrite is set.
func (o *Orchestrator) InitMapping(ctx context.Context, overwrite bool) (*mapping.Mapping, error) {
	path := o.config.Export.MappingFile
	if _, err := os.Stat(path); err == nil && !overwrite {
		return nil, fmt.Errorf("mapping file %s already exists (use --force to replace it)", path)
	}

	src, err := o.Source(ctx)
	if err != nil {
		return nil, err
	}
	intro, err := src.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting source: %w", err)
	}

	m := mapping.Suggest(intro)
	if err := m.Save(path); err != nil {
		return nil, err
	}

	for _, t := range mapping.ExpectedTableNames() {
		if st, ok := m.SourceTable(t); ok {
			logging.Info("%-15s -> %s", t, st)
		} else {
			logging.Warn("%-15s -> (unmapped)", t)
		}
	}
	for _, t := range m.UnmappedSourceTables(intro) {
		logging.Debug("Source table %s is not used", t)
	}
	logging.Info("Wrote mapping to %s", path)
	return m, nil
}

// CheckMapping validates the saved mapping against the expected model and
// the live source.
func (o *Orchestrator) CheckMapping(ctx context.Context) ([]mapping.Problem, error) {
	m, err := mapping.Load(o.config.Export.MappingFile)
	if err != nil {
		return nil, err
	}
	src, err := o.Source(ctx)
	if err != nil {
		return m.Validate(), err
	}
	intro, err := src.Introspect(ctx)
	if err != nil {
		return m.Validate(), fmt.Errorf("introspecting source: %w", err)
	}
	return m.Check(intro), nil
}
