package export

import (
	"errors"
	"fmt"
)

// Fatal export conditions. Each one ends a single table's export; callers
// classify with errors.Is.
var (
	ErrNoColumnsMapped     = errors.New("no columns mapped")
	ErrColumnCountMismatch = errors.New("source and target column counts differ")
	ErrNoValidColumns      = errors.New("no valid columns to export")
	ErrSourceRead          = errors.New("reading source failed")
	ErrExportIO            = errors.New("writing export file failed")
)

// WarningKind classifies a recoverable problem.
type WarningKind string

const (
	UnknownSourceColumn WarningKind = "UnknownSourceColumn"
	TransformationError WarningKind = "TransformationError"
	EmptyTable          WarningKind = "EmptyTable"
)

// Warning is a recoverable problem reported alongside a successful Record.
type Warning struct {
	Kind           WarningKind `json:"kind"`
	Table          string      `json:"table"`
	Column         string      `json:"column,omitempty"`
	Transformation string      `json:"transformation,omitempty"`
	Message        string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
