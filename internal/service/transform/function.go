package transform

import "duck-ingest/internal/domain"

// FunctionRuntime evaluates named user functions for FUNCTION columns.
type FunctionRuntime interface {
	// Has reports whether name is defined.
	Has(name string) bool
	// Call invokes name with the source column value and the raw row.
	Call(name string, value any, row domain.Record) (any, error)
}
