// Package domain defines the core types, ports and errors of the ingestion engine.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a configuration entity or execution was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input or configuration.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate mapping code).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// CycleError reports one concrete dependency cycle. Cycle holds the mapping
// ids in traversal order; Codes holds the matching mapping codes when known.
type CycleError struct {
	Cycle []int64
	Codes []string
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return "dependency cycle detected"
	}
	parts := make([]string, 0, len(e.Cycle)+1)
	for i, id := range e.Cycle {
		parts = append(parts, e.label(i, id))
	}
	parts = append(parts, e.label(0, e.Cycle[0]))
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

func (e *CycleError) label(i int, id int64) string {
	if i < len(e.Codes) && e.Codes[i] != "" {
		return fmt.Sprintf("%s(#%d)", e.Codes[i], id)
	}
	return fmt.Sprintf("#%d", id)
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
