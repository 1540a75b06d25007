package domain

import (
	"context"
	"time"
)

// ExtractRequest describes one extraction of a mapping's source table.
type ExtractRequest struct {
	Mapping   *TableMapping
	Source    *SourceSystem
	BatchSize int
	// Since, when set, restricts extraction to rows whose incremental
	// column is strictly greater than the watermark.
	Since *time.Time
}

// Extractor yields the raw records of a mapping's source in finite batches.
// Implementations call emit once per batch and stop on the first error
// returned by emit.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest, emit func(batch []Record) error) error
}

// LoadTarget describes where and how a loader writes rows.
type LoadTarget struct {
	Location      TableLocation
	Columns       []string // column order; rows may omit columns (written as NULL)
	KeyColumns    []string
	MergeStrategy string
	Truncate      bool // remove existing rows before writing
}

// Loader writes transformed rows into a target, honouring the merge strategy,
// and returns how many rows it loaded.
type Loader interface {
	Load(ctx context.Context, rows []Record, target LoadTarget) (int64, error)
}
