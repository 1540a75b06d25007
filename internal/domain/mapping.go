package domain

import (
	"strings"
	"time"
)

// Load strategies.
const (
	LoadStrategyFull        = "FULL"
	LoadStrategyIncremental = "INCREMENTAL"
)

// Merge strategies understood by loaders.
const (
	MergeUpsert     = "UPSERT"
	MergeInsertOnly = "INSERT_ONLY"
	MergeUpdateOnly = "UPDATE_ONLY"
)

// TableLocation addresses a table in a source or target system.
type TableLocation struct {
	Schema string
	Table  string
	Filter string // optional predicate, sources only
}

// QualifiedName returns "schema.table", or just the table when no schema is set.
func (l TableLocation) QualifiedName() string {
	if l.Schema == "" {
		return l.Table
	}
	return l.Schema + "." + l.Table
}

// TableMapping is one declared source-table-to-target-table ingestion job.
type TableMapping struct {
	ID                int64
	Code              string
	SourceSystemID    int64
	SourceSchema      string
	SourceTable       string
	SourceFilter      string
	TargetSchema      string
	TargetTable       string
	SourceKeyColumns  []string
	TargetKeyColumns  []string
	LoadStrategy      string
	MergeStrategy     string
	IncrementalColumn string
	Priority          int
	IsActive          bool
	CreatedAt         time.Time
}

// SourceLocation returns where the mapping reads from.
func (m *TableMapping) SourceLocation() TableLocation {
	return TableLocation{Schema: m.SourceSchema, Table: m.SourceTable, Filter: m.SourceFilter}
}

// TargetLocation returns where the mapping writes to.
func (m *TableMapping) TargetLocation() TableLocation {
	return TableLocation{Schema: m.TargetSchema, Table: m.TargetTable}
}

// TransformKind is the closed set of column transformation variants.
type TransformKind int

const (
	TransformDirect TransformKind = iota
	TransformExpression
	TransformLookup
	TransformFunction
)

var transformKindNames = [...]string{"DIRECT", "EXPRESSION", "LOOKUP", "FUNCTION"}

func (k TransformKind) String() string {
	if k < 0 || int(k) >= len(transformKindNames) {
		return "UNKNOWN"
	}
	return transformKindNames[k]
}

// ParseTransformKind maps a catalog string onto a TransformKind.
// An empty string means DIRECT.
func ParseTransformKind(s string) (TransformKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DIRECT":
		return TransformDirect, nil
	case "EXPRESSION":
		return TransformExpression, nil
	case "LOOKUP":
		return TransformLookup, nil
	case "FUNCTION":
		return TransformFunction, nil
	default:
		return TransformDirect, ErrValidation("unknown transformation kind %q", s)
	}
}

// ColumnMapping declares how one target column is produced.
type ColumnMapping struct {
	ID             int64
	TableMappingID int64
	Ordinal        int
	SourceColumn   string
	TargetColumn   string
	Kind           TransformKind
	Definition     string // expression text or function name
	IsKey          bool
	IsNullable     bool
	DefaultValue   *string
	TargetType     string
}

// LookupMapping substitutes one source value with one target value.
type LookupMapping struct {
	ID              int64
	ColumnMappingID int64
	SourceValue     string
	TargetValue     string
	FallbackValue   *string
}

// ValidLoadStrategy reports whether s is a known load strategy.
func ValidLoadStrategy(s string) bool {
	return s == LoadStrategyFull || s == LoadStrategyIncremental
}

// ValidMergeStrategy reports whether s is a known merge strategy.
func ValidMergeStrategy(s string) bool {
	switch s {
	case MergeUpsert, MergeInsertOnly, MergeUpdateOnly:
		return true
	}
	return false
}
