package declarative

// Document is the generic envelope parsed first to determine Kind.
type Document struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// ObjectMeta holds common metadata for named resources.
type ObjectMeta struct {
	Name string `yaml:"name"`
}

// SourceSystemDoc declares one source system and the mappings read from it.
type SourceSystemDoc struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ObjectMeta       `yaml:"metadata"`
	Spec       SourceSystemSpec `yaml:"spec"`

	// Path is the file the document was loaded from.
	Path string `yaml:"-"`
}

// SourceSystemSpec describes the connection and mappings of a source system.
type SourceSystemSpec struct {
	DisplayName      string        `yaml:"display_name,omitempty"`
	Driver           string        `yaml:"driver"`
	DSN              string        `yaml:"dsn,omitempty"`
	DSNFromEnv       string        `yaml:"dsn_from_env,omitempty"` // environment variable holding the DSN
	ExtractionMethod string        `yaml:"extraction_method,omitempty"`
	Schedule         string        `yaml:"schedule,omitempty"` // standard 5-field cron expression
	Active           *bool         `yaml:"active,omitempty"`   // default true
	Mappings         []MappingSpec `yaml:"mappings"`
}

// TableRef addresses a source or target table.
type TableRef struct {
	Schema     string   `yaml:"schema,omitempty"`
	Table      string   `yaml:"table"`
	Filter     string   `yaml:"filter,omitempty"` // source only
	KeyColumns []string `yaml:"key_columns,omitempty"`
}

// MappingSpec describes one source-table-to-target-table mapping.
type MappingSpec struct {
	Code              string       `yaml:"code"`
	Source            TableRef     `yaml:"source"`
	Target            TableRef     `yaml:"target"`
	LoadStrategy      string       `yaml:"load_strategy,omitempty"`  // default FULL
	MergeStrategy     string       `yaml:"merge_strategy,omitempty"` // default UPSERT
	IncrementalColumn string       `yaml:"incremental_column,omitempty"`
	Priority          int          `yaml:"priority,omitempty"`
	Active            *bool        `yaml:"active,omitempty"`
	DependsOn         []string     `yaml:"depends_on,omitempty"`
	DependencyKind    string       `yaml:"dependency_kind,omitempty"` // default DATA
	Columns           []ColumnSpec `yaml:"columns,omitempty"`
	QualityRules      []RuleSpec   `yaml:"quality_rules,omitempty"`
}

// ColumnSpec describes how one target column is produced.
type ColumnSpec struct {
	Source     string       `yaml:"source,omitempty"` // default: target
	Target     string       `yaml:"target"`
	Transform  string       `yaml:"transform,omitempty"` // DIRECT, EXPRESSION, LOOKUP, FUNCTION
	Definition string       `yaml:"definition,omitempty"`
	Key        bool         `yaml:"key,omitempty"`
	Nullable   *bool        `yaml:"nullable,omitempty"` // default true
	Default    *string      `yaml:"default,omitempty"`
	Type       string       `yaml:"type,omitempty"`
	Lookups    []LookupSpec `yaml:"lookups,omitempty"`
	Fallback   *string      `yaml:"fallback,omitempty"` // lookup fallback for unmatched values
}

// LookupSpec maps one source value to one target value.
type LookupSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// RuleSpec describes one data-quality rule.
type RuleSpec struct {
	Code       string  `yaml:"code"`
	Kind       string  `yaml:"kind"`
	Column     string  `yaml:"column,omitempty"`
	Definition string  `yaml:"definition,omitempty"`
	Min        *string `yaml:"min,omitempty"`
	Max        *string `yaml:"max,omitempty"`
	MinLength  *int    `yaml:"min_length,omitempty"`
	MaxLength  *int    `yaml:"max_length,omitempty"`
	Severity   string  `yaml:"severity,omitempty"` // default ERROR
	Action     string  `yaml:"action,omitempty"`   // default REJECT
	Active     *bool   `yaml:"active,omitempty"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
