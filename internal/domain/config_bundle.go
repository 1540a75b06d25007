package domain

// ConfigBundle is a complete, validated configuration for one or more
// source systems, ready to be written to the catalog.
type ConfigBundle struct {
	Sources []SourceConfig
}

// SourceConfig is one source system with its mappings.
type SourceConfig struct {
	System   SourceSystem
	Mappings []MappingConfig
}

// MappingConfig is one table mapping with everything that hangs off it.
// Dependencies reference parent mappings by code; they may live in any
// source of the bundle or already exist in the catalog.
type MappingConfig struct {
	Mapping      TableMapping
	Columns      []ColumnConfig
	Rules        []DataQualityRule
	Dependencies []DependencyRef
}

// ColumnConfig is a column mapping with its lookup entries.
type ColumnConfig struct {
	Column  ColumnMapping
	Lookups []LookupMapping
}

// DependencyRef names a parent mapping by code.
type DependencyRef struct {
	ParentCode string
	Kind       string
}

// ApplySummary counts what ApplyConfig wrote.
type ApplySummary struct {
	SourceSystems  int
	Mappings       int
	ColumnMappings int
	LookupEntries  int
	QualityRules   int
	Dependencies   int
}
