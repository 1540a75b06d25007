package domain

import "context"

// ConfigReader is the read view of the declarative configuration.
type ConfigReader interface {
	GetSourceSystem(ctx context.Context, code string) (*SourceSystem, error)
	GetSourceSystemByID(ctx context.Context, id int64) (*SourceSystem, error)
	ListSourceSystems(ctx context.Context) ([]SourceSystem, error)
	GetTableMapping(ctx context.Context, id int64) (*TableMapping, error)
	GetTableMappingByCode(ctx context.Context, code string) (*TableMapping, error)
	ListTableMappings(ctx context.Context, sourceSystemID int64, activeOnly bool) ([]TableMapping, error)
	ListColumnMappings(ctx context.Context, mappingID int64) ([]ColumnMapping, error)
	ListLookupMappings(ctx context.Context, mappingID int64) ([]LookupMapping, error)
	ListQualityRules(ctx context.Context, mappingID int64) ([]DataQualityRule, error)
	ListDependencies(ctx context.Context, mappingID int64) ([]DependencyEdge, error)
}

// LineageWriter appends and seals execution lineage.
type LineageWriter interface {
	StartExecution(ctx context.Context, req StartExecutionRequest) (string, error)
	EndExecution(ctx context.Context, executionID string, status string, counts ExecutionCounts, errMsg *string) error
	LogViolation(ctx context.Context, v *QualityViolation) error
}

// LineageReader exposes execution history.
type LineageReader interface {
	GetExecution(ctx context.Context, id string) (*ExecutionLog, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]ExecutionLog, error)
	ListViolations(ctx context.Context, executionID string) ([]QualityViolation, error)
	LastSuccessfulExecution(ctx context.Context, mappingID int64) (*ExecutionLog, error)
}

// MetadataCatalog is the full catalog handle passed explicitly to the engine.
type MetadataCatalog interface {
	ConfigReader
	LineageWriter
	LineageReader
}

// ConfigWriter applies an imported configuration bundle.
type ConfigWriter interface {
	ApplyConfig(ctx context.Context, bundle *ConfigBundle) (*ApplySummary, error)
}
