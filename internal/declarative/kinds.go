package declarative

// SupportedAPIVersion is the only document version the loader accepts.
const SupportedAPIVersion = "ingest/v1"

// KindSourceSystem declares one source system with its table mappings.
const KindSourceSystem = "SourceSystem"

// Valid load strategies.
var validLoadStrategies = map[string]bool{
	"FULL":        true,
	"INCREMENTAL": true,
}

// Valid merge strategies.
var validMergeStrategies = map[string]bool{
	"UPSERT":      true,
	"INSERT_ONLY": true,
	"UPDATE_ONLY": true,
}

// Valid dependency kinds.
var validDependencyKinds = map[string]bool{
	"DATA":     true,
	"LOOKUP":   true,
	"SCHEDULE": true,
}
