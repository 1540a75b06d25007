package domain

// Dependency kinds. Only the ordering matters to the engine; the kind is
// carried for diagnostics.
const (
	DependencyKindData     = "DATA"
	DependencyKindLookup   = "LOOKUP"
	DependencyKindSchedule = "SCHEDULE"
)

// DependencyEdge declares that Child must not run before Parent.
type DependencyEdge struct {
	ParentMappingID int64
	ChildMappingID  int64
	Kind            string
}
