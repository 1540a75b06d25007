package domain

import "time"

// Execution status constants.
const (
	ExecutionStatusPending   = "PENDING"
	ExecutionStatusRunning   = "RUNNING"
	ExecutionStatusSuccess   = "SUCCESS"
	ExecutionStatusFailed    = "FAILED"
	ExecutionStatusCancelled = "CANCELLED"

	ExecutionTypeSingle  = "MAPPING"
	ExecutionTypeSource  = "SOURCE_SYSTEM"
	ExecutionModeLive    = "LIVE"
	ExecutionModeDryRun  = "DRY_RUN"
	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// IsTerminalStatus reports whether status seals an execution.
func IsTerminalStatus(status string) bool {
	switch status {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// ExecutionCounts are the row counters accumulated by one execution.
type ExecutionCounts struct {
	Extracted int64
	Validated int64
	Rejected  int64
	Loaded    int64
}

// ExecutionLog is one attempted run of one TableMapping.
type ExecutionLog struct {
	ID             string
	SourceSystemID int64
	MappingID      int64
	MappingCode    string
	ExecutionType  string
	ExecutionMode  string
	Status         string
	TriggeredBy    string
	Parameters     map[string]string
	Counts         ExecutionCounts
	StartedAt      time.Time
	FinishedAt     *time.Time
	ErrorMessage   *string
}

// StartExecutionRequest holds the parameters of Catalog.StartExecution.
type StartExecutionRequest struct {
	MappingID     int64
	ExecutionType string
	ExecutionMode string
	TriggeredBy   string
	Parameters    map[string]string
}

// ExecutionFilter narrows execution history listings.
type ExecutionFilter struct {
	MappingID *int64
	Status    *string
	Limit     int
}

// EffectiveLimit clamps the filter limit to [1, 1000], defaulting to 50.
func (f ExecutionFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return 50
	case f.Limit > 1000:
		return 1000
	default:
		return f.Limit
	}
}
