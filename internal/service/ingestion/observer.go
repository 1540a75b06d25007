package ingestion

import (
	"time"

	"duck-ingest/internal/domain"
)

// Phase is one step of a mapping execution.
type Phase string

// Pipeline phases, in execution order.
const (
	PhaseExtracting   Phase = "EXTRACTING"
	PhaseTransforming Phase = "TRANSFORMING"
	PhaseValidating   Phase = "VALIDATING"
	PhaseLoading      Phase = "LOADING"
)

// Observer receives execution telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	// ObservePhase is called after a phase completes with the rows it produced.
	ObservePhase(mappingCode string, phase Phase, rows int64)
	// ObserveViolation is called once per rule violation.
	ObserveViolation(severity domain.Severity)
	// ObserveExecution is called after an execution is sealed.
	ObserveExecution(mappingCode, status string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePhase(string, Phase, int64)              {}
func (nopObserver) ObserveViolation(domain.Severity)               {}
func (nopObserver) ObserveExecution(string, string, time.Duration) {}
