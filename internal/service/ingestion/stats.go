package ingestion

import (
	"time"

	"duck-ingest/internal/domain"
)

// MappingResult is the outcome of one mapping execution.
type MappingResult struct {
	ExecutionID string
	MappingID   int64
	MappingCode string
	Status      string
	Counts      domain.ExecutionCounts
	// ViolationsTotal counts every violation found; ViolationsLogged those
	// persisted under the per-execution cap.
	ViolationsTotal  int
	ViolationsLogged int
	Duration         time.Duration
}

// MappingOutcome is one line of a source-system run report.
type MappingOutcome struct {
	MappingID   int64
	MappingCode string
	ExecutionID string
	Status      string
	Counts      domain.ExecutionCounts
	Error       string
}

// RunStats summarizes a source-system run.
type RunStats struct {
	SourceCode    string
	Total         int
	Successful    int
	Failed        int
	RowsExtracted int64
	RowsLoaded    int64
	Outcomes      []MappingOutcome
	Levels        [][]int64
}

// HasFailures reports whether any mapping of the run did not succeed.
func (s *RunStats) HasFailures() bool {
	return s.Failed > 0
}

func (s *RunStats) record(o MappingOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Status == domain.ExecutionStatusSuccess {
		s.Successful++
	} else {
		s.Failed++
	}
	s.RowsExtracted += o.Counts.Extracted
	s.RowsLoaded += o.Counts.Loaded
}
