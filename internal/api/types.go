package api

import (
	"time"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/ingestion"
)

// SourceSystem is the API view of a source system. The DSN is never exposed.
type SourceSystem struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Driver           string    `json:"driver"`
	ExtractionMethod string    `json:"extraction_method"`
	ScheduleCron     *string   `json:"schedule_cron,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableMapping is the API view of a table mapping.
type TableMapping struct {
	ID                int64    `json:"id"`
	Code              string   `json:"code"`
	Source            string   `json:"source"`
	Target            string   `json:"target"`
	SourceFilter      string   `json:"source_filter,omitempty"`
	TargetKeyColumns  []string `json:"target_key_columns"`
	LoadStrategy      string   `json:"load_strategy"`
	MergeStrategy     string   `json:"merge_strategy"`
	IncrementalColumn string   `json:"incremental_column,omitempty"`
	Priority          int      `json:"priority"`
	IsActive          bool     `json:"is_active"`
}

// PlanStep is one mapping in a resolved run order.
type PlanStep struct {
	Position    int    `json:"position"`
	Level       int    `json:"level"`
	MappingID   int64  `json:"mapping_id"`
	MappingCode string `json:"mapping_code"`
}

// RunOrder is the resolved dependency order of a source system.
type RunOrder struct {
	Source   string     `json:"source"`
	Steps    []PlanStep `json:"steps"`
	Levels   [][]string `json:"levels"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Execution is the API view of one execution log entry.
type Execution struct {
	ID            string            `json:"id"`
	MappingID     int64             `json:"mapping_id"`
	MappingCode   string            `json:"mapping_code,omitempty"`
	ExecutionType string            `json:"execution_type"`
	ExecutionMode string            `json:"execution_mode"`
	Status        string            `json:"status"`
	TriggeredBy   string            `json:"triggered_by"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	RowsExtracted int64             `json:"rows_extracted"`
	RowsValidated int64             `json:"rows_validated"`
	RowsRejected  int64             `json:"rows_rejected"`
	RowsLoaded    int64             `json:"rows_loaded"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
}

// Violation is the API view of a logged quality violation.
type Violation struct {
	ID          int64     `json:"id"`
	RuleCode    string    `json:"rule_code"`
	SourceTable string    `json:"source_table"`
	RowID       string    `json:"row_id"`
	Column      *string   `json:"column,omitempty"`
	Value       *string   `json:"value,omitempty"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}

// MappingRun is the response of a single-mapping run.
type MappingRun struct {
	ExecutionID      string  `json:"execution_id"`
	MappingID        int64   `json:"mapping_id"`
	MappingCode      string  `json:"mapping_code"`
	Status           string  `json:"status"`
	RowsExtracted    int64   `json:"rows_extracted"`
	RowsValidated    int64   `json:"rows_validated"`
	RowsRejected     int64   `json:"rows_rejected"`
	RowsLoaded       int64   `json:"rows_loaded"`
	ViolationsTotal  int     `json:"violations_total"`
	ViolationsLogged int     `json:"violations_logged"`
	DurationMS       int64   `json:"duration_ms"`
	Error            *string `json:"error,omitempty"`
}

// SourceRun is the response of a source-system run.
type SourceRun struct {
	Source        string           `json:"source"`
	Total         int              `json:"total"`
	Successful    int              `json:"successful"`
	Failed        int              `json:"failed"`
	RowsExtracted int64            `json:"rows_extracted"`
	RowsLoaded    int64            `json:"rows_loaded"`
	Mappings      []MappingOutcome `json:"mappings"`
	Error         *string          `json:"error,omitempty"`
}

// MappingOutcome is one line of a SourceRun.
type MappingOutcome struct {
	MappingID   int64  `json:"mapping_id"`
	MappingCode string `json:"mapping_code"`
	ExecutionID string `json:"execution_id,omitempty"`
	Status      string `json:"status"`
	RowsLoaded  int64  `json:"rows_loaded"`
	Error       string `json:"error,omitempty"`
}

// === Mapping helpers ===
// The converters are shared with the CLI so both surfaces emit the same JSON.

func SourceToAPI(s domain.SourceSystem) SourceSystem {
	return SourceSystem{
		ID:               s.ID,
		Code:             s.Code,
		Name:             s.Name,
		Driver:           s.Driver,
		ExtractionMethod: s.ExtractionMethod,
		ScheduleCron:     s.ScheduleCron,
		IsActive:         s.IsActive,
		CreatedAt:        s.CreatedAt,
	}
}

func MappingToAPI(m domain.TableMapping) TableMapping {
	keys := m.TargetKeyColumns
	if keys == nil {
		keys = []string{}
	}
	return TableMapping{
		ID:                m.ID,
		Code:              m.Code,
		Source:            m.SourceLocation().QualifiedName(),
		Target:            m.TargetLocation().QualifiedName(),
		SourceFilter:      m.SourceFilter,
		TargetKeyColumns:  keys,
		LoadStrategy:      m.LoadStrategy,
		MergeStrategy:     m.MergeStrategy,
		IncrementalColumn: m.IncrementalColumn,
		Priority:          m.Priority,
		IsActive:          m.IsActive,
	}
}

func PlanToAPI(p *ingestion.Plan) RunOrder {
	out := RunOrder{Source: p.Source.Code, Steps: make([]PlanStep, 0, len(p.Order)), Levels: make([][]string, 0, len(p.Levels))}
	levelOf := make(map[int64]int, len(p.Order))
	for i, level := range p.Levels {
		codes := make([]string, 0, len(level))
		for _, id := range level {
			levelOf[id] = i
			codes = append(codes, p.Code(id))
		}
		out.Levels = append(out.Levels, codes)
	}
	for i, id := range p.Order {
		out.Steps = append(out.Steps, PlanStep{Position: i + 1, Level: levelOf[id], MappingID: id, MappingCode: p.Code(id)})
	}
	for _, w := range p.Warnings {
		out.Warnings = append(out.Warnings, w.Message)
	}
	return out
}

func ExecutionToAPI(e domain.ExecutionLog) Execution {
	return Execution{
		ID:            e.ID,
		MappingID:     e.MappingID,
		MappingCode:   e.MappingCode,
		ExecutionType: e.ExecutionType,
		ExecutionMode: e.ExecutionMode,
		Status:        e.Status,
		TriggeredBy:   e.TriggeredBy,
		Parameters:    e.Parameters,
		RowsExtracted: e.Counts.Extracted,
		RowsValidated: e.Counts.Validated,
		RowsRejected:  e.Counts.Rejected,
		RowsLoaded:    e.Counts.Loaded,
		StartedAt:     e.StartedAt,
		FinishedAt:    e.FinishedAt,
		ErrorMessage:  e.ErrorMessage,
	}
}

func ViolationToAPI(v domain.QualityViolation) Violation {
	return Violation{
		ID:          v.ID,
		RuleCode:    v.RuleCode,
		SourceTable: v.SourceTable,
		RowID:       v.RowID,
		Column:      v.Column,
		Value:       v.Value,
		Message:     v.Message,
		Severity:    string(v.Severity),
		Action:      string(v.Action),
		CreatedAt:   v.CreatedAt,
	}
}

func MappingRunToAPI(res *ingestion.MappingResult, err error) MappingRun {
	out := MappingRun{
		ExecutionID:      res.ExecutionID,
		MappingID:        res.MappingID,
		MappingCode:      res.MappingCode,
		Status:           res.Status,
		RowsExtracted:    res.Counts.Extracted,
		RowsValidated:    res.Counts.Validated,
		RowsRejected:     res.Counts.Rejected,
		RowsLoaded:       res.Counts.Loaded,
		ViolationsTotal:  res.ViolationsTotal,
		ViolationsLogged: res.ViolationsLogged,
		DurationMS:       res.Duration.Milliseconds(),
	}
	if err != nil {
		msg := err.Error()
		out.Error = &msg
	}
	return out
}

func SourceRunToAPI(stats *ingestion.RunStats, err error) SourceRun {
	out := SourceRun{
		Source:        stats.SourceCode,
		Total:         stats.Total,
		Successful:    stats.Successful,
		Failed:        stats.Failed,
		RowsExtracted: stats.RowsExtracted,
		RowsLoaded:    stats.RowsLoaded,
		Mappings:      make([]MappingOutcome, 0, len(stats.Outcomes)),
	}
	for _, o := range stats.Outcomes {
		out.Mappings = append(out.Mappings, MappingOutcome{
			MappingID:   o.MappingID,
			MappingCode: o.MappingCode,
			ExecutionID: o.ExecutionID,
			Status:      o.Status,
			RowsLoaded:  o.Counts.Loaded,
			Error:       o.Error,
		})
	}
	if err != nil {
		msg := err.Error()
		out.Error = &msg
	}
	return out
}
