// Package testutil provides shared fakes of domain interfaces for use in
// tests across the codebase, in the spirit of net/http/httptest.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"duck-ingest/internal/domain"
)

// === Extractor Mock ===

// MockExtractor implements domain.Extractor for testing.
type MockExtractor struct {
	ExtractFn func(ctx context.Context, req domain.ExtractRequest, emit func([]domain.Record) error) error
}

// Extract implements the interface method for testing.
func (m *MockExtractor) Extract(ctx context.Context, req domain.ExtractRequest, emit func([]domain.Record) error) error {
	if m.ExtractFn != nil {
		return m.ExtractFn(ctx, req, emit)
	}
	panic("unexpected call to MockExtractor.Extract")
}

// StaticExtractor emits fixed batches per mapping code.
type StaticExtractor struct {
	mu      sync.Mutex
	Batches map[string][][]domain.Record
	Errs    map[string]error
	Calls   []domain.ExtractRequest
}

// Extract implements domain.Extractor.
func (s *StaticExtractor) Extract(ctx context.Context, req domain.ExtractRequest, emit func([]domain.Record) error) error {
	s.mu.Lock()
	s.Calls = append(s.Calls, req)
	batches := s.Batches[req.Mapping.Code]
	err := s.Errs[req.Mapping.Code]
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(b); err != nil {
			return err
		}
	}
	return nil
}

// === Loader Mock ===

// MockLoader implements domain.Loader for testing and records every call.
type MockLoader struct {
	LoadFn func(ctx context.Context, rows []domain.Record, target domain.LoadTarget) (int64, error)

	mu    sync.Mutex
	Calls []LoadCall
}

// LoadCall is one recorded Loader.Load invocation.
type LoadCall struct {
	Rows   []domain.Record
	Target domain.LoadTarget
}

// Load implements the interface method for testing. Without LoadFn it
// reports every row as loaded.
func (m *MockLoader) Load(ctx context.Context, rows []domain.Record, target domain.LoadTarget) (int64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, LoadCall{Rows: rows, Target: target})
	m.mu.Unlock()
	if m.LoadFn != nil {
		return m.LoadFn(ctx, rows, target)
	}
	return int64(len(rows)), nil
}

// CallCount returns the number of recorded Load calls.
func (m *MockLoader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// === In-memory Metadata Catalog ===

// MemCatalog is an in-memory domain.MetadataCatalog. The exported Err fields
// inject failures into the matching methods.
type MemCatalog struct {
	mu sync.Mutex

	sources    []domain.SourceSystem
	mappings   []domain.TableMapping
	columns    map[int64][]domain.ColumnMapping
	lookups    map[int64][]domain.LookupMapping
	rules      map[int64][]domain.DataQualityRule
	edges      []domain.DependencyEdge
	executions map[string]*domain.ExecutionLog
	execOrder  []string
	violations []domain.QualityViolation
	nextID     int64

	StartExecutionErr   error
	EndExecutionErr     error
	ListDependenciesErr error
}

var _ domain.MetadataCatalog = (*MemCatalog)(nil)

// NewMemCatalog creates an empty in-memory catalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{
		columns:    make(map[int64][]domain.ColumnMapping),
		lookups:    make(map[int64][]domain.LookupMapping),
		rules:      make(map[int64][]domain.DataQualityRule),
		executions: make(map[string]*domain.ExecutionLog),
	}
}

func (c *MemCatalog) id() int64 {
	c.nextID++
	return c.nextID
}

// AddSource stores a source system and returns it with its assigned id.
func (c *MemCatalog) AddSource(s domain.SourceSystem) domain.SourceSystem {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.ID = c.id()
	c.sources = append(c.sources, s)
	return s
}

// AddMapping stores a table mapping and returns it with its assigned id.
func (c *MemCatalog) AddMapping(m domain.TableMapping) domain.TableMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.ID = c.id()
	c.mappings = append(c.mappings, m)
	return m
}

// SetColumns replaces the column mappings of a mapping and assigns ids.
func (c *MemCatalog) SetColumns(mappingID int64, cols ...domain.ColumnMapping) []domain.ColumnMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range cols {
		cols[i].ID = c.id()
		cols[i].TableMappingID = mappingID
		if cols[i].Ordinal == 0 {
			cols[i].Ordinal = i + 1
		}
	}
	c.columns[mappingID] = cols
	return cols
}

// AddLookups attaches lookup entries to a column of a mapping.
func (c *MemCatalog) AddLookups(mappingID, columnID int64, entries ...domain.LookupMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range entries {
		l.ID = c.id()
		l.ColumnMappingID = columnID
		c.lookups[mappingID] = append(c.lookups[mappingID], l)
	}
}

// AddRules attaches quality rules to a mapping.
func (c *MemCatalog) AddRules(mappingID int64, rules ...domain.DataQualityRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rules {
		r.ID = c.id()
		r.TableMappingID = mappingID
		c.rules[mappingID] = append(c.rules[mappingID], r)
	}
}

// AddDependency declares that child depends on parent.
func (c *MemCatalog) AddDependency(parentID, childID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges = append(c.edges, domain.DependencyEdge{
		ParentMappingID: parentID, ChildMappingID: childID, Kind: domain.DependencyKindData,
	})
}

// GetSourceSystem implements domain.ConfigReader.
func (c *MemCatalog) GetSourceSystem(_ context.Context, code string) (*domain.SourceSystem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sources {
		if s.Code == code {
			out := s
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound("source system %q not found", code)
}

// GetSourceSystemByID implements domain.ConfigReader.
func (c *MemCatalog) GetSourceSystemByID(_ context.Context, id int64) (*domain.SourceSystem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sources {
		if s.ID == id {
			out := s
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound("source system %d not found", id)
}

// ListSourceSystems implements domain.ConfigReader.
func (c *MemCatalog) ListSourceSystems(_ context.Context) ([]domain.SourceSystem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SourceSystem(nil), c.sources...), nil
}

// GetTableMapping implements domain.ConfigReader.
func (c *MemCatalog) GetTableMapping(_ context.Context, id int64) (*domain.TableMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.mappings {
		if m.ID == id {
			out := m
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound("table mapping %d not found", id)
}

// GetTableMappingByCode implements domain.ConfigReader.
func (c *MemCatalog) GetTableMappingByCode(_ context.Context, code string) (*domain.TableMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.mappings {
		if m.Code == code {
			out := m
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound("table mapping %q not found", code)
}

// ListTableMappings implements domain.ConfigReader.
func (c *MemCatalog) ListTableMappings(_ context.Context, sourceSystemID int64, activeOnly bool) ([]domain.TableMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.TableMapping
	for _, m := range c.mappings {
		if m.SourceSystemID != sourceSystemID || (activeOnly && !m.IsActive) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListColumnMappings implements domain.ConfigReader.
func (c *MemCatalog) ListColumnMappings(_ context.Context, mappingID int64) ([]domain.ColumnMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ColumnMapping(nil), c.columns[mappingID]...), nil
}

// ListLookupMappings implements domain.ConfigReader.
func (c *MemCatalog) ListLookupMappings(_ context.Context, mappingID int64) ([]domain.LookupMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LookupMapping(nil), c.lookups[mappingID]...), nil
}

// ListQualityRules implements domain.ConfigReader.
func (c *MemCatalog) ListQualityRules(_ context.Context, mappingID int64) ([]domain.DataQualityRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.DataQualityRule(nil), c.rules[mappingID]...), nil
}

// ListDependencies implements domain.ConfigReader.
func (c *MemCatalog) ListDependencies(_ context.Context, mappingID int64) ([]domain.DependencyEdge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ListDependenciesErr != nil {
		return nil, c.ListDependenciesErr
	}
	var out []domain.DependencyEdge
	for _, e := range c.edges {
		if e.ChildMappingID == mappingID {
			out = append(out, e)
		}
	}
	return out, nil
}

// StartExecution implements domain.LineageWriter.
func (c *MemCatalog) StartExecution(_ context.Context, req domain.StartExecutionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartExecutionErr != nil {
		return "", c.StartExecutionErr
	}
	var mapping *domain.TableMapping
	for i := range c.mappings {
		if c.mappings[i].ID == req.MappingID {
			mapping = &c.mappings[i]
		}
	}
	if mapping == nil {
		return "", domain.ErrNotFound("table mapping %d not found", req.MappingID)
	}
	id := domain.NewID()
	c.executions[id] = &domain.ExecutionLog{
		ID:             id,
		SourceSystemID: mapping.SourceSystemID,
		MappingID:      mapping.ID,
		MappingCode:    mapping.Code,
		ExecutionType:  req.ExecutionType,
		ExecutionMode:  req.ExecutionMode,
		Status:         domain.ExecutionStatusRunning,
		TriggeredBy:    req.TriggeredBy,
		Parameters:     req.Parameters,
		StartedAt:      time.Now().UTC(),
	}
	c.execOrder = append(c.execOrder, id)
	return id, nil
}

// EndExecution implements domain.LineageWriter.
func (c *MemCatalog) EndExecution(_ context.Context, executionID string, status string, counts domain.ExecutionCounts, errMsg *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EndExecutionErr != nil {
		return c.EndExecutionErr
	}
	e, ok := c.executions[executionID]
	if !ok {
		return domain.ErrNotFound("execution %q not found", executionID)
	}
	now := time.Now().UTC()
	e.Status = status
	e.Counts = counts
	e.ErrorMessage = errMsg
	e.FinishedAt = &now
	return nil
}

// LogViolation implements domain.LineageWriter.
func (c *MemCatalog) LogViolation(_ context.Context, v *domain.QualityViolation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.executions[v.ExecutionID]; !ok {
		return domain.ErrValidation("execution %q does not exist", v.ExecutionID)
	}
	v.ID = c.id()
	v.CreatedAt = time.Now().UTC()
	c.violations = append(c.violations, *v)
	return nil
}

// GetExecution implements domain.LineageReader.
func (c *MemCatalog) GetExecution(_ context.Context, id string) (*domain.ExecutionLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.executions[id]
	if !ok {
		return nil, domain.ErrNotFound("execution %q not found", id)
	}
	out := *e
	return &out, nil
}

// ListExecutions implements domain.LineageReader, newest first.
func (c *MemCatalog) ListExecutions(_ context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ExecutionLog
	for i := len(c.execOrder) - 1; i >= 0 && len(out) < filter.EffectiveLimit(); i-- {
		e := c.executions[c.execOrder[i]]
		if filter.MappingID != nil && e.MappingID != *filter.MappingID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// ListViolations implements domain.LineageReader.
func (c *MemCatalog) ListViolations(_ context.Context, executionID string) ([]domain.QualityViolation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.QualityViolation
	for _, v := range c.violations {
		if v.ExecutionID == executionID {
			out = append(out, v)
		}
	}
	return out, nil
}

// LastSuccessfulExecution implements domain.LineageReader.
func (c *MemCatalog) LastSuccessfulExecution(_ context.Context, mappingID int64) (*domain.ExecutionLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.execOrder) - 1; i >= 0; i-- {
		e := c.executions[c.execOrder[i]]
		if e.MappingID == mappingID && e.Status == domain.ExecutionStatusSuccess &&
			e.ExecutionMode == domain.ExecutionModeLive {
			out := *e
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound("no successful execution for mapping %d", mappingID)
}

// Executions returns every execution in start order.
func (c *MemCatalog) Executions() []domain.ExecutionLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ExecutionLog, 0, len(c.execOrder))
	for _, id := range c.execOrder {
		out = append(out, *c.executions[id])
	}
	return out
}

// Violations returns every logged violation.
func (c *MemCatalog) Violations() []domain.QualityViolation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.QualityViolation(nil), c.violations...)
}
