// Package ingestion drives table mappings through extract, transform,
// validate and load, recording execution lineage in the metadata catalog.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/dependency"
	"duck-ingest/internal/service/transform"
	"duck-ingest/internal/service/validation"
)

// transformErrorRule is the rule code recorded for rows dropped by the
// transformer.
const transformErrorRule = "TRANSFORM_ERROR"

// Config holds the execution settings of an Orchestrator.
type Config struct {
	BatchSize      int
	MaxViolations  int // 0 means 1000, negative disables violation logging
	DryRun         bool
	Parallelism    int
	ValidationMode domain.Action
	StagingSchema  string // empty disables the staging load
	TriggeredBy    string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 5000
	}
	switch {
	case c.MaxViolations == 0:
		c.MaxViolations = 1000
	case c.MaxViolations < 0:
		c.MaxViolations = 0
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.ValidationMode == "" {
		c.ValidationMode = domain.ActionReject
	}
	if c.TriggeredBy == "" {
		c.TriggeredBy = "system"
	}
}

// Option configures optional collaborators of an Orchestrator.
type Option func(*Orchestrator)

// WithObserver reports execution telemetry to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithFunctionRuntime enables FUNCTION column transforms.
func WithFunctionRuntime(rt transform.FunctionRuntime) Option {
	return func(o *Orchestrator) { o.functions = rt }
}

// WithScriptEvaluator enables CUSTOM quality rules.
func WithScriptEvaluator(s validation.ScriptEvaluator) Option {
	return func(o *Orchestrator) { o.scripts = s }
}

// Orchestrator runs table mappings end to end.
type Orchestrator struct {
	catalog   domain.MetadataCatalog
	extractor domain.Extractor
	loader    domain.Loader
	deps      *dependency.Manager
	functions transform.FunctionRuntime
	scripts   validation.ScriptEvaluator
	observer  Observer
	cfg       Config
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(
	catalog domain.MetadataCatalog,
	extractor domain.Extractor,
	loader domain.Loader,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		catalog:   catalog,
		extractor: extractor,
		loader:    loader,
		deps:      dependency.NewManager(catalog, logger),
		observer:  nopObserver{},
		cfg:       cfg,
		logger:    logger.With("component", "ingestion"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Dependencies returns the dependency manager used for ordering.
func (o *Orchestrator) Dependencies() *dependency.Manager { return o.deps }

// ExecuteMapping runs one mapping by id. An unknown id is a configuration
// error and creates no execution row.
func (o *Orchestrator) ExecuteMapping(ctx context.Context, id int64) (*MappingResult, error) {
	mapping, err := o.catalog.GetTableMapping(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get mapping %d: %w", id, err)
	}
	return o.executeMapping(ctx, mapping, domain.ExecutionTypeSingle)
}

// ExecuteMappingByRef runs one mapping referenced by numeric id or code.
func (o *Orchestrator) ExecuteMappingByRef(ctx context.Context, ref string) (*MappingResult, error) {
	id, code := domain.ParseMappingRef(ref)
	if id > 0 {
		return o.ExecuteMapping(ctx, id)
	}
	if code == "" {
		return nil, domain.ErrValidation("mapping reference is required")
	}
	mapping, err := o.catalog.GetTableMappingByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get mapping %q: %w", code, err)
	}
	return o.executeMapping(ctx, mapping, domain.ExecutionTypeSingle)
}

// ExecuteSourceSystem runs every active mapping of a source system in
// dependency order. A failing mapping is recorded and the run continues;
// only configuration errors and dependency cycles found before any mapping
// starts are returned as errors.
func (o *Orchestrator) ExecuteSourceSystem(ctx context.Context, code string) (*RunStats, error) {
	plan, err := o.PlanSourceSystem(ctx, code)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{SourceCode: code, Total: len(plan.Order), Levels: plan.Levels}
	logger := o.logger.With("source", code)
	logger.Info("source system run started",
		"mappings", stats.Total, "levels", len(plan.Levels), "parallelism", o.cfg.Parallelism)
	start := time.Now()

	if o.cfg.Parallelism > 1 {
		err = o.runLevels(ctx, plan.Levels, plan.Mappings, stats)
	} else {
		err = o.runSequential(ctx, plan.Order, plan.Mappings, stats)
	}

	logger.Info("source system run finished",
		"total", stats.Total, "successful", stats.Successful, "failed", stats.Failed,
		"rows_extracted", stats.RowsExtracted, "rows_loaded", stats.RowsLoaded,
		"duration", time.Since(start))
	return stats, err
}

func (o *Orchestrator) runSequential(ctx context.Context, order []int64, byID map[int64]*domain.TableMapping, stats *RunStats) error {
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("source system run interrupted: %w", err)
		}
		stats.record(o.runForOutcome(ctx, byID[id]))
	}
	return nil
}

// runLevels dispatches each level concurrently; every worker owns its
// execution row. Levels run one after another.
func (o *Orchestrator) runLevels(ctx context.Context, levels [][]int64, byID map[int64]*domain.TableMapping, stats *RunStats) error {
	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("source system run interrupted: %w", err)
		}
		outcomes := make([]MappingOutcome, len(level))
		var g errgroup.Group
		g.SetLimit(o.cfg.Parallelism)
		for i, id := range level {
			g.Go(func() error {
				outcomes[i] = o.runForOutcome(ctx, byID[id])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, oc := range outcomes {
			stats.record(oc)
		}
	}
	return nil
}

func (o *Orchestrator) runForOutcome(ctx context.Context, mapping *domain.TableMapping) MappingOutcome {
	oc := MappingOutcome{MappingID: mapping.ID, MappingCode: mapping.Code, Status: domain.ExecutionStatusFailed}
	res, err := o.executeMapping(ctx, mapping, domain.ExecutionTypeSource)
	if res != nil {
		oc.ExecutionID = res.ExecutionID
		oc.Status = res.Status
		oc.Counts = res.Counts
	}
	if err != nil {
		oc.Error = err.Error()
		if oc.Status == domain.ExecutionStatusSuccess {
			oc.Status = domain.ExecutionStatusFailed
		}
	}
	return oc
}

func (o *Orchestrator) executeMapping(ctx context.Context, mapping *domain.TableMapping, execType string) (*MappingResult, error) {
	return o.withExecution(ctx, mapping, execType, o.runPipeline)
}

// runPipeline is the extract, transform, validate, load sequence of one
// execution. Counters are written to p as phases complete so a failed
// execution is sealed with the progress it made.
func (o *Orchestrator) runPipeline(ctx context.Context, p *pendingExecution) error {
	mapping := p.mapping
	logger := o.logger.With("mapping", mapping.Code, "execution_id", p.id)

	columns, err := o.catalog.ListColumnMappings(ctx, mapping.ID)
	if err != nil {
		return fmt.Errorf("load column mappings: %w", err)
	}
	lookups, err := o.catalog.ListLookupMappings(ctx, mapping.ID)
	if err != nil {
		return fmt.Errorf("load lookup mappings: %w", err)
	}
	rules, err := o.catalog.ListQualityRules(ctx, mapping.ID)
	if err != nil {
		return fmt.Errorf("load quality rules: %w", err)
	}
	source, err := o.catalog.GetSourceSystemByID(ctx, mapping.SourceSystemID)
	if err != nil {
		return fmt.Errorf("load source system: %w", err)
	}

	// Extract.
	logger.Debug("phase started", "phase", PhaseExtracting)
	since, err := o.watermark(ctx, mapping)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	var raw []domain.Record
	err = o.extractor.Extract(ctx, domain.ExtractRequest{
		Mapping:   mapping,
		Source:    source,
		BatchSize: o.cfg.BatchSize,
		Since:     since,
	}, func(batch []domain.Record) error {
		raw = append(raw, batch...)
		p.counts.Extracted = int64(len(raw))
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	o.observer.ObservePhase(mapping.Code, PhaseExtracting, p.counts.Extracted)

	// Transform.
	logger.Debug("phase started", "phase", PhaseTransforming)
	tr := transform.New(columns, lookups, transform.WithLogger(logger), transform.WithFunctionRuntime(o.functions))
	transformed, dropped := tr.TransformBatch(raw, mapping.SourceKeyColumns)
	p.counts.Rejected = int64(len(dropped))
	o.observer.ObservePhase(mapping.Code, PhaseTransforming, int64(len(transformed)))
	if err := ctx.Err(); err != nil {
		return err
	}

	// Validate.
	logger.Debug("phase started", "phase", PhaseValidating)
	v := validation.New(rules,
		validation.WithMode(o.cfg.ValidationMode),
		validation.WithLogger(logger),
		validation.WithScriptEvaluator(o.scripts))
	res := v.Validate(transformed, mapping.TargetKeyColumns)
	p.counts.Validated = int64(len(res.Valid))
	p.counts.Rejected += int64(len(res.Rejected))
	if err := o.recordViolations(ctx, p, dropped, res.Violations); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	o.observer.ObservePhase(mapping.Code, PhaseValidating, p.counts.Validated)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Load.
	if o.cfg.DryRun {
		p.counts.Loaded = int64(len(res.Valid))
		logger.Info("dry run, load skipped", "rows", p.counts.Loaded)
		return nil
	}
	logger.Debug("phase started", "phase", PhaseLoading)
	loaded, err := o.load(ctx, mapping, tr.Columns(), res.Valid)
	if err != nil {
		return err
	}
	p.counts.Loaded = loaded
	o.observer.ObservePhase(mapping.Code, PhaseLoading, loaded)
	return nil
}

// watermark returns the start of the last successful execution for
// incremental mappings, or nil for a full extract.
func (o *Orchestrator) watermark(ctx context.Context, mapping *domain.TableMapping) (*time.Time, error) {
	if mapping.LoadStrategy != domain.LoadStrategyIncremental || mapping.IncrementalColumn == "" {
		return nil, nil
	}
	last, err := o.catalog.LastSuccessfulExecution(ctx, mapping.ID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	since := last.StartedAt
	return &since, nil
}

func (o *Orchestrator) load(ctx context.Context, mapping *domain.TableMapping, columns []string, rows []domain.Record) (int64, error) {
	if o.cfg.StagingSchema != "" {
		_, err := o.loader.Load(ctx, rows, domain.LoadTarget{
			Location:      domain.TableLocation{Schema: o.cfg.StagingSchema, Table: mapping.TargetTable},
			Columns:       columns,
			MergeStrategy: domain.MergeInsertOnly,
			Truncate:      true,
		})
		if err != nil {
			return 0, fmt.Errorf("load staging: %w", err)
		}
	}

	n, err := o.loader.Load(ctx, rows, domain.LoadTarget{
		Location:      mapping.TargetLocation(),
		Columns:       columns,
		KeyColumns:    mapping.TargetKeyColumns,
		MergeStrategy: mapping.MergeStrategy,
		Truncate:      mapping.LoadStrategy == domain.LoadStrategyFull && mapping.MergeStrategy == domain.MergeInsertOnly,
	})
	if err != nil {
		return 0, fmt.Errorf("load: %w", err)
	}
	return n, nil
}

// recordViolations persists transform drops and rule violations, at most
// MaxViolations per execution. The remainder is only counted.
func (o *Orchestrator) recordViolations(ctx context.Context, p *pendingExecution, dropped []transform.RowError, violations []domain.ValidationResult) error {
	sourceTable := p.mapping.SourceLocation().QualifiedName()

	logOne := func(v *domain.QualityViolation) error {
		p.violationsTotal++
		o.observer.ObserveViolation(v.Severity)
		if p.violationsLogged >= o.cfg.MaxViolations {
			return nil
		}
		if err := o.catalog.LogViolation(ctx, v); err != nil {
			return fmt.Errorf("log violation: %w", err)
		}
		p.violationsLogged++
		return nil
	}

	for _, d := range dropped {
		if err := logOne(&domain.QualityViolation{
			ExecutionID: p.id,
			RuleCode:    transformErrorRule,
			SourceTable: sourceTable,
			RowID:       d.RowID,
			Message:     d.Err.Error(),
			Severity:    domain.SeverityError,
			Action:      domain.ActionReject,
		}); err != nil {
			return err
		}
	}

	for _, r := range violations {
		var ruleID *int64
		if r.RuleID != 0 {
			id := r.RuleID
			ruleID = &id
		}
		var column, value *string
		if r.Column != "" {
			c := r.Column
			column = &c
		}
		if r.Value != nil {
			s := fmt.Sprint(r.Value)
			value = &s
		}
		if err := logOne(&domain.QualityViolation{
			ExecutionID: p.id,
			RuleID:      ruleID,
			RuleCode:    r.RuleCode,
			SourceTable: sourceTable,
			RowID:       r.RowID,
			Column:      column,
			Value:       value,
			Message:     r.Message,
			Severity:    r.Severity,
			Action:      r.Action,
		}); err != nil {
			return err
		}
	}

	if p.violationsTotal > p.violationsLogged {
		o.logger.Warn("violation log capped",
			"mapping", p.mapping.Code, "execution_id", p.id,
			"total", p.violationsTotal, "logged", p.violationsLogged, "max", o.cfg.MaxViolations)
	}
	return nil
}
