package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/testutil"
)

type fixture struct {
	catalog   *testutil.MemCatalog
	extractor *testutil.StaticExtractor
	loader    *testutil.MockLoader
	source    domain.SourceSystem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := testutil.NewMemCatalog()
	return &fixture{
		catalog:   cat,
		extractor: &testutil.StaticExtractor{Batches: map[string][][]domain.Record{}, Errs: map[string]error{}},
		loader:    &testutil.MockLoader{},
		source:    cat.AddSource(domain.SourceSystem{Code: "CRM", Driver: "sqlite3", IsActive: true}),
	}
}

func (f *fixture) addMapping(code string, priority int, rows ...domain.Record) domain.TableMapping {
	m := f.catalog.AddMapping(domain.TableMapping{
		Code: code, SourceSystemID: f.source.ID, SourceTable: code, TargetTable: "t_" + code,
		TargetKeyColumns: []string{"id"}, LoadStrategy: domain.LoadStrategyFull,
		MergeStrategy: domain.MergeUpsert, Priority: priority, IsActive: true,
	})
	f.catalog.SetColumns(m.ID,
		domain.ColumnMapping{SourceColumn: "id", TargetColumn: "id", Kind: domain.TransformDirect, TargetType: "bigint", IsKey: true},
		domain.ColumnMapping{SourceColumn: "name", TargetColumn: "name", Kind: domain.TransformExpression, Definition: "UPPER(name)"},
	)
	f.extractor.Batches[code] = [][]domain.Record{rows}
	return m
}

func (f *fixture) orchestrator(cfg Config, opts ...Option) *Orchestrator {
	return New(f.catalog, f.extractor, f.loader, cfg, slog.New(slog.DiscardHandler), opts...)
}

func TestExecuteMapping_Success(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1", "name": "ada"}, domain.Record{"id": "2", "name": "bob"})

	res, err := f.orchestrator(Config{StagingSchema: "staging"}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuccess, res.Status)
	assert.Equal(t, domain.ExecutionCounts{Extracted: 2, Validated: 2, Rejected: 0, Loaded: 2}, res.Counts)

	execs := f.catalog.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, domain.ExecutionStatusSuccess, execs[0].Status)
	assert.Equal(t, int64(2), execs[0].Counts.Loaded)
	assert.Equal(t, domain.ExecutionTypeSingle, execs[0].ExecutionType)
	assert.Equal(t, "system", execs[0].TriggeredBy)
	require.NotNil(t, execs[0].FinishedAt)

	require.Equal(t, 2, f.loader.CallCount())
	staging, target := f.loader.Calls[0], f.loader.Calls[1]
	assert.Equal(t, "staging.t_CUSTOMERS", staging.Target.Location.QualifiedName())
	assert.True(t, staging.Target.Truncate)
	assert.Equal(t, domain.MergeInsertOnly, staging.Target.MergeStrategy)
	assert.Equal(t, "t_CUSTOMERS", target.Target.Location.QualifiedName())
	assert.Equal(t, domain.MergeUpsert, target.Target.MergeStrategy)
	assert.Equal(t, []string{"id", "name"}, target.Target.Columns)
	assert.Equal(t, domain.Record{"id": int64(1), "name": "ADA"}, target.Rows[0])
}

func TestExecuteMapping_LoadFailureSealsFailed(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1", "name": "ada"})
	f.loader.LoadFn = func(context.Context, []domain.Record, domain.LoadTarget) (int64, error) {
		return 0, errors.New("target unavailable")
	}

	res, err := f.orchestrator(Config{}).ExecuteMapping(context.Background(), m.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load: target unavailable")
	require.NotNil(t, res)
	assert.Equal(t, domain.ExecutionStatusFailed, res.Status)

	execs := f.catalog.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, domain.ExecutionStatusFailed, execs[0].Status)
	assert.Equal(t, int64(0), execs[0].Counts.Loaded)
	assert.Equal(t, int64(1), execs[0].Counts.Extracted)
	require.NotNil(t, execs[0].ErrorMessage)
	assert.Contains(t, *execs[0].ErrorMessage, "target unavailable")
}

func TestExecuteMapping_UnknownMappingCreatesNoExecution(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator(Config{}).ExecuteMapping(context.Background(), 999)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, f.catalog.Executions())
}

func TestExecuteMappingByRef(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1"})
	o := f.orchestrator(Config{})

	byCode, err := o.ExecuteMappingByRef(context.Background(), "CUSTOMERS")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byCode.MappingID)

	byID, err := o.ExecuteMappingByRef(context.Background(), strconv.FormatInt(m.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, m.ID, byID.MappingID)
	assert.NotEqual(t, byCode.ExecutionID, byID.ExecutionID)

	_, err = o.ExecuteMappingByRef(context.Background(), "")
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestExecuteMapping_RejectsAndCapsViolations(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1,
		domain.Record{"id": "1", "name": "ada"},
		domain.Record{"id": "oops", "name": "bad id"},
		domain.Record{"id": "3", "name": nil},
		domain.Record{"id": "4", "name": nil},
	)
	f.catalog.AddRules(m.ID, domain.DataQualityRule{
		Code: "NAME_NN", Kind: domain.RuleNotNull, Column: "name",
		Severity: domain.SeverityError, Action: domain.ActionReject, IsActive: true,
	})

	res, err := f.orchestrator(Config{MaxViolations: 2}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCounts{Extracted: 4, Validated: 1, Rejected: 3, Loaded: 1}, res.Counts)
	assert.Equal(t, 3, res.ViolationsTotal)
	assert.Equal(t, 2, res.ViolationsLogged)

	violations := f.catalog.Violations()
	require.Len(t, violations, 2)
	assert.Equal(t, transformErrorRule, violations[0].RuleCode)
	assert.Nil(t, violations[0].RuleID)
	assert.Equal(t, "NAME_NN", violations[1].RuleCode)
	require.NotNil(t, violations[1].RuleID)
	assert.Equal(t, "id=3", violations[1].RowID)
}

func TestExecuteMapping_DryRunSkipsLoad(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1"}, domain.Record{"id": "2"})

	res, err := f.orchestrator(Config{DryRun: true}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Counts.Loaded)
	assert.Zero(t, f.loader.CallCount())
	assert.Equal(t, domain.ExecutionModeDryRun, f.catalog.Executions()[0].ExecutionMode)
}

func TestExecuteMapping_PanicIsSealed(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1"})
	f.loader.LoadFn = func(context.Context, []domain.Record, domain.LoadTarget) (int64, error) {
		panic("driver bug")
	}

	res, err := f.orchestrator(Config{}).ExecuteMapping(context.Background(), m.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, domain.ExecutionStatusFailed, res.Status)
	assert.Equal(t, domain.ExecutionStatusFailed, f.catalog.Executions()[0].Status)
}

func TestExecuteMapping_CancelledContext(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1"})
	ctx, cancel := context.WithCancel(context.Background())
	f.loader.LoadFn = func(context.Context, []domain.Record, domain.LoadTarget) (int64, error) {
		cancel()
		return 0, context.Canceled
	}

	res, err := f.orchestrator(Config{}).ExecuteMapping(ctx, m.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.ExecutionStatusCancelled, res.Status)
	assert.Equal(t, domain.ExecutionStatusCancelled, f.catalog.Executions()[0].Status)
}

func TestExecuteMapping_SealFailureIsJoined(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1, domain.Record{"id": "1"})
	f.catalog.EndExecutionErr = errors.New("catalog locked")

	_, err := f.orchestrator(Config{}).ExecuteMapping(context.Background(), m.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog locked")
}

func TestExecuteMapping_IncrementalWatermark(t *testing.T) {
	f := newFixture(t)
	m := f.catalog.AddMapping(domain.TableMapping{
		Code: "EVENTS", SourceSystemID: f.source.ID, SourceTable: "events", TargetTable: "events",
		LoadStrategy: domain.LoadStrategyIncremental, IncrementalColumn: "updated_at",
		MergeStrategy: domain.MergeInsertOnly, IsActive: true,
	})
	o := f.orchestrator(Config{})

	_, err := o.ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	_, err = o.ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)

	require.Len(t, f.extractor.Calls, 2)
	assert.Nil(t, f.extractor.Calls[0].Since, "first run is a full extract")
	require.NotNil(t, f.extractor.Calls[1].Since)
	assert.Equal(t, f.catalog.Executions()[0].StartedAt, *f.extractor.Calls[1].Since)
}

func TestExecuteMapping_DryRunDoesNotAdvanceWatermark(t *testing.T) {
	f := newFixture(t)
	m := f.catalog.AddMapping(domain.TableMapping{
		Code: "EVENTS", SourceSystemID: f.source.ID, SourceTable: "events", TargetTable: "events",
		LoadStrategy: domain.LoadStrategyIncremental, IncrementalColumn: "updated_at",
		MergeStrategy: domain.MergeInsertOnly, IsActive: true,
	})

	_, err := f.orchestrator(Config{DryRun: true}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	_, err = f.orchestrator(Config{}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)

	require.Len(t, f.extractor.Calls, 2)
	assert.Nil(t, f.extractor.Calls[1].Since, "a dry run loads nothing, so the live run extracts everything")

	_, err = f.orchestrator(Config{}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, f.extractor.Calls, 3)
	require.NotNil(t, f.extractor.Calls[2].Since)
	assert.Equal(t, f.catalog.Executions()[1].StartedAt, *f.extractor.Calls[2].Since)
}

func TestExecuteMapping_StagingAcceptsDuplicateKeys(t *testing.T) {
	f := newFixture(t)
	m := f.addMapping("CUSTOMERS", 1,
		domain.Record{"id": "1", "name": "ada"},
		domain.Record{"id": "1", "name": "ada lovelace"},
	)
	f.loader.LoadFn = func(_ context.Context, rows []domain.Record, target domain.LoadTarget) (int64, error) {
		if target.MergeStrategy != domain.MergeInsertOnly || len(target.KeyColumns) == 0 {
			return int64(len(rows)), nil
		}
		seen := make(map[any]bool, len(rows))
		for _, r := range rows {
			if seen[r["id"]] {
				return 0, errors.New("UNIQUE constraint failed")
			}
			seen[r["id"]] = true
		}
		return int64(len(rows)), nil
	}

	res, err := f.orchestrator(Config{StagingSchema: "staging"}).ExecuteMapping(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuccess, res.Status)

	require.Equal(t, 2, f.loader.CallCount())
	assert.Empty(t, f.loader.Calls[0].Target.KeyColumns)
	assert.Equal(t, []string{"id"}, f.loader.Calls[1].Target.KeyColumns)
}

func TestExecuteSourceSystem_ContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.addMapping("M1", 1, domain.Record{"id": "1"})
	f.addMapping("M2", 2, domain.Record{"id": "2"})
	f.addMapping("M3", 3, domain.Record{"id": "3"})
	f.extractor.Errs["M2"] = errors.New("source timeout")

	stats, err := f.orchestrator(Config{}).ExecuteSourceSystem(context.Background(), "CRM")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.True(t, stats.HasFailures())
	assert.Equal(t, int64(2), stats.RowsLoaded)

	require.Len(t, stats.Outcomes, 3)
	assert.Equal(t, "M2", stats.Outcomes[1].MappingCode)
	assert.Equal(t, domain.ExecutionStatusFailed, stats.Outcomes[1].Status)
	assert.Contains(t, stats.Outcomes[1].Error, "extract: source timeout")

	for _, e := range f.catalog.Executions() {
		assert.True(t, domain.IsTerminalStatus(e.Status))
		assert.Equal(t, domain.ExecutionTypeSource, e.ExecutionType)
	}
}

func TestExecuteSourceSystem_RespectsDependencies(t *testing.T) {
	f := newFixture(t)
	a := f.addMapping("A", 1, domain.Record{"id": "1"})
	b := f.addMapping("B", 1, domain.Record{"id": "2"})
	c := f.addMapping("C", 1, domain.Record{"id": "3"})
	f.catalog.AddDependency(c.ID, a.ID) // A depends on C

	stats, err := f.orchestrator(Config{}).ExecuteSourceSystem(context.Background(), "CRM")
	require.NoError(t, err)
	var order []string
	for _, o := range stats.Outcomes {
		order = append(order, o.MappingCode)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
	assert.Equal(t, [][]int64{{b.ID, c.ID}, {a.ID}}, stats.Levels)
}

func TestExecuteSourceSystem_CycleRunsNothing(t *testing.T) {
	f := newFixture(t)
	a := f.addMapping("A", 1)
	b := f.addMapping("B", 2)
	f.catalog.AddDependency(a.ID, b.ID)
	f.catalog.AddDependency(b.ID, a.ID)

	stats, err := f.orchestrator(Config{}).ExecuteSourceSystem(context.Background(), "CRM")
	var cycleErr *domain.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Nil(t, stats)
	assert.Empty(t, f.catalog.Executions())
}

func TestExecuteSourceSystem_UnknownSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator(Config{}).ExecuteSourceSystem(context.Background(), "NOPE")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

type recordingObserver struct {
	mu         sync.Mutex
	phases     map[Phase]int64
	statuses   []string
	violations int
}

func (r *recordingObserver) ObservePhase(_ string, phase Phase, rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases[phase] += rows
}

func (r *recordingObserver) ObserveViolation(domain.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations++
}

func (r *recordingObserver) ObserveExecution(_ string, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestExecuteSourceSystem_ParallelLevels(t *testing.T) {
	f := newFixture(t)
	a := f.addMapping("A", 1, domain.Record{"id": "1"})
	b := f.addMapping("B", 1, domain.Record{"id": "2"})
	c := f.addMapping("C", 1, domain.Record{"id": "3"})
	d := f.addMapping("D", 1, domain.Record{"id": "4"})
	f.catalog.AddDependency(a.ID, d.ID)
	f.catalog.AddDependency(b.ID, d.ID)
	f.extractor.Errs["C"] = errors.New("boom")
	obs := &recordingObserver{phases: map[Phase]int64{}}

	stats, err := f.orchestrator(Config{Parallelism: 3}, WithObserver(obs)).ExecuteSourceSystem(context.Background(), "CRM")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, [][]int64{{a.ID, b.ID, c.ID}, {d.ID}}, stats.Levels)
	assert.Equal(t, "D", stats.Outcomes[3].MappingCode)

	ids := make(map[string]bool)
	for _, e := range f.catalog.Executions() {
		ids[e.ID] = true
	}
	assert.Len(t, ids, 4, "each worker owns its execution row")

	assert.Len(t, obs.statuses, 4)
	assert.Equal(t, int64(3), obs.phases[PhaseLoading])
}

func TestExecuteSourceSystem_TriggerFromContext(t *testing.T) {
	f := newFixture(t)
	f.addMapping("A", 1, domain.Record{"id": "1"})

	ctx := domain.WithTrigger(context.Background(), domain.Trigger{By: "scheduler", Type: domain.TriggerTypeScheduled})
	_, err := f.orchestrator(Config{}).ExecuteSourceSystem(ctx, "CRM")
	require.NoError(t, err)

	e := f.catalog.Executions()[0]
	assert.Equal(t, "scheduler", e.TriggeredBy)
	assert.Equal(t, domain.TriggerTypeScheduled, e.Parameters["trigger"])
}
