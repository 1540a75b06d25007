// Package scheduler triggers source-system runs from their cron hints.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/ingestion"
)

// SourceRunner runs every mapping of one source system.
type SourceRunner interface {
	ExecuteSourceSystem(ctx context.Context, code string) (*ingestion.RunStats, error)
}

// SourceLister lists the configured source systems.
type SourceLister interface {
	ListSourceSystems(ctx context.Context) ([]domain.SourceSystem, error)
}

// Scheduler manages cron-based source-system runs. A run that is still
// in progress when its next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  SourceRunner
	sources SourceLister
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // source code → cron entry
	running map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs are run with panic recovery.
func New(runner SourceRunner, sources SourceLister, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
		runner:  runner,
		sources: sources,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start loads all scheduled source systems and starts the cron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("source scheduler started")
	return nil
}

// Stop stops scheduling new runs, cancels runs in progress and waits for
// them to seal their executions.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.logger.Info("source scheduler stopped")
}

// Reload clears all cron entries and reloads them from the catalog.
func (s *Scheduler) Reload(ctx context.Context) error {
	sources, err := s.sources.ListSourceSystems(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entryID := range s.entries {
		s.cron.Remove(entryID)
	}
	s.entries = make(map[string]cron.EntryID)

	for _, src := range sources {
		if !src.IsActive || src.ScheduleCron == nil || *src.ScheduleCron == "" {
			continue
		}
		schedule := *src.ScheduleCron
		code := src.Code

		entryID, err := s.cron.AddFunc(schedule, func() { s.run(code) })
		if err != nil {
			s.logger.Warn("invalid cron schedule",
				"source", code,
				"schedule", schedule,
				"error", err,
			)
			continue
		}
		s.entries[code] = entryID
		s.logger.Info("scheduled source system", "source", code, "schedule", schedule)
	}
	return nil
}

// Scheduled returns the codes of the source systems with a cron entry.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.entries))
	for code := range s.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// run executes one scheduled tick for code unless a run of code is still
// in progress. It reports whether the run happened.
func (s *Scheduler) run(code string) bool {
	s.mu.Lock()
	if s.running[code] {
		s.mu.Unlock()
		s.logger.Warn("previous run still in progress, tick skipped", "source", code)
		return false
	}
	s.running[code] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, code)
		s.mu.Unlock()
	}()

	ctx := domain.WithTrigger(s.ctx, domain.Trigger{By: "scheduler", Type: domain.TriggerTypeScheduled})
	stats, err := s.runner.ExecuteSourceSystem(ctx, code)
	switch {
	case err != nil:
		s.logger.Warn("scheduled run failed", "source", code, "error", err)
	case stats.HasFailures():
		s.logger.Warn("scheduled run finished with failures",
			"source", code, "successful", stats.Successful, "failed", stats.Failed)
	default:
		s.logger.Info("scheduled run finished", "source", code, "mappings", stats.Total)
	}
	return true
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
