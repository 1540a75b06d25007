// Package app wires the metadata catalog, connectors and ingestion services
// shared by the ingest CLI and HTTP server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"duck-ingest/internal/api"
	"duck-ingest/internal/config"
	"duck-ingest/internal/connector/sqlsink"
	"duck-ingest/internal/connector/sqlsource"
	internaldb "duck-ingest/internal/db"
	"duck-ingest/internal/db/crypto"
	"duck-ingest/internal/db/repository"
	"duck-ingest/internal/declarative"
	"duck-ingest/internal/domain"
	"duck-ingest/internal/metrics"
	"duck-ingest/internal/middleware"
	"duck-ingest/internal/scripting"
	"duck-ingest/internal/service/ingestion"
	"duck-ingest/internal/service/scheduler"

	_ "duck-ingest/internal/connector/drivers" // source and target drivers
)

// App holds the fully-wired application.
type App struct {
	Config       *config.Config
	Catalog      *repository.Catalog
	Orchestrator *ingestion.Orchestrator
	Scheduler    *scheduler.Scheduler
	Metrics      *metrics.Recorder
	Functions    *scripting.Runtime

	logger    *slog.Logger
	writeDB   *sql.DB
	readDB    *sql.DB
	extractor *sqlsource.Extractor
	target    *targetLoader

	schedulerStarted bool
}

// New opens and migrates the catalog and wires every service from cfg. The
// target warehouse is opened on the first load.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var sealer *crypto.Sealer
	if cfg.EncryptionKey != "" {
		var err error
		if sealer, err = crypto.NewSealer(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
		}
	}

	writeDB, readDB, err := internaldb.OpenPair(cfg.MetaDBPath, cfg.Parallelism+1)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := internaldb.Migrate(writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	functions := scripting.New()
	if cfg.FunctionsFile != "" {
		if functions, err = scripting.LoadFile(cfg.FunctionsFile); err != nil {
			_ = readDB.Close()
			_ = writeDB.Close()
			return nil, fmt.Errorf("load functions: %w", err)
		}
		logger.Info("transform functions loaded", "file", cfg.FunctionsFile, "functions", functions.Functions())
	}

	a := &App{
		Config:    cfg,
		Catalog:   repository.NewCatalog(writeDB, readDB, repository.WithSealer(sealer)),
		Metrics:   metrics.New(),
		Functions: functions,
		logger:    logger,
		writeDB:   writeDB,
		readDB:    readDB,
		extractor: sqlsource.New(logger),
		target:    newTargetLoader(cfg.TargetDriver, cfg.TargetDSN, logger),
	}

	a.Orchestrator = ingestion.New(a.Catalog, a.extractor, a.target, ingestion.Config{
		BatchSize:      cfg.BatchSize,
		MaxViolations:  cfg.MaxViolations,
		Parallelism:    cfg.Parallelism,
		ValidationMode: domain.Action(cfg.ValidationMode),
		StagingSchema:  cfg.StagingSchema,
		TriggeredBy:    cfg.TriggeredBy,
		DryRun:         cfg.DryRun,
	}, logger,
		ingestion.WithObserver(a.Metrics),
		ingestion.WithFunctionRuntime(functions),
		ingestion.WithScriptEvaluator(functions),
	)
	a.Scheduler = scheduler.New(a.Orchestrator, a.Catalog, logger)
	return a, nil
}

// Router returns the HTTP handler of the API server.
func (a *App) Router(ctx context.Context) http.Handler {
	handler := api.NewHandler(a.Catalog, a.Orchestrator, a.logger)
	return api.NewRouter(ctx, handler, api.RouterConfig{
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.Config.RateLimitRPS,
			Burst:             a.Config.RateLimitBurst,
		},
		Metrics: a.Metrics,
	}, a.logger)
}

// Import loads declarative configuration from path and applies it to the
// catalog. Validation problems are returned without touching the catalog.
func (a *App) Import(ctx context.Context, path string) ([]declarative.SourceSystemDoc, *domain.ApplySummary, error) {
	docs, err := declarative.Load(path)
	if err != nil {
		return nil, nil, err
	}
	summary, err := declarative.Apply(ctx, a.Catalog, docs)
	if err != nil {
		return docs, nil, err
	}
	return docs, summary, nil
}

// SchemaVersion returns the applied catalog migration version.
func (a *App) SchemaVersion() (int64, error) {
	return internaldb.SchemaVersion(a.writeDB)
}

// StartScheduler registers every scheduled source system and starts cron.
func (a *App) StartScheduler(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	a.schedulerStarted = true
	return nil
}

// Close stops the scheduler and releases every pool.
func (a *App) Close() error {
	if a.schedulerStarted {
		a.Scheduler.Stop()
	}
	return errors.Join(
		a.extractor.Close(),
		a.target.Close(),
		a.readDB.Close(),
		a.writeDB.Close(),
	)
}

// targetLoader opens the target warehouse on first use so commands that
// never load do not create or lock it.
type targetLoader struct {
	driver string
	dsn    string
	logger *slog.Logger

	once   sync.Once
	loader *sqlsink.Loader
	db     *sql.DB
	err    error
}

var _ domain.Loader = (*targetLoader)(nil)

func newTargetLoader(driver, dsn string, logger *slog.Logger) *targetLoader {
	return &targetLoader{driver: driver, dsn: dsn, logger: logger}
}

func (t *targetLoader) open() {
	t.loader, t.db, t.err = sqlsink.Open(t.driver, t.dsn, t.logger, sqlsink.WithAutoCreate())
	if t.err != nil {
		t.err = fmt.Errorf("open target %s: %w", t.driver, t.err)
	}
}

// Load implements domain.Loader.
func (t *targetLoader) Load(ctx context.Context, rows []domain.Record, target domain.LoadTarget) (int64, error) {
	t.once.Do(t.open)
	if t.err != nil {
		return 0, t.err
	}
	return t.loader.Load(ctx, rows, target)
}

// Close closes the target pool if it was opened.
func (t *targetLoader) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}
