// Package sqlsource reads mapping sources through database/sql.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"duck-ingest/internal/connector"
	"duck-ingest/internal/domain"
)

// Extractor implements domain.Extractor over database/sql. It opens one
// pool per source connection and keeps it for the lifetime of the
// Extractor.
type Extractor struct {
	mu     sync.Mutex
	pools  map[string]*sql.DB
	open   func(driver, dsn string) (*sql.DB, error)
	logger *slog.Logger
}

var _ domain.Extractor = (*Extractor)(nil)

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		pools:  make(map[string]*sql.DB),
		open:   sql.Open,
		logger: logger.With("component", "sqlsource"),
	}
}

// Close closes every cached pool.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for key, db := range e.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(e.pools, key)
	}
	return errors.Join(errs...)
}

func (e *Extractor) pool(src *domain.SourceSystem) (*sql.DB, error) {
	if src.Driver == "" || src.DSN == "" {
		return nil, domain.ErrValidation("source system %q has no connection configured", src.Code)
	}
	key := src.Driver + "\x00" + src.DSN

	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.pools[key]; ok {
		return db, nil
	}
	db, err := e.open(src.Driver, src.DSN)
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", src.Code, err)
	}
	e.pools[key] = db
	e.logger.Debug("source pool opened", "source", src.Code, "driver", src.Driver)
	return db, nil
}

// Extract runs the mapping's source query and emits its rows in batches of
// req.BatchSize.
func (e *Extractor) Extract(ctx context.Context, req domain.ExtractRequest, emit func([]domain.Record) error) error {
	if req.Mapping == nil || req.Source == nil {
		return domain.ErrValidation("extract request requires a mapping and a source")
	}
	dialect, err := connector.DialectFor(req.Source.Driver)
	if err != nil {
		return err
	}
	query, args, err := buildQuery(dialect, req)
	if err != nil {
		return err
	}
	db, err := e.pool(req.Source)
	if err != nil {
		return err
	}

	e.logger.Debug("extract query", "mapping", req.Mapping.Code, "query", query)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", req.Mapping.SourceLocation().QualifiedName(), err)
	}
	defer rows.Close() //nolint:errcheck

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read columns: %w", err)
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}
	batch := make([]domain.Record, 0, batchSize)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		rec := make(domain.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}
			rec[col] = values[i]
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := emit(batch); err != nil {
				return err
			}
			batch = make([]domain.Record, 0, batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	if len(batch) > 0 {
		return emit(batch)
	}
	return nil
}

// buildQuery renders SELECT * with the mapping's filter and, for
// incremental extracts, the watermark predicate.
func buildQuery(d connector.Dialect, req domain.ExtractRequest) (string, []any, error) {
	loc := req.Mapping.SourceLocation()
	if err := connector.ValidateLocation(loc); err != nil {
		return "", nil, fmt.Errorf("source of mapping %s: %w", req.Mapping.Code, err)
	}
	incremental := req.Mapping.IncrementalColumn
	if incremental != "" {
		if err := connector.ValidateIdentifier(incremental); err != nil {
			return "", nil, fmt.Errorf("incremental column of mapping %s: %w", req.Mapping.Code, err)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.Table(loc))

	var where []string
	var args []any
	if f := strings.TrimSpace(loc.Filter); f != "" {
		where = append(where, "("+f+")")
	}
	if req.Since != nil && incremental != "" {
		args = append(args, *req.Since)
		where = append(where, fmt.Sprintf("%s > %s", d.Quote(incremental), d.Placeholder(len(args))))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if incremental != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(d.Quote(incremental))
	}
	return b.String(), args, nil
}
