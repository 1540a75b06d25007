// Package sqlsink writes transformed rows into a target database through
// database/sql.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"duck-ingest/internal/connector"
	"duck-ingest/internal/domain"
)

// Loader implements domain.Loader for one target database.
type Loader struct {
	db         *sql.DB
	dialect    connector.Dialect
	autoCreate bool
	logger     *slog.Logger
}

var _ domain.Loader = (*Loader)(nil)

// Option configures a Loader.
type Option func(*Loader)

// WithAutoCreate creates missing target schemas and tables from the first
// row's values, with the key columns as primary key.
func WithAutoCreate() Option {
	return func(l *Loader) { l.autoCreate = true }
}

// New creates a Loader writing through db with the dialect of driver.
func New(db *sql.DB, driver string, logger *slog.Logger, opts ...Option) (*Loader, error) {
	dialect, err := connector.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	l := &Loader{db: db, dialect: dialect, logger: logger.With("component", "sqlsink", "dialect", dialect.Name)}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Open opens the target database and returns a Loader over it. The caller
// owns the returned pool.
func Open(driver, dsn string, logger *slog.Logger, opts ...Option) (*Loader, *sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open target: %w", err)
	}
	l, err := New(db, driver, logger, opts...)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, nil, err
	}
	return l, db, nil
}

// Load writes rows in a single transaction. UPSERT and INSERT_ONLY insert
// every row (UPSERT updating rows whose keys exist); UPDATE_ONLY updates
// existing rows and reports how many matched.
func (l *Loader) Load(ctx context.Context, rows []domain.Record, target domain.LoadTarget) (int64, error) {
	if err := connector.ValidateLocation(target.Location); err != nil {
		return 0, err
	}
	columns := target.Columns
	if len(columns) == 0 {
		columns = columnsOf(rows)
	}
	for _, c := range append(append([]string(nil), columns...), target.KeyColumns...) {
		if err := connector.ValidateIdentifier(c); err != nil {
			return 0, fmt.Errorf("column: %w", err)
		}
	}
	strategy := target.MergeStrategy
	if strategy == "" {
		strategy = domain.MergeInsertOnly
	}
	if !domain.ValidMergeStrategy(strategy) {
		return 0, domain.ErrValidation("unknown merge strategy %q", strategy)
	}
	if strategy != domain.MergeInsertOnly && len(target.KeyColumns) == 0 {
		return 0, domain.ErrValidation("%s into %s requires key columns", strategy, target.Location.QualifiedName())
	}
	if len(rows) == 0 && !target.Truncate {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	table := l.dialect.Table(target.Location)
	if l.autoCreate {
		if err := l.ensureTable(ctx, tx, target.Location, columns, target.KeyColumns, rows); err != nil {
			return 0, err
		}
	}
	if target.Truncate {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("truncate %s: %w", target.Location.QualifiedName(), err)
		}
	}

	var n int64
	if strategy == domain.MergeUpdateOnly {
		n, err = l.update(ctx, tx, table, rows, columns, target.KeyColumns)
	} else {
		n, err = l.insert(ctx, tx, table, rows, columns, target.KeyColumns, strategy == domain.MergeUpsert)
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	l.logger.Debug("rows loaded", "table", target.Location.QualifiedName(), "strategy", strategy, "rows", n)
	return n, nil
}

func (l *Loader) insert(ctx context.Context, tx *sql.Tx, table string, rows []domain.Record, columns, keys []string, upsert bool) (int64, error) {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = l.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, l.dialect.QuoteList(columns), strings.Join(placeholders, ", "))
	if upsert {
		query += l.dialect.UpsertClause(columns, keys)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(columns))
	for i, rec := range rows {
		for j, c := range columns {
			args[j] = rec[c]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return int64(len(rows)), nil
}

func (l *Loader) update(ctx context.Context, tx *sql.Tx, table string, rows []domain.Record, columns, keys []string) (int64, error) {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets, where, order []string
	n := 0
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		n++
		sets = append(sets, fmt.Sprintf("%s = %s", l.dialect.Quote(c), l.dialect.Placeholder(n)))
		order = append(order, c)
	}
	if len(sets) == 0 {
		return 0, domain.ErrValidation("UPDATE_ONLY requires at least one non-key column")
	}
	for _, k := range keys {
		n++
		where = append(where, fmt.Sprintf("%s = %s", l.dialect.Quote(k), l.dialect.Placeholder(n)))
		order = append(order, k)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), strings.Join(where, " AND "))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	args := make([]any, len(order))
	for i, rec := range rows {
		for j, c := range order {
			args[j] = rec[c]
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("update row %d: %w", i, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("update row %d: %w", i, err)
		}
		total += affected
	}
	return total, nil
}

func (l *Loader) ensureTable(ctx context.Context, tx *sql.Tx, loc domain.TableLocation, columns, keys []string, rows []domain.Record) error {
	if loc.Schema != "" && l.dialect.SupportsSchemas() {
		if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+l.dialect.Quote(loc.Schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", loc.Schema, err)
		}
	}
	defs := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		defs = append(defs, l.dialect.Quote(c)+" "+l.dialect.ColumnType(sample(rows, c)))
	}
	if len(keys) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", l.dialect.QuoteList(keys)))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", l.dialect.Table(loc), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", loc.QualifiedName(), err)
	}
	return nil
}

// sample returns the first non-nil value of column c.
func sample(rows []domain.Record, c string) any {
	for _, r := range rows {
		if v := r[c]; v != nil {
			return v
		}
	}
	return nil
}

// columnsOf returns the sorted union of the rows' column names.
func columnsOf(rows []domain.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
