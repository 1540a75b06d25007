// Package transform applies declarative column mappings to raw records.
package transform

import (
	"fmt"
	"log/slog"
	"strings"

	"duck-ingest/internal/domain"
)

// RowError describes a row dropped during a batch transform.
type RowError struct {
	Index int
	RowID string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Index, e.RowID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger used for dropped rows and lenient fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformer) { t.logger = logger }
}

// WithFunctionRuntime sets the runtime used by FUNCTION columns.
func WithFunctionRuntime(rt FunctionRuntime) Option {
	return func(t *Transformer) { t.functions = rt }
}

// columnPlan is the precomputed handler of one column mapping.
type columnPlan struct {
	mapping  domain.ColumnMapping
	produce  func(rec domain.Record) (any, error)
	kind     targetKind
	fallback *string
}

// Transformer turns raw source records into target records. It is built
// once per mapping execution and is safe for concurrent use.
type Transformer struct {
	plans     []columnPlan
	columns   []string
	logger    *slog.Logger
	functions FunctionRuntime
}

// New builds a Transformer for columns in declared order. lookups may hold
// the entries of every LOOKUP column of the mapping.
func New(columns []domain.ColumnMapping, lookups []domain.LookupMapping, opts ...Option) *Transformer {
	t := &Transformer{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "transform")

	tables := buildLookupTables(lookups)
	for _, cm := range columns {
		t.plans = append(t.plans, columnPlan{
			mapping:  cm,
			produce:  t.handler(cm, tables[cm.ID]),
			kind:     normalizeKind(cm.TargetType),
			fallback: cm.DefaultValue,
		})
		t.columns = append(t.columns, cm.TargetColumn)
	}
	return t
}

// Columns returns the target column names in declared order.
func (t *Transformer) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Transformer) handler(cm domain.ColumnMapping, table *lookupTable) func(domain.Record) (any, error) {
	source := cm.SourceColumn
	direct := func(rec domain.Record) (any, error) { return rec[source], nil }

	switch cm.Kind {
	case domain.TransformExpression:
		node, err := parseExpression(cm.Definition)
		if err != nil {
			t.logger.Debug("expression not understood, copying source column",
				"column", cm.TargetColumn, "expression", cm.Definition, "error", err)
			return direct
		}
		return func(rec domain.Record) (any, error) { return node.eval(rec, rec[source]) }

	case domain.TransformLookup:
		return func(rec domain.Record) (any, error) { return table.resolve(rec[source]), nil }

	case domain.TransformFunction:
		name := strings.TrimSpace(cm.Definition)
		if t.functions == nil || !t.functions.Has(name) {
			t.logger.Debug("function not available, copying source column",
				"column", cm.TargetColumn, "function", name)
			return direct
		}
		rt := t.functions
		return func(rec domain.Record) (any, error) { return rt.Call(name, rec[source], rec) }
	}
	return direct
}

// Transform maps one raw record to a target record. It does not modify rec.
func (t *Transformer) Transform(rec domain.Record) (domain.Record, error) {
	out := make(domain.Record, len(t.plans))
	for i := range t.plans {
		p := &t.plans[i]
		v, err := p.produce(rec)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", p.mapping.TargetColumn, err)
		}
		if v == nil && p.fallback != nil {
			v = *p.fallback
		}
		v, err = coerce(p.kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", p.mapping.TargetColumn, err)
		}
		out[p.mapping.TargetColumn] = v
	}
	return out, nil
}

// TransformBatch transforms rows, dropping (and logging) every row whose
// transform fails or panics. keyColumns name the source columns used to
// identify dropped rows.
func (t *Transformer) TransformBatch(rows []domain.Record, keyColumns []string) ([]domain.Record, []RowError) {
	out := make([]domain.Record, 0, len(rows))
	var dropped []RowError
	for i, rec := range rows {
		res, err := t.safeTransform(rec)
		if err != nil {
			re := RowError{Index: i, RowID: domain.RowID(rec, keyColumns), Err: err}
			t.logger.Warn("row dropped", "row", i, "row_id", re.RowID, "error", err)
			dropped = append(dropped, re)
			continue
		}
		out = append(out, res)
	}
	return out, dropped
}

func (t *Transformer) safeTransform(rec domain.Record) (out domain.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic during transform: %v", r)
		}
	}()
	return t.Transform(rec)
}
