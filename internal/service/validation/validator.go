// Package validation applies data-quality rules to transformed records.
package validation

import (
	"log/slog"

	"duck-ingest/internal/domain"
)

// Stats summarizes one Validate call.
type Stats struct {
	Total      int
	Valid      int
	Rejected   int
	BySeverity map[domain.Severity]int
}

// Result partitions a batch into accepted and rejected rows.
type Result struct {
	Valid      []domain.Record
	Rejected   []domain.Record
	Violations []domain.ValidationResult
	Stats      Stats
}

// Option configures a Validator.
type Option func(*Validator)

// WithMode sets the validator-wide action mode. The default is REJECT.
func WithMode(mode domain.Action) Option {
	return func(v *Validator) { v.mode = mode }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithScriptEvaluator enables CUSTOM rules.
func WithScriptEvaluator(s ScriptEvaluator) Option {
	return func(v *Validator) { v.scripts = s }
}

// Validator checks rows against a fixed set of rules.
type Validator struct {
	rules   []compiledRule
	mode    domain.Action
	logger  *slog.Logger
	scripts ScriptEvaluator
}

// New compiles rules. Inactive rules are skipped; rules whose definition
// cannot be compiled are logged and always pass.
func New(rules []domain.DataQualityRule, opts ...Option) *Validator {
	v := &Validator{mode: domain.ActionReject, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "validation")

	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		c, err := compileRule(r)
		if err != nil {
			v.logger.Warn("quality rule disabled", "rule", r.Code, "error", err)
		}
		v.rules = append(v.rules, c)
	}
	return v
}

// Mode returns the validator-wide action mode.
func (v *Validator) Mode() domain.Action { return v.mode }

// Validate checks every row against every rule. Rows are never modified in
// place; a row repaired under FIX is copied first.
func (v *Validator) Validate(rows []domain.Record, keyColumns []string) *Result {
	res := &Result{
		Valid: make([]domain.Record, 0, len(rows)),
		Stats: Stats{Total: len(rows), BySeverity: make(map[domain.Severity]int)},
	}

	for i, row := range rows {
		rejected := false
		current := row
		copied := false

		for ri := range v.rules {
			c := &v.rules[ri]
			out := c.check(current, v.scripts)
			if !out.violated {
				continue
			}

			action := v.actionFor(c.rule, out)
			if action == domain.ActionFix {
				if !copied {
					current = current.Clone()
					copied = true
				}
				current[c.rule.Column] = truncateRunes(toString(current[c.rule.Column]), out.truncateTo)
			}
			if action == domain.ActionReject {
				rejected = true
			}

			res.Stats.BySeverity[c.rule.Severity]++
			res.Violations = append(res.Violations, domain.ValidationResult{
				RowIndex: i,
				RowID:    domain.RowID(row, keyColumns),
				RuleID:   c.rule.ID,
				RuleCode: c.rule.Code,
				Column:   c.rule.Column,
				Value:    row[c.rule.Column],
				Severity: c.rule.Severity,
				Action:   action,
				Message:  out.message,
			})
		}

		if rejected {
			res.Rejected = append(res.Rejected, row)
			continue
		}
		res.Valid = append(res.Valid, current)
	}

	res.Stats.Valid = len(res.Valid)
	res.Stats.Rejected = len(res.Rejected)
	if res.Stats.Rejected > 0 {
		v.logger.Info("rows rejected", "rejected", res.Stats.Rejected, "total", res.Stats.Total)
	}
	return res
}

// actionFor decides what happens to a row for one violation.
func (v *Validator) actionFor(r domain.DataQualityRule, out outcome) domain.Action {
	switch v.mode {
	case domain.ActionLog, domain.ActionWarn, domain.ActionContinue:
		return v.mode
	}

	// REJECT and FIX modes.
	if out.fixable && (v.mode == domain.ActionFix || r.Action == domain.ActionFix) {
		return domain.ActionFix
	}
	if r.Severity.Rejects() {
		return domain.ActionReject
	}
	if r.Severity == domain.SeverityWarning {
		return domain.ActionWarn
	}
	return domain.ActionLog
}
