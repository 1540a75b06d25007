package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-ingest/internal/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int { return &n }

func rule(code string, kind domain.RuleKind, column string, sev domain.Severity) domain.DataQualityRule {
	return domain.DataQualityRule{
		ID: 1, Code: code, Kind: kind, Column: column,
		Severity: sev, Action: domain.ActionReject, IsActive: true,
	}
}

func TestValidate_NotNullErrorRejects(t *testing.T) {
	v := New([]domain.DataQualityRule{rule("ID_NN", domain.RuleNotNull, "id", domain.SeverityError)})

	rows := []domain.Record{{"id": 1}, {"id": nil}, {"id": "  "}, {"other": 1}}
	res := v.Validate(rows, []string{"id"})

	assert.Equal(t, []domain.Record{{"id": 1}}, res.Valid)
	assert.Len(t, res.Rejected, 3)
	require.Len(t, res.Violations, 3)
	assert.Equal(t, domain.ActionReject, res.Violations[0].Action)
	assert.Equal(t, "id=NULL", res.Violations[0].RowID)
	assert.Equal(t, Stats{Total: 4, Valid: 1, Rejected: 3, BySeverity: map[domain.Severity]int{domain.SeverityError: 3}}, res.Stats)
}

func TestValidate_SeverityDecidesRejection(t *testing.T) {
	tests := []struct {
		sev        domain.Severity
		wantReject bool
		wantAction domain.Action
	}{
		{domain.SeverityInfo, false, domain.ActionLog},
		{domain.SeverityWarning, false, domain.ActionWarn},
		{domain.SeverityError, true, domain.ActionReject},
		{domain.SeverityCritical, true, domain.ActionReject},
	}
	for _, tt := range tests {
		t.Run(string(tt.sev), func(t *testing.T) {
			res := New([]domain.DataQualityRule{rule("R", domain.RuleNotNull, "x", tt.sev)}).
				Validate([]domain.Record{{"x": nil}}, nil)
			assert.Equal(t, tt.wantReject, len(res.Rejected) == 1)
			require.Len(t, res.Violations, 1)
			assert.Equal(t, tt.wantAction, res.Violations[0].Action)
		})
	}
}

func TestValidate_RuleKinds(t *testing.T) {
	pattern := rule("EMAIL", domain.RulePattern, "email", domain.SeverityError)
	pattern.Definition = `^[^@\s]+@[^@\s]+$`

	rng := rule("AGE", domain.RuleRange, "age", domain.SeverityError)
	rng.MinValue, rng.MaxValue = strPtr("0"), strPtr("130")

	dates := rule("BORN", domain.RuleDateRange, "born", domain.SeverityError)
	dates.MinValue = strPtr("1900-01-01")

	length := rule("CODE_LEN", domain.RuleLength, "code", domain.SeverityError)
	length.MinLength, length.MaxLength = intPtr(2), intPtr(4)

	tests := []struct {
		name  string
		rule  domain.DataQualityRule
		value any
		want  bool // violated
	}{
		{"pattern match", pattern, "ada@example.com", false},
		{"pattern miss", pattern, "not-an-email", true},
		{"pattern nil passes", pattern, nil, false},
		{"range inside", rng, 42, false},
		{"range inclusive bound", rng, "130", false},
		{"range below", rng, -1, true},
		{"range above", rng, 131.5, true},
		{"range non numeric passes", rng, "old", false},
		{"date inside", dates, time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"date below", dates, "1899-12-31", true},
		{"date unparseable passes", dates, "yesterday", false},
		{"length ok", length, "ABC", false},
		{"length runes", length, "ÄÖÜ", false},
		{"length too short", length, "A", true},
		{"length too long", length, "ABCDE", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New([]domain.DataQualityRule{tt.rule}).Validate([]domain.Record{{tt.rule.Column: tt.value}}, nil)
			assert.Equal(t, tt.want, len(res.Violations) == 1)
		})
	}
}

func TestValidate_BrokenAndInactiveRulesPass(t *testing.T) {
	badPattern := rule("BAD", domain.RulePattern, "x", domain.SeverityCritical)
	badPattern.Definition = "(["
	badRange := rule("BAD_RANGE", domain.RuleRange, "x", domain.SeverityCritical)
	badRange.MinValue = strPtr("zero")
	inactive := rule("OFF", domain.RuleNotNull, "x", domain.SeverityCritical)
	inactive.IsActive = false

	res := New([]domain.DataQualityRule{badPattern, badRange, inactive}).Validate([]domain.Record{{"x": nil}}, nil)
	assert.Len(t, res.Valid, 1)
	assert.Empty(t, res.Violations)
}

func TestValidate_NonRejectingModes(t *testing.T) {
	for _, mode := range []domain.Action{domain.ActionLog, domain.ActionWarn, domain.ActionContinue} {
		t.Run(string(mode), func(t *testing.T) {
			res := New([]domain.DataQualityRule{rule("NN", domain.RuleNotNull, "x", domain.SeverityCritical)}, WithMode(mode)).
				Validate([]domain.Record{{"x": nil}}, nil)
			assert.Len(t, res.Valid, 1)
			assert.Empty(t, res.Rejected)
			require.Len(t, res.Violations, 1)
			assert.Equal(t, mode, res.Violations[0].Action)
		})
	}
}

func TestValidate_FixTruncates(t *testing.T) {
	length := rule("NAME_LEN", domain.RuleLength, "name", domain.SeverityError)
	length.MaxLength = intPtr(3)
	v := New([]domain.DataQualityRule{length}, WithMode(domain.ActionFix))

	in := []domain.Record{{"name": "Lovelace"}}
	res := v.Validate(in, nil)
	require.Len(t, res.Valid, 1)
	assert.Equal(t, "Lov", res.Valid[0]["name"])
	assert.Equal(t, "Lovelace", in[0]["name"], "input row is not modified")
	require.Len(t, res.Violations, 1)
	assert.Equal(t, domain.ActionFix, res.Violations[0].Action)

	again := v.Validate(res.Valid, nil)
	assert.Equal(t, res.Valid, again.Valid)
	assert.Empty(t, again.Violations)
}

func TestValidate_RuleLevelFixUnderRejectMode(t *testing.T) {
	length := rule("NAME_LEN", domain.RuleLength, "name", domain.SeverityError)
	length.MaxLength = intPtr(2)
	length.Action = domain.ActionFix

	res := New([]domain.DataQualityRule{length}).Validate([]domain.Record{{"name": "Ada"}}, nil)
	require.Len(t, res.Valid, 1)
	assert.Equal(t, "Ad", res.Valid[0]["name"])
}

func TestValidate_Idempotent(t *testing.T) {
	rules := []domain.DataQualityRule{
		rule("NN", domain.RuleNotNull, "id", domain.SeverityError),
		func() domain.DataQualityRule {
			r := rule("AGE", domain.RuleRange, "age", domain.SeverityCritical)
			r.MaxValue = strPtr("100")
			return r
		}(),
		rule("WARN", domain.RuleNotNull, "nick", domain.SeverityWarning),
	}
	v := New(rules)
	rows := []domain.Record{
		{"id": 1, "age": 20, "nick": "a"},
		{"id": nil, "age": 20},
		{"id": 3, "age": 200},
		{"id": 4, "age": 30},
	}
	first := v.Validate(rows, []string{"id"})
	second := v.Validate(first.Valid, []string{"id"})
	assert.Equal(t, first.Valid, second.Valid)
	assert.Empty(t, second.Rejected)
}

type stubScripts struct {
	result bool
	err    error
}

func (s stubScripts) EvalBool(string, any, domain.Record) (bool, error) { return s.result, s.err }

func TestValidate_CustomRules(t *testing.T) {
	custom := rule("CUSTOM", domain.RuleCustom, "x", domain.SeverityError)
	custom.Definition = "value > 0"
	rows := []domain.Record{{"x": 1}}

	assert.Len(t, New([]domain.DataQualityRule{custom}).Validate(rows, nil).Valid, 1, "no evaluator passes")
	assert.Len(t, New([]domain.DataQualityRule{custom}, WithScriptEvaluator(stubScripts{result: true})).Validate(rows, nil).Valid, 1)
	assert.Len(t, New([]domain.DataQualityRule{custom}, WithScriptEvaluator(stubScripts{result: false})).Validate(rows, nil).Rejected, 1)
	assert.Len(t, New([]domain.DataQualityRule{custom}, WithScriptEvaluator(stubScripts{err: errors.New("bad")})).Validate(rows, nil).Valid, 1)
}
