package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"duck-ingest/internal/domain"
)

// ScriptEvaluator evaluates CUSTOM rule expressions.
type ScriptEvaluator interface {
	EvalBool(expr string, value any, row domain.Record) (bool, error)
}

// compiledRule is a rule with its definition parsed once.
type compiledRule struct {
	rule    domain.DataQualityRule
	pattern *regexp.Regexp
	min     *float64
	max     *float64
	minDate *time.Time
	maxDate *time.Time
	broken  bool // definition could not be compiled; the rule always passes
}

// outcome is the result of checking one rule against one row.
type outcome struct {
	violated bool
	message  string
	// fixable marks LENGTH max violations, repaired by truncating to
	// truncateTo runes.
	fixable    bool
	truncateTo int
}

var dateBoundLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

func compileRule(r domain.DataQualityRule) (compiledRule, error) {
	c := compiledRule{rule: r}
	switch r.Kind {
	case domain.RulePattern:
		re, err := regexp.Compile(r.Definition)
		if err != nil {
			c.broken = true
			return c, fmt.Errorf("compile pattern: %w", err)
		}
		c.pattern = re
	case domain.RuleRange:
		var err error
		if c.min, err = parseFloatBound(r.MinValue); err != nil {
			c.broken = true
			return c, err
		}
		if c.max, err = parseFloatBound(r.MaxValue); err != nil {
			c.broken = true
			return c, err
		}
	case domain.RuleDateRange:
		var err error
		if c.minDate, err = parseDateBound(r.MinValue); err != nil {
			c.broken = true
			return c, err
		}
		if c.maxDate, err = parseDateBound(r.MaxValue); err != nil {
			c.broken = true
			return c, err
		}
	}
	return c, nil
}

func parseFloatBound(s *string) (*float64, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric bound %q", *s)
	}
	return &f, nil
}

func parseDateBound(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, ok := parseDate(strings.TrimSpace(*s))
	if !ok {
		return nil, fmt.Errorf("invalid date bound %q", *s)
	}
	return &t, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, l := range dateBoundLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (c *compiledRule) check(row domain.Record, scripts ScriptEvaluator) outcome {
	if c.broken {
		return outcome{}
	}
	col := c.rule.Column
	v := row[col]

	switch c.rule.Kind {
	case domain.RuleNotNull:
		if isBlank(v) {
			return outcome{violated: true, message: fmt.Sprintf("%s must not be null or empty", col)}
		}

	case domain.RulePattern:
		if v == nil {
			return outcome{}
		}
		if s := toString(v); !c.pattern.MatchString(s) {
			return outcome{violated: true, message: fmt.Sprintf("%s value %q does not match pattern %s", col, s, c.pattern)}
		}

	case domain.RuleRange:
		f, ok := toFloat(v)
		if !ok {
			return outcome{}
		}
		if (c.min != nil && f < *c.min) || (c.max != nil && f > *c.max) {
			return outcome{violated: true, message: fmt.Sprintf("%s value %v outside range %s", col, v, boundsString(c.rule))}
		}

	case domain.RuleDateRange:
		t, ok := toDate(v)
		if !ok {
			return outcome{}
		}
		if (c.minDate != nil && t.Before(*c.minDate)) || (c.maxDate != nil && t.After(*c.maxDate)) {
			return outcome{violated: true, message: fmt.Sprintf("%s date %s outside range %s", col, t.Format("2006-01-02"), boundsString(c.rule))}
		}

	case domain.RuleLength:
		if v == nil {
			return outcome{}
		}
		n := utf8.RuneCountInString(toString(v))
		if c.rule.MinLength != nil && n < *c.rule.MinLength {
			return outcome{violated: true, message: fmt.Sprintf("%s length %d below minimum %d", col, n, *c.rule.MinLength)}
		}
		if c.rule.MaxLength != nil && n > *c.rule.MaxLength {
			return outcome{
				violated:   true,
				message:    fmt.Sprintf("%s length %d exceeds maximum %d", col, n, *c.rule.MaxLength),
				fixable:    true,
				truncateTo: *c.rule.MaxLength,
			}
		}

	case domain.RuleCustom:
		if scripts == nil {
			return outcome{}
		}
		ok, err := scripts.EvalBool(c.rule.Definition, v, row)
		if err != nil {
			return outcome{}
		}
		if !ok {
			return outcome{violated: true, message: fmt.Sprintf("%s failed check %s", col, c.rule.Code)}
		}
	}
	return outcome{}
}

func boundsString(r domain.DataQualityRule) string {
	lo, hi := "-inf", "+inf"
	if r.MinValue != nil {
		lo = *r.MinValue
	}
	if r.MaxValue != nil {
		hi = *r.MaxValue
	}
	return "[" + lo + ", " + hi + "]"
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return strings.TrimSpace(string(x)) == ""
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func toDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseDate(strings.TrimSpace(x))
	}
	return time.Time{}, false
}

func truncateRunes(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
