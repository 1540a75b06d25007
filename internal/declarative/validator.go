package declarative

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"duck-ingest/internal/connector"
	"duck-ingest/internal/domain"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "sources/crm.yaml" or "mapping[CUSTOMERS]"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Validate checks documents for structural correctness and referential
// integrity. It returns every problem found rather than stopping at the
// first one.
func Validate(docs []SourceSystemDoc) []ValidationError {
	var errs []ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	sourceCodes := make(map[string]bool, len(docs))
	mappingCodes := make(map[string]bool)
	for _, d := range docs {
		for _, m := range d.Spec.Mappings {
			if m.Code == "" {
				continue
			}
			if mappingCodes[m.Code] {
				add(d.Path, "duplicate mapping code %q", m.Code)
			}
			mappingCodes[m.Code] = true
		}
	}

	for _, d := range docs {
		path := fmt.Sprintf("source[%s]", d.Metadata.Name)
		if d.Path != "" {
			path = d.Path + ": " + path
		}
		switch {
		case d.Metadata.Name == "":
			add(d.Path, "metadata.name is required")
		case sourceCodes[d.Metadata.Name]:
			add(path, "duplicate source system")
		}
		sourceCodes[d.Metadata.Name] = true

		validateSource(path, &d.Spec, add)
		for i := range d.Spec.Mappings {
			m := &d.Spec.Mappings[i]
			mpath := fmt.Sprintf("%s.mapping[%s]", path, m.Code)
			if m.Code == "" {
				mpath = fmt.Sprintf("%s.mappings[%d]", path, i)
			}
			validateMapping(mpath, m, mappingCodes, add)
		}
	}
	return errs
}

type addFunc func(path, format string, args ...any)

func validateSource(path string, s *SourceSystemSpec, add addFunc) {
	if s.Driver == "" {
		add(path, "spec.driver is required")
	} else if _, err := connector.DialectFor(s.Driver); err != nil {
		add(path, "spec.driver: %v", err)
	}
	switch {
	case s.DSN == "" && s.DSNFromEnv == "":
		add(path, "one of spec.dsn or spec.dsn_from_env is required")
	case s.DSN != "" && s.DSNFromEnv != "":
		add(path, "spec.dsn and spec.dsn_from_env are mutually exclusive")
	}
	if s.Schedule != "" {
		if _, err := cron.ParseStandard(s.Schedule); err != nil {
			add(path, "spec.schedule %q: %v", s.Schedule, err)
		}
	}
}

func validateMapping(path string, m *MappingSpec, known map[string]bool, add addFunc) {
	if m.Code == "" {
		add(path, "code is required")
	}
	if err := connector.ValidateLocation(domain.TableLocation{Schema: m.Source.Schema, Table: m.Source.Table}); err != nil {
		add(path, "source: %v", err)
	}
	if err := connector.ValidateLocation(domain.TableLocation{Schema: m.Target.Schema, Table: m.Target.Table}); err != nil {
		add(path, "target: %v", err)
	}

	load := upperOr(m.LoadStrategy, domain.LoadStrategyFull)
	merge := upperOr(m.MergeStrategy, domain.MergeUpsert)
	if !validLoadStrategies[load] {
		add(path, "invalid load_strategy %q", m.LoadStrategy)
	}
	if !validMergeStrategies[merge] {
		add(path, "invalid merge_strategy %q", m.MergeStrategy)
	}
	if load == domain.LoadStrategyIncremental && m.IncrementalColumn == "" {
		add(path, "INCREMENTAL load_strategy requires incremental_column")
	}
	if m.IncrementalColumn != "" {
		if err := connector.ValidateIdentifier(m.IncrementalColumn); err != nil {
			add(path, "incremental_column: %v", err)
		}
	}
	if merge != domain.MergeInsertOnly && len(targetKeys(m)) == 0 {
		add(path, "%s merge_strategy requires target.key_columns or key columns", merge)
	}
	if m.DependencyKind != "" && !validDependencyKinds[strings.ToUpper(m.DependencyKind)] {
		add(path, "invalid dependency_kind %q", m.DependencyKind)
	}
	for _, dep := range m.DependsOn {
		switch {
		case dep == m.Code:
			add(path, "mapping cannot depend on itself")
		case !known[dep]:
			add(path, "depends_on references unknown mapping %q", dep)
		}
	}

	targets := make(map[string]bool, len(m.Columns))
	for i := range m.Columns {
		c := &m.Columns[i]
		cpath := fmt.Sprintf("%s.column[%s]", path, c.Target)
		if c.Target == "" {
			add(fmt.Sprintf("%s.columns[%d]", path, i), "target is required")
			continue
		}
		if targets[c.Target] {
			add(cpath, "duplicate target column")
		}
		targets[c.Target] = true
		validateColumn(cpath, c, add)
	}

	ruleCodes := make(map[string]bool, len(m.QualityRules))
	for i := range m.QualityRules {
		r := &m.QualityRules[i]
		rpath := fmt.Sprintf("%s.rule[%s]", path, r.Code)
		if r.Code == "" {
			add(fmt.Sprintf("%s.quality_rules[%d]", path, i), "code is required")
			continue
		}
		if ruleCodes[r.Code] {
			add(rpath, "duplicate rule code")
		}
		ruleCodes[r.Code] = true
		validateRule(rpath, r, add)
	}
}

func validateColumn(path string, c *ColumnSpec, add addFunc) {
	kind, err := domain.ParseTransformKind(c.Transform)
	if err != nil {
		add(path, "%v", err)
		return
	}
	switch kind {
	case domain.TransformExpression, domain.TransformFunction:
		if strings.TrimSpace(c.Definition) == "" {
			add(path, "%s transform requires a definition", kind)
		}
	case domain.TransformLookup:
		if len(c.Lookups) == 0 {
			add(path, "LOOKUP transform requires at least one lookup entry")
		}
	}
	if kind != domain.TransformLookup && (len(c.Lookups) > 0 || c.Fallback != nil) {
		add(path, "lookups are only allowed on LOOKUP columns")
	}
	seen := make(map[string]bool, len(c.Lookups))
	for _, l := range c.Lookups {
		if seen[l.Source] {
			add(path, "duplicate lookup source value %q", l.Source)
		}
		seen[l.Source] = true
	}
}

func validateRule(path string, r *RuleSpec, add addFunc) {
	kind, err := domain.ParseRuleKind(r.Kind)
	if err != nil {
		add(path, "%v", err)
		return
	}
	if _, err := domain.ParseSeverity(r.Severity); err != nil {
		add(path, "%v", err)
	}
	if _, err := domain.ParseAction(r.Action); err != nil {
		add(path, "%v", err)
	}
	if kind != domain.RuleCustom && r.Column == "" {
		add(path, "%s rule requires a column", kind)
	}

	switch kind {
	case domain.RulePattern:
		if r.Definition == "" {
			add(path, "PATTERN rule requires a definition")
		} else if _, err := regexp.Compile(r.Definition); err != nil {
			add(path, "invalid pattern: %v", err)
		}
	case domain.RuleRange:
		if r.Min == nil && r.Max == nil {
			add(path, "RANGE rule requires min or max")
		}
		for _, v := range []*string{r.Min, r.Max} {
			if v == nil {
				continue
			}
			if _, err := strconv.ParseFloat(*v, 64); err != nil {
				add(path, "RANGE bound %q is not a number", *v)
			}
		}
	case domain.RuleDateRange:
		if r.Min == nil && r.Max == nil {
			add(path, "DATE_RANGE rule requires min or max")
		}
	case domain.RuleLength:
		if r.MinLength == nil && r.MaxLength == nil {
			add(path, "LENGTH rule requires min_length or max_length")
		}
		if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
			add(path, "min_length exceeds max_length")
		}
	case domain.RuleCustom:
		if strings.TrimSpace(r.Definition) == "" {
			add(path, "CUSTOM rule requires a definition")
		}
	}
}

// targetKeys returns the declared target keys, or the target names of key
// columns when none are declared.
func targetKeys(m *MappingSpec) []string {
	if len(m.Target.KeyColumns) > 0 {
		return m.Target.KeyColumns
	}
	var keys []string
	for _, c := range m.Columns {
		if c.Key {
			keys = append(keys, c.Target)
		}
	}
	return keys
}

func upperOr(s, def string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}
