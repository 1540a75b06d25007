package declarative

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"duck-ingest/internal/domain"
)

// ToBundle converts validated documents into a catalog configuration
// bundle. DSNs declared through dsn_from_env are resolved here.
func ToBundle(docs []SourceSystemDoc) (*domain.ConfigBundle, error) {
	bundle := &domain.ConfigBundle{Sources: make([]domain.SourceConfig, 0, len(docs))}
	for _, d := range docs {
		dsn := d.Spec.DSN
		if d.Spec.DSNFromEnv != "" {
			dsn = os.Getenv(d.Spec.DSNFromEnv)
			if dsn == "" {
				return nil, domain.ErrValidation("source %q: environment variable %s is not set", d.Metadata.Name, d.Spec.DSNFromEnv)
			}
		}
		sys := domain.SourceSystem{
			Code:             d.Metadata.Name,
			Name:             d.Spec.DisplayName,
			Driver:           d.Spec.Driver,
			DSN:              dsn,
			ExtractionMethod: upperOr(d.Spec.ExtractionMethod, "QUERY"),
			IsActive:         boolOr(d.Spec.Active, true),
		}
		if sys.Name == "" {
			sys.Name = sys.Code
		}
		if d.Spec.Schedule != "" {
			s := d.Spec.Schedule
			sys.ScheduleCron = &s
		}

		sc := domain.SourceConfig{System: sys}
		for i := range d.Spec.Mappings {
			mc, err := mappingConfig(&d.Spec.Mappings[i])
			if err != nil {
				return nil, fmt.Errorf("mapping %q: %w", d.Spec.Mappings[i].Code, err)
			}
			sc.Mappings = append(sc.Mappings, mc)
		}
		bundle.Sources = append(bundle.Sources, sc)
	}
	return bundle, nil
}

func mappingConfig(m *MappingSpec) (domain.MappingConfig, error) {
	mc := domain.MappingConfig{
		Mapping: domain.TableMapping{
			Code:              m.Code,
			SourceSchema:      m.Source.Schema,
			SourceTable:       m.Source.Table,
			SourceFilter:      m.Source.Filter,
			TargetSchema:      m.Target.Schema,
			TargetTable:       m.Target.Table,
			SourceKeyColumns:  m.Source.KeyColumns,
			TargetKeyColumns:  targetKeys(m),
			LoadStrategy:      upperOr(m.LoadStrategy, domain.LoadStrategyFull),
			MergeStrategy:     upperOr(m.MergeStrategy, domain.MergeUpsert),
			IncrementalColumn: m.IncrementalColumn,
			Priority:          m.Priority,
			IsActive:          boolOr(m.Active, true),
		},
	}

	for i, c := range m.Columns {
		kind, err := domain.ParseTransformKind(c.Transform)
		if err != nil {
			return mc, err
		}
		source := c.Source
		if source == "" {
			source = c.Target
		}
		cc := domain.ColumnConfig{Column: domain.ColumnMapping{
			Ordinal:      i + 1,
			SourceColumn: source,
			TargetColumn: c.Target,
			Kind:         kind,
			Definition:   c.Definition,
			IsKey:        c.Key,
			IsNullable:   boolOr(c.Nullable, true),
			DefaultValue: c.Default,
			TargetType:   c.Type,
		}}
		for _, l := range c.Lookups {
			cc.Lookups = append(cc.Lookups, domain.LookupMapping{
				SourceValue:   l.Source,
				TargetValue:   l.Target,
				FallbackValue: c.Fallback,
			})
		}
		mc.Columns = append(mc.Columns, cc)
	}

	for _, r := range m.QualityRules {
		kind, err := domain.ParseRuleKind(r.Kind)
		if err != nil {
			return mc, err
		}
		severity, err := domain.ParseSeverity(r.Severity)
		if err != nil {
			return mc, err
		}
		action, err := domain.ParseAction(r.Action)
		if err != nil {
			return mc, err
		}
		mc.Rules = append(mc.Rules, domain.DataQualityRule{
			Code:       r.Code,
			Kind:       kind,
			Column:     r.Column,
			Definition: r.Definition,
			MinValue:   r.Min,
			MaxValue:   r.Max,
			MinLength:  r.MinLength,
			MaxLength:  r.MaxLength,
			Severity:   severity,
			Action:     action,
			IsActive:   boolOr(r.Active, true),
		})
	}

	depKind := upperOr(m.DependencyKind, domain.DependencyKindData)
	for _, parent := range m.DependsOn {
		mc.Dependencies = append(mc.Dependencies, domain.DependencyRef{ParentCode: parent, Kind: depKind})
	}
	return mc, nil
}

// Apply validates docs and writes them to the catalog in one transaction.
// Validation problems are returned together as a *domain.ValidationError.
func Apply(ctx context.Context, w domain.ConfigWriter, docs []SourceSystemDoc) (*domain.ApplySummary, error) {
	if errs := Validate(docs); len(errs) > 0 {
		return nil, joinValidation(errs)
	}
	bundle, err := ToBundle(docs)
	if err != nil {
		return nil, err
	}
	summary, err := w.ApplyConfig(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("apply config: %w", err)
	}
	return summary, nil
}

func joinValidation(errs []ValidationError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return errors.Join(
		domain.ErrValidation("%d configuration problem(s)", len(errs)),
		errors.New(strings.Join(msgs, "\n")),
	)
}
