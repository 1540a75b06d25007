package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"duck-ingest/internal/domain"
)

// ApplyConfig upserts a configuration bundle by code inside one
// transaction. Column mappings, lookups, rules and dependency edges of every
// mapping in the bundle are replaced wholesale; mappings absent from the
// bundle are left untouched.
func (c *Catalog) ApplyConfig(ctx context.Context, bundle *domain.ConfigBundle) (*domain.ApplySummary, error) {
	if bundle == nil {
		return nil, domain.ErrValidation("config bundle is required")
	}

	tx, err := c.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	summary := &domain.ApplySummary{}
	mappingIDs := make(map[string]int64)

	for i := range bundle.Sources {
		src := &bundle.Sources[i]
		sourceID, err := c.upsertSourceSystem(ctx, tx, &src.System)
		if err != nil {
			return nil, fmt.Errorf("source system %q: %w", src.System.Code, err)
		}
		summary.SourceSystems++

		for j := range src.Mappings {
			mc := &src.Mappings[j]
			mappingID, err := upsertTableMapping(ctx, tx, sourceID, &mc.Mapping)
			if err != nil {
				return nil, fmt.Errorf("mapping %q: %w", mc.Mapping.Code, err)
			}
			mappingIDs[mc.Mapping.Code] = mappingID
			summary.Mappings++

			cols, lookups, err := replaceColumns(ctx, tx, mappingID, mc.Columns)
			if err != nil {
				return nil, fmt.Errorf("mapping %q: %w", mc.Mapping.Code, err)
			}
			summary.ColumnMappings += cols
			summary.LookupEntries += lookups

			rules, err := replaceRules(ctx, tx, mappingID, mc.Rules)
			if err != nil {
				return nil, fmt.Errorf("mapping %q: %w", mc.Mapping.Code, err)
			}
			summary.QualityRules += rules
		}
	}

	// Edges are written after every mapping exists so a parent may be
	// declared later in the bundle than its child.
	for i := range bundle.Sources {
		for j := range bundle.Sources[i].Mappings {
			mc := &bundle.Sources[i].Mappings[j]
			n, err := replaceDependencies(ctx, tx, mappingIDs[mc.Mapping.Code], mc.Dependencies)
			if err != nil {
				return nil, fmt.Errorf("mapping %q: %w", mc.Mapping.Code, err)
			}
			summary.Dependencies += n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return summary, nil
}

func (c *Catalog) upsertSourceSystem(ctx context.Context, tx *sql.Tx, s *domain.SourceSystem) (int64, error) {
	dsn, err := c.sealer.Seal(s.DSN)
	if err != nil {
		return 0, fmt.Errorf("source system %q: seal dsn: %w", s.Code, err)
	}
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO source_systems (code, name, driver, dsn, extraction_method, schedule_cron, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			driver = excluded.driver,
			dsn = excluded.dsn,
			extraction_method = excluded.extraction_method,
			schedule_cron = excluded.schedule_cron,
			is_active = excluded.is_active,
			updated_at = datetime('now')
		RETURNING id
	`, s.Code, s.Name, s.Driver, dsn, s.ExtractionMethod, nullableString(s.ScheduleCron),
		boolToInt(s.IsActive)).Scan(&id)
	if err != nil {
		return 0, mapDBError(err)
	}
	s.ID = id
	return id, nil
}

func upsertTableMapping(ctx context.Context, tx *sql.Tx, sourceID int64, m *domain.TableMapping) (int64, error) {
	srcKeys, err := encodeColumns(m.SourceKeyColumns)
	if err != nil {
		return 0, err
	}
	targetKeys, err := encodeColumns(m.TargetKeyColumns)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO table_mappings (mapping_code, source_system_id, source_schema, source_table, source_filter,
		                            target_schema, target_table, source_key_columns, target_key_columns,
		                            load_strategy, merge_strategy, incremental_column, priority, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mapping_code) DO UPDATE SET
			source_system_id = excluded.source_system_id,
			source_schema = excluded.source_schema,
			source_table = excluded.source_table,
			source_filter = excluded.source_filter,
			target_schema = excluded.target_schema,
			target_table = excluded.target_table,
			source_key_columns = excluded.source_key_columns,
			target_key_columns = excluded.target_key_columns,
			load_strategy = excluded.load_strategy,
			merge_strategy = excluded.merge_strategy,
			incremental_column = excluded.incremental_column,
			priority = excluded.priority,
			is_active = excluded.is_active,
			updated_at = datetime('now')
		RETURNING id
	`, m.Code, sourceID, m.SourceSchema, m.SourceTable, m.SourceFilter,
		m.TargetSchema, m.TargetTable, srcKeys, targetKeys,
		m.LoadStrategy, m.MergeStrategy, m.IncrementalColumn, m.Priority, boolToInt(m.IsActive)).Scan(&id)
	if err != nil {
		return 0, mapDBError(err)
	}
	m.ID = id
	m.SourceSystemID = sourceID
	return id, nil
}

func replaceColumns(ctx context.Context, tx *sql.Tx, mappingID int64, columns []domain.ColumnConfig) (cols, lookups int, err error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM column_mappings WHERE table_mapping_id = ?`, mappingID); err != nil {
		return 0, 0, mapDBError(err)
	}

	for i := range columns {
		cm := &columns[i].Column
		var columnID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO column_mappings (table_mapping_id, ordinal, source_column, target_column, transform_kind,
			                             transform_definition, is_key, is_nullable, default_value, target_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, mappingID, cm.Ordinal, cm.SourceColumn, cm.TargetColumn, cm.Kind.String(),
			cm.Definition, boolToInt(cm.IsKey), boolToInt(cm.IsNullable), nullableString(cm.DefaultValue),
			cm.TargetType).Scan(&columnID)
		if err != nil {
			return 0, 0, fmt.Errorf("column %q: %w", cm.TargetColumn, mapDBError(err))
		}
		cm.ID = columnID
		cm.TableMappingID = mappingID
		cols++

		for j := range columns[i].Lookups {
			l := &columns[i].Lookups[j]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lookup_mappings (column_mapping_id, source_value, target_value, fallback_value)
				VALUES (?, ?, ?, ?)
			`, columnID, l.SourceValue, l.TargetValue, nullableString(l.FallbackValue)); err != nil {
				return 0, 0, fmt.Errorf("lookup on %q: %w", cm.TargetColumn, mapDBError(err))
			}
			l.ColumnMappingID = columnID
			lookups++
		}
	}
	return cols, lookups, nil
}

func replaceRules(ctx context.Context, tx *sql.Tx, mappingID int64, rules []domain.DataQualityRule) (int, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM quality_rules WHERE table_mapping_id = ?`, mappingID); err != nil {
		return 0, mapDBError(err)
	}
	for i := range rules {
		r := &rules[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO quality_rules (table_mapping_id, rule_code, rule_kind, column_name, definition,
			                           min_value, max_value, min_length, max_length, severity,
			                           action_on_failure, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, mappingID, r.Code, string(r.Kind), r.Column, r.Definition,
			nullableString(r.MinValue), nullableString(r.MaxValue), nullableInt(r.MinLength), nullableInt(r.MaxLength),
			string(r.Severity), string(r.Action), boolToInt(r.IsActive))
		if err != nil {
			return 0, fmt.Errorf("rule %q: %w", r.Code, mapDBError(err))
		}
		if id, err := res.LastInsertId(); err == nil {
			r.ID = id
		}
		r.TableMappingID = mappingID
	}
	return len(rules), nil
}

func replaceDependencies(ctx context.Context, tx *sql.Tx, childID int64, deps []domain.DependencyRef) (int, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM mapping_dependencies WHERE child_mapping_id = ?`, childID); err != nil {
		return 0, mapDBError(err)
	}
	n := 0
	for _, d := range deps {
		var parentID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM table_mappings WHERE mapping_code = ?`, d.ParentCode).Scan(&parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrValidation("dependency on unknown mapping %q", d.ParentCode)
		}
		if err != nil {
			return 0, mapDBError(err)
		}
		kind := d.Kind
		if kind == "" {
			kind = domain.DependencyKindData
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO mapping_dependencies (parent_mapping_id, child_mapping_id, dependency_kind)
			VALUES (?, ?, ?)
			ON CONFLICT (parent_mapping_id, child_mapping_id) DO NOTHING
		`, parentID, childID, kind)
		if err != nil {
			return 0, mapDBError(err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			n++
		}
	}
	return n, nil
}
