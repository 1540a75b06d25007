package repository

import (
	"context"
	"database/sql"
	"fmt"

	"duck-ingest/internal/domain"
)

// ListQualityRules returns the active quality rules of a table mapping.
func (c *Catalog) ListQualityRules(ctx context.Context, mappingID int64) ([]domain.DataQualityRule, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT id, table_mapping_id, rule_code, rule_kind, column_name, definition,
		       min_value, max_value, min_length, max_length, severity, action_on_failure, is_active
		FROM quality_rules
		WHERE table_mapping_id = ? AND is_active = 1
		ORDER BY id
	`, mappingID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DataQualityRule
	for rows.Next() {
		var (
			r                    domain.DataQualityRule
			kind, sev, action    string
			minValue, maxValue   sql.NullString
			minLength, maxLength sql.NullInt64
			active               int64
		)
		if err := rows.Scan(&r.ID, &r.TableMappingID, &r.Code, &kind, &r.Column, &r.Definition,
			&minValue, &maxValue, &minLength, &maxLength, &sev, &action, &active); err != nil {
			return nil, err
		}
		if r.Kind, err = domain.ParseRuleKind(kind); err != nil {
			return nil, fmt.Errorf("quality rule %q: %w", r.Code, err)
		}
		if r.Severity, err = domain.ParseSeverity(sev); err != nil {
			return nil, fmt.Errorf("quality rule %q: %w", r.Code, err)
		}
		if r.Action, err = domain.ParseAction(action); err != nil {
			return nil, fmt.Errorf("quality rule %q: %w", r.Code, err)
		}
		r.MinValue = stringPtr(minValue)
		r.MaxValue = stringPtr(maxValue)
		r.MinLength = intPtr(minLength)
		r.MaxLength = intPtr(maxLength)
		r.IsActive = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
