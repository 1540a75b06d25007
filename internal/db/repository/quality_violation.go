package repository

import (
	"context"
	"database/sql"
	"fmt"

	"duck-ingest/internal/domain"
)

// LogViolation appends a quality violation to an execution.
func (c *Catalog) LogViolation(ctx context.Context, v *domain.QualityViolation) error {
	if v == nil {
		return domain.ErrValidation("violation is required")
	}
	var ruleID sql.NullInt64
	if v.RuleID != nil {
		ruleID = sql.NullInt64{Int64: *v.RuleID, Valid: true}
	}
	res, err := c.writeDB.ExecContext(ctx, `
		INSERT INTO quality_violations (execution_id, rule_id, rule_code, source_table, row_id,
		                                column_name, column_value, message, severity, action_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ExecutionID, ruleID, v.RuleCode, v.SourceTable, v.RowID,
		nullableString(v.Column), nullableString(v.Value), v.Message, string(v.Severity), string(v.Action))
	if err != nil {
		return mapDBError(err)
	}
	if id, err := res.LastInsertId(); err == nil {
		v.ID = id
	}
	return nil
}

// ListViolations returns the violations recorded for an execution.
func (c *Catalog) ListViolations(ctx context.Context, executionID string) ([]domain.QualityViolation, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT id, execution_id, rule_id, rule_code, source_table, row_id, column_name, column_value,
		       message, severity, action_taken, created_at
		FROM quality_violations
		WHERE execution_id = ?
		ORDER BY id
	`, executionID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.QualityViolation
	for rows.Next() {
		var (
			v                domain.QualityViolation
			ruleID           sql.NullInt64
			column, value    sql.NullString
			severity, action string
			createdAt        string
		)
		if err := rows.Scan(&v.ID, &v.ExecutionID, &ruleID, &v.RuleCode, &v.SourceTable, &v.RowID,
			&column, &value, &v.Message, &severity, &action, &createdAt); err != nil {
			return nil, err
		}
		if ruleID.Valid {
			id := ruleID.Int64
			v.RuleID = &id
		}
		v.Column = stringPtr(column)
		v.Value = stringPtr(value)
		v.Severity = domain.Severity(severity)
		v.Action = domain.Action(action)
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("violation %d: %w", v.ID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
