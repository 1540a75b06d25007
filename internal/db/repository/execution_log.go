package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"duck-ingest/internal/domain"
)

const executionColumns = `e.id, e.source_system_id, e.mapping_id, m.mapping_code, e.execution_type, e.execution_mode,
	e.status, e.triggered_by, e.parameters, e.rows_extracted, e.rows_validated, e.rows_rejected, e.rows_loaded,
	e.error_message, e.started_at, e.finished_at`

// StartExecution inserts a RUNNING execution row for a mapping and returns
// its id.
func (c *Catalog) StartExecution(ctx context.Context, req domain.StartExecutionRequest) (string, error) {
	var sourceSystemID int64
	err := c.writeDB.QueryRowContext(ctx,
		`SELECT source_system_id FROM table_mappings WHERE id = ?`, req.MappingID).Scan(&sourceSystemID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound("table mapping %d not found", req.MappingID)
	}
	if err != nil {
		return "", mapDBError(err)
	}

	params := req.Parameters
	if params == nil {
		params = map[string]string{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal parameters: %w", err)
	}

	id := domain.NewID()
	_, err = c.writeDB.ExecContext(ctx, `
		INSERT INTO execution_log (id, source_system_id, mapping_id, execution_type, execution_mode,
		                           status, triggered_by, parameters, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, sourceSystemID, req.MappingID, req.ExecutionType, req.ExecutionMode,
		domain.ExecutionStatusRunning, req.TriggeredBy, string(paramsJSON), formatTime(time.Now()))
	if err != nil {
		return "", mapDBError(err)
	}
	return id, nil
}

// EndExecution seals an execution with a terminal status and its counters.
func (c *Catalog) EndExecution(ctx context.Context, executionID string, status string, counts domain.ExecutionCounts, errMsg *string) error {
	if !domain.IsTerminalStatus(status) {
		return domain.ErrValidation("status %q is not terminal", status)
	}
	res, err := c.writeDB.ExecContext(ctx, `
		UPDATE execution_log
		SET status = ?, rows_extracted = ?, rows_validated = ?, rows_rejected = ?, rows_loaded = ?,
		    error_message = ?, finished_at = ?
		WHERE id = ?
	`, status, counts.Extracted, counts.Validated, counts.Rejected, counts.Loaded,
		nullableString(errMsg), formatTime(time.Now()), executionID)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound("execution %q not found", executionID)
	}
	return nil
}

// GetExecution returns one execution by id.
func (c *Catalog) GetExecution(ctx context.Context, id string) (*domain.ExecutionLog, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM execution_log e JOIN table_mappings m ON m.id = e.mapping_id
		WHERE e.id = ?
	`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("execution %q not found", id)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return e, nil
}

// ListExecutions returns executions newest first.
func (c *Catalog) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.MappingID != nil {
		where = append(where, "e.mapping_id = ?")
		args = append(args, *filter.MappingID)
	}
	if filter.Status != nil {
		where = append(where, "e.status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + executionColumns + ` FROM execution_log e JOIN table_mappings m ON m.id = e.mapping_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.started_at DESC, e.id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.ExecutionLog
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// LastSuccessfulExecution returns the most recent LIVE execution of a
// mapping that ended in SUCCESS, or a NotFoundError when there is none.
// Dry runs load nothing, so they never advance the watermark.
func (c *Catalog) LastSuccessfulExecution(ctx context.Context, mappingID int64) (*domain.ExecutionLog, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM execution_log e JOIN table_mappings m ON m.id = e.mapping_id
		WHERE e.mapping_id = ? AND e.status = ? AND e.execution_mode = ?
		ORDER BY e.started_at DESC, e.id DESC
		LIMIT 1
	`, mappingID, domain.ExecutionStatusSuccess, domain.ExecutionModeLive)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("no successful execution for mapping %d", mappingID)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return e, nil
}

func scanExecution(row rowScanner) (*domain.ExecutionLog, error) {
	var (
		e          domain.ExecutionLog
		params     string
		errMsg     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&e.ID, &e.SourceSystemID, &e.MappingID, &e.MappingCode, &e.ExecutionType,
		&e.ExecutionMode, &e.Status, &e.TriggeredBy, &params,
		&e.Counts.Extracted, &e.Counts.Validated, &e.Counts.Rejected, &e.Counts.Loaded,
		&errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
			return nil, fmt.Errorf("execution %s: unmarshal parameters: %w", e.ID, err)
		}
	}
	e.ErrorMessage = stringPtr(errMsg)

	var err error
	if e.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("execution %s: %w", e.ID, err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("execution %s: %w", e.ID, err)
		}
		e.FinishedAt = &t
	}
	return &e, nil
}
