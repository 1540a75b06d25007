package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"duck-ingest/internal/domain"
)

const tableMappingColumns = `id, mapping_code, source_system_id, source_schema, source_table, source_filter,
	target_schema, target_table, source_key_columns, target_key_columns, load_strategy, merge_strategy,
	incremental_column, priority, is_active, created_at`

// GetTableMapping returns a table mapping by id.
func (c *Catalog) GetTableMapping(ctx context.Context, id int64) (*domain.TableMapping, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT `+tableMappingColumns+` FROM table_mappings WHERE id = ?`, id)
	m, err := scanTableMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("table mapping %d not found", id)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return m, nil
}

// GetTableMappingByCode returns a table mapping by its unique code.
func (c *Catalog) GetTableMappingByCode(ctx context.Context, code string) (*domain.TableMapping, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT `+tableMappingColumns+` FROM table_mappings WHERE mapping_code = ?`, code)
	m, err := scanTableMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("table mapping %q not found", code)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return m, nil
}

// ListTableMappings returns the mappings of a source system ordered by
// priority, then id.
func (c *Catalog) ListTableMappings(ctx context.Context, sourceSystemID int64, activeOnly bool) ([]domain.TableMapping, error) {
	query := `SELECT ` + tableMappingColumns + ` FROM table_mappings WHERE source_system_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY priority, id`

	rows, err := c.readDB.QueryContext(ctx, query, sourceSystemID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.TableMapping
	for rows.Next() {
		m, err := scanTableMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanTableMapping(row rowScanner) (*domain.TableMapping, error) {
	var (
		m                  domain.TableMapping
		srcKeys, targetKey string
		active             int64
		createdAt          string
	)
	if err := row.Scan(&m.ID, &m.Code, &m.SourceSystemID, &m.SourceSchema, &m.SourceTable, &m.SourceFilter,
		&m.TargetSchema, &m.TargetTable, &srcKeys, &targetKey, &m.LoadStrategy, &m.MergeStrategy,
		&m.IncrementalColumn, &m.Priority, &active, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if m.SourceKeyColumns, err = decodeColumns(srcKeys); err != nil {
		return nil, fmt.Errorf("mapping %q: %w", m.Code, err)
	}
	if m.TargetKeyColumns, err = decodeColumns(targetKey); err != nil {
		return nil, fmt.Errorf("mapping %q: %w", m.Code, err)
	}
	m.IsActive = active != 0
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("mapping %q: %w", m.Code, err)
	}
	return &m, nil
}
