package repository

import (
	"context"
	"database/sql"
	"fmt"

	"duck-ingest/internal/domain"
)

// ListColumnMappings returns the column mappings of a table mapping in
// declared order.
func (c *Catalog) ListColumnMappings(ctx context.Context, mappingID int64) ([]domain.ColumnMapping, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT id, table_mapping_id, ordinal, source_column, target_column, transform_kind,
		       transform_definition, is_key, is_nullable, default_value, target_type
		FROM column_mappings
		WHERE table_mapping_id = ?
		ORDER BY ordinal, id
	`, mappingID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.ColumnMapping
	for rows.Next() {
		var (
			cm              domain.ColumnMapping
			kind            string
			isKey, nullable int64
			defaultValue    sql.NullString
		)
		if err := rows.Scan(&cm.ID, &cm.TableMappingID, &cm.Ordinal, &cm.SourceColumn, &cm.TargetColumn,
			&kind, &cm.Definition, &isKey, &nullable, &defaultValue, &cm.TargetType); err != nil {
			return nil, err
		}
		cm.Kind, err = domain.ParseTransformKind(kind)
		if err != nil {
			return nil, fmt.Errorf("column mapping %d: %w", cm.ID, err)
		}
		cm.IsKey = isKey != 0
		cm.IsNullable = nullable != 0
		cm.DefaultValue = stringPtr(defaultValue)
		out = append(out, cm)
	}
	return out, rows.Err()
}

// ListLookupMappings returns every lookup entry attached to the column
// mappings of a table mapping, in id order.
func (c *Catalog) ListLookupMappings(ctx context.Context, mappingID int64) ([]domain.LookupMapping, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT l.id, l.column_mapping_id, l.source_value, l.target_value, l.fallback_value
		FROM lookup_mappings l
		JOIN column_mappings cm ON cm.id = l.column_mapping_id
		WHERE cm.table_mapping_id = ?
		ORDER BY l.id
	`, mappingID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.LookupMapping
	for rows.Next() {
		var (
			l        domain.LookupMapping
			fallback sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ColumnMappingID, &l.SourceValue, &l.TargetValue, &fallback); err != nil {
			return nil, err
		}
		l.FallbackValue = stringPtr(fallback)
		out = append(out, l)
	}
	return out, rows.Err()
}
