package repository

import (
	"context"

	"duck-ingest/internal/domain"
)

// ListDependencies returns the edges whose child is mappingID.
func (c *Catalog) ListDependencies(ctx context.Context, mappingID int64) ([]domain.DependencyEdge, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT parent_mapping_id, child_mapping_id, dependency_kind
		FROM mapping_dependencies
		WHERE child_mapping_id = ?
		ORDER BY id
	`, mappingID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DependencyEdge
	for rows.Next() {
		var e domain.DependencyEdge
		if err := rows.Scan(&e.ParentMappingID, &e.ChildMappingID, &e.Kind); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
