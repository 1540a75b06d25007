package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"duck-ingest/internal/domain"
)

const sourceSystemColumns = `id, code, name, driver, dsn, extraction_method, schedule_cron, is_active, created_at`

// GetSourceSystem returns a source system by code.
func (c *Catalog) GetSourceSystem(ctx context.Context, code string) (*domain.SourceSystem, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT `+sourceSystemColumns+` FROM source_systems WHERE code = ?`, code)
	s, err := c.scanSourceSystem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("source system %q not found", code)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return s, nil
}

// GetSourceSystemByID returns a source system by id.
func (c *Catalog) GetSourceSystemByID(ctx context.Context, id int64) (*domain.SourceSystem, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT `+sourceSystemColumns+` FROM source_systems WHERE id = ?`, id)
	s, err := c.scanSourceSystem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("source system %d not found", id)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return s, nil
}

// ListSourceSystems returns all source systems ordered by code.
func (c *Catalog) ListSourceSystems(ctx context.Context) ([]domain.SourceSystem, error) {
	rows, err := c.readDB.QueryContext(ctx,
		`SELECT `+sourceSystemColumns+` FROM source_systems ORDER BY code`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.SourceSystem
	for rows.Next() {
		s, err := c.scanSourceSystem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (c *Catalog) scanSourceSystem(row rowScanner) (*domain.SourceSystem, error) {
	var (
		s         domain.SourceSystem
		cron      sql.NullString
		active    int64
		createdAt string
	)
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Driver, &s.DSN, &s.ExtractionMethod,
		&cron, &active, &createdAt); err != nil {
		return nil, err
	}
	dsn, err := c.sealer.Open(s.DSN)
	if err != nil {
		return nil, fmt.Errorf("source system %q: open dsn: %w", s.Code, err)
	}
	s.DSN = dsn
	s.ScheduleCron = stringPtr(cron)
	s.IsActive = active != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("source system %q: %w", s.Code, err)
	}
	s.CreatedAt = t
	return &s, nil
}
