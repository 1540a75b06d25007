// Package connector holds what the SQL extractor and loader share: the
// per-driver SQL dialect and identifier checks.
package connector

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"duck-ingest/internal/domain"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const maxIdentifierLen = 128

// ValidateIdentifier checks that name is a plain SQL identifier.
func ValidateIdentifier(name string) error {
	if name == "" {
		return domain.ErrValidation("identifier is required")
	}
	if len(name) > maxIdentifierLen {
		return domain.ErrValidation("identifier %q exceeds %d characters", name[:32]+"...", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return domain.ErrValidation("identifier %q must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	return nil
}

// ValidateLocation checks every identifier of a table location.
func ValidateLocation(loc domain.TableLocation) error {
	if loc.Schema != "" {
		if err := ValidateIdentifier(loc.Schema); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	if err := ValidateIdentifier(loc.Table); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	return nil
}

// Dialect names.
const (
	SQLite   = "sqlite"
	DuckDB   = "duckdb"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// Dialect renders the driver-specific parts of generated SQL.
type Dialect struct {
	Name string
}

// DialectFor maps a database/sql driver name onto its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite3", "sqlite":
		return Dialect{Name: SQLite}, nil
	case "duckdb":
		return Dialect{Name: DuckDB}, nil
	case "postgres", "postgresql", "pgx":
		return Dialect{Name: Postgres}, nil
	case "mysql":
		return Dialect{Name: MySQL}, nil
	}
	return Dialect{}, domain.ErrValidation("unsupported driver %q", driver)
}

// Quote quotes one identifier.
func (d Dialect) Quote(name string) string {
	if d.Name == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Table renders a table location. SQLite has no schemas, so a schema is
// folded into the table name as schema_table.
func (d Dialect) Table(loc domain.TableLocation) string {
	switch {
	case loc.Schema == "":
		return d.Quote(loc.Table)
	case d.Name == SQLite:
		return d.Quote(loc.Schema + "_" + loc.Table)
	default:
		return d.Quote(loc.Schema) + "." + d.Quote(loc.Table)
	}
}

// Placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d.Name == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// SupportsSchemas reports whether CREATE SCHEMA is available.
func (d Dialect) SupportsSchemas() bool {
	return d.Name != SQLite
}

// QuoteList quotes and comma-joins names.
func (d Dialect) QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// UpsertClause returns the conflict clause appended to an INSERT so that
// rows matching keys update the remaining columns.
func (d Dialect) UpsertClause(columns, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		q := d.Quote(c)
		if d.Name == MySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", q, q))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
		}
	}

	if d.Name == MySQL {
		if len(sets) == 0 {
			q := d.Quote(keys[0])
			return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", q, q)
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	if len(sets) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", d.QuoteList(keys))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", d.QuoteList(keys), strings.Join(sets, ", "))
}

// ColumnType returns the column type used when a table is created from
// sample values.
func (d Dialect) ColumnType(sample any) string {
	switch sample.(type) {
	case int, int32, int64:
		return "BIGINT"
	case float32, float64:
		if d.Name == Postgres {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	case time.Time:
		return "TIMESTAMP"
	}
	if d.Name == MySQL {
		return "VARCHAR(1024)"
	}
	return "TEXT"
}
