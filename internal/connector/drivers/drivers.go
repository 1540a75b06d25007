// Package drivers registers the database/sql drivers that source systems
// and load targets may name.
package drivers

import (
	_ "github.com/duckdb/duckdb-go/v2" // "duckdb"
	_ "github.com/go-sql-driver/mysql" // "mysql"
	_ "github.com/lib/pq"              // "postgres"
	_ "github.com/mattn/go-sqlite3"    // "sqlite3"
)
