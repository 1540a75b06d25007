// Package db opens the SQLite metadata catalog and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // catalog driver
)

// Mode selects how a catalog pool is configured.
type Mode string

const (
	// ModeWrite is a single-connection pool with immediate transactions.
	ModeWrite Mode = "write"
	// ModeRead is a multi-connection pool for concurrent readers.
	ModeRead Mode = "read"
)

// Hardened SQLite DSN parameters shared by both modes.
const (
	busyTimeoutMillis = "5000"
	synchronousMode   = "NORMAL"
	journalMode       = "WAL"
	defaultReadConns  = 4
	pingTimeout       = 5 * time.Second
)

// Open opens a *sql.DB pool on the catalog file at path.
//
// ModeWrite caps the pool at one connection and uses _txlock=immediate so
// lineage writes from concurrent mapping workers serialize instead of
// failing with SQLITE_BUSY. ModeRead sizes the pool to readConns (0 means 4).
func Open(path string, mode Mode, readConns int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid catalog mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	pool, err := sql.Open("sqlite3", catalogDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open catalog (%s): %w", mode, err)
	}

	if mode == ModeWrite {
		pool.SetMaxOpenConns(1)
		pool.SetMaxIdleConns(1)
	} else {
		if readConns <= 0 {
			readConns = defaultReadConns
		}
		pool.SetMaxOpenConns(readConns)
		pool.SetMaxIdleConns(readConns)
	}
	pool.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping catalog (%s): %w", mode, err)
	}
	return pool, nil
}

// OpenPair opens the write pool and a read pool over the same catalog file.
func OpenPair(path string, readConns int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = Open(path, ModeWrite, 0)
	if err != nil {
		return nil, nil, err
	}
	readDB, err = Open(path, ModeRead, readConns)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}
	return writeDB, readDB, nil
}

func catalogDSN(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeoutMillis)
	params.Set("_synchronous", synchronousMode)
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
