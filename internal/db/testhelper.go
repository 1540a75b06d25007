package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestCatalog opens a migrated write/read pool pair in t.TempDir() and
// registers cleanup.
func OpenTestCatalog(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	writeDB, readDB, err := OpenPair(filepath.Join(t.TempDir(), "catalog.sqlite"), 4)
	if err != nil {
		t.Fatalf("open test catalog: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := Migrate(writeDB); err != nil {
		t.Fatalf("migrate test catalog: %v", err)
	}
	return writeDB, readDB
}
