package db

import (
	"path/filepath"
	"testing"
)

// newTestDB opens a fully migrated database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenAndMigrate: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
