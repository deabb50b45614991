// Package testing provides test helpers shared across packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/rao/internal/database"
)

// NewTestDB creates a migrated SQLite database in a per-test temporary
// directory. The returned cleanup function closes the connection; it is
// also registered with t.Cleanup, and calling it twice is safe.
//
// name selects the embedded schema, e.g. "runs" applies runs_schema.sql.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	}
	t.Cleanup(cleanup)
	return db, cleanup
}
