// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/JonMunkholm/tradejournal/internal/store"
)

// SetupTestDB creates a migrated in-memory SQLite database.
// The database is closed when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // schema is in place
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := store.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateOwner inserts an owner row and returns its id.
func CreateOwner(t *testing.T, db *sql.DB, id string) string {
	t.Helper()

	if err := store.CreateOwner(context.Background(), db, store.Owner{ID: id, Email: id + "@example.com"}); err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}
	return id
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
