package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// openTestDB opens a migrated SQLite database in a temp directory.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "labelkeeper.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if _, err := MigrateUp(context.Background(), database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	return database
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}
