package server

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/core/auth"
	"github.com/solatis/labelkeeper/internal/core/broadcast"
	"github.com/solatis/labelkeeper/internal/core/db"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/rules"
)

// newTestService returns a LabelService on a migrated temp SQLite database.
func newTestService(t *testing.T) (*api.LabelService, *metrics.Metrics) {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open("sqlite://" + filepath.Join(dir, "labelkeeper.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if _, err := db.MigrateUp(context.Background(), database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	store, err := db.NewStore(database)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	m := metrics.New()
	svc, err := api.NewLabelService(store, rules.NewEngine(), broadcast.NewHub(), m, dir)
	if err != nil {
		t.Fatalf("NewLabelService() error = %v", err)
	}
	t.Cleanup(svc.Hub().Close)
	return svc, m
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResolver() *auth.Resolver {
	return auth.NewResolver("demo_user")
}
