// Package testdb provides migrated in-memory databases for tests.
//
// It lives apart from testutil so that packages imported by storage can still use
// the synthetic log builders without an import cycle.
package testdb

import (
	"context"
	"testing"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/storage"
)

// Options seeds a test database.
type Options struct {
	CustomSetup     func(context.Context, *storage.SQLiteStorage) error
	Mappings        map[model.HeaderFingerprint]model.ColumnMapping
	Classifications map[model.HeaderFingerprint]model.ClassificationRecord
	SkipMigrations  bool
}

// Setup creates a migrated in-memory database that is closed when the test ends.
//
// Example:
//
//	store := testdb.Setup(t)
//	cache, err := store.LoadClassificationCache(ctx)
func Setup(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	return SetupWithOptions(t, Options{})
}

// SetupWithOptions creates an in-memory database seeded from opts.
func SetupWithOptions(t *testing.T, opts Options) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for fp, mapping := range opts.Mappings {
		if err := store.SaveColumnMapping(ctx, fp, mapping); err != nil {
			t.Fatalf("failed to seed column mapping: %v", err)
		}
	}
	for fp, rec := range opts.Classifications {
		if err := store.SaveClassificationRecord(ctx, fp, rec); err != nil {
			t.Fatalf("failed to seed classification record: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return store
}
