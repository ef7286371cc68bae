package testsupport

import (
	"context"
	"testing"

	"penman/internal/config"
	"penman/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a queue item for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, source string, kind queue.SourceKind) *queue.Item {
	t.Helper()

	item, err := store.Enqueue(context.Background(), source, kind, "")
	if err != nil {
		t.Fatalf("store.Enqueue(%q): %v", source, err)
	}
	return item
}
