package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/g960059/boardd/internal/app"
	"github.com/g960059/boardd/internal/eventlog"
)

func NewStore(t *testing.T) (*eventlog.SQLiteStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := eventlog.OpenSQLite(ctx, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, ctx
}

func NewBadgerStore(t *testing.T) (*eventlog.BadgerStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := eventlog.OpenBadger(eventlog.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("open badger store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, ctx
}

func NewApp(t *testing.T) (*app.App, context.Context) {
	t.Helper()
	store, ctx := NewStore(t)
	return app.New(store), ctx
}
