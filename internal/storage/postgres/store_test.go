package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/harmonium/harmonium/internal/storage"
	"github.com/harmonium/harmonium/internal/storage/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if HARMONIUM_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HARMONIUM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARMONIUM_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	store, err := postgres.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestSetGetDeleteScan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cp := storage.Checkpoint{
		ChatID:          "42",
		Track:           storage.CheckpointTrack{ID: "t1", Title: "rain"},
		PositionSeconds: 12,
		SavedAtUnix:     5,
	}
	if err := s.Set(ctx, cp.Key(), cp); err != nil {
		t.Fatal(err)
	}
	defer s.Delete(ctx, cp.Key())

	got, ok, err := s.Get(ctx, cp.Key())
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Track.Title != "rain" {
		t.Fatalf("got %+v", got)
	}

	entries, err := s.Scan(ctx, storage.ChatKeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if e.Key == cp.Key() {
			found = true
		}
	}
	if !found {
		t.Fatal("scan did not return the set checkpoint")
	}

	if err := s.Delete(ctx, cp.Key()); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, cp.Key()); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}
