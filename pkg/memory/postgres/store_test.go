package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/saathi/pkg/memory"
	"github.com/MrWong99/saathi/pkg/memory/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SAATHI_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SAATHI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SAATHI_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store on a freshly dropped schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS messages CASCADE"); err != nil {
		t.Fatalf("drop messages: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	in := []memory.Record{
		{Session: "s1", User: memory.SpeakerUser, Text: "namaste", Timestamp: now.Add(-3 * time.Minute)},
		{Session: "s1", User: memory.SpeakerAssistant, Text: "namaste! kaise ho?", Timestamp: now.Add(-2 * time.Minute)},
		{Session: "s2", User: memory.SpeakerUser, Text: "hello", Timestamp: now.Add(-1 * time.Minute)},
	}
	for _, r := range in {
		got, err := store.Append(ctx, r)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if got.ID == "" {
			t.Error("Append: empty ID")
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List: want 3, got %d", len(all))
	}
	if all[0].Text != "hello" || all[2].Text != "namaste" {
		t.Errorf("List order: got %q .. %q", all[0].Text, all[2].Text)
	}

	s1, err := store.List(ctx, memory.WithSession("s1"), memory.WithLimit(1))
	if err != nil {
		t.Fatalf("List s1: %v", err)
	}
	if len(s1) != 1 || s1[0].User != memory.SpeakerAssistant {
		t.Errorf("List s1 limit 1: got %+v", s1)
	}
}

func TestList_EmptyIsNonNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List: want empty non-nil slice, got %#v", got)
	}
}

func TestAppend_Invalid(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(context.Background(), memory.Record{User: "User"})
	if !errors.Is(err, memory.ErrInvalidRecord) {
		t.Errorf("Append: want ErrInvalidRecord, got %v", err)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
