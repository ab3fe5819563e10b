package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newTestManager(t *testing.T, storage Storage, budget int64, clock *fakeClock) *Manager {
	t.Helper()
	mgr, err := NewManager(Options{
		Storage:     storage,
		BudgetBytes: budget,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestManagerSetThenGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	mgr := newTestManager(t, NewMemoryStorage(0), 0, clock)

	type product struct {
		Title string `json:"title"`
		Price int64  `json:"price"`
	}

	mgr.Set(ctx, "product:42", product{Title: "کیف چرمی", Price: 4_500_000}, time.Minute)

	var got product
	if !mgr.Get(ctx, "product:42", &got) {
		t.Fatal("expected cache hit right after set")
	}
	if got.Title != "کیف چرمی" || got.Price != 4_500_000 {
		t.Fatalf("unexpected cached value: %+v", got)
	}
	if !mgr.Has(ctx, "product:42") {
		t.Fatal("Has should report live entry")
	}
}

func TestManagerZeroTTLFallsBackToDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	mgr, err := NewManager(Options{
		Storage:    NewMemoryStorage(0),
		DefaultTTL: time.Hour,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	mgr.Set(ctx, "settings", map[string]string{"theme": "dark"}, 0)

	clock.Advance(30 * time.Minute)
	if !mgr.Has(ctx, "settings") {
		t.Fatal("entry should still live inside the default TTL")
	}
	clock.Advance(31 * time.Minute)
	if mgr.Has(ctx, "settings") {
		t.Fatal("entry should expire after the default TTL")
	}
}

func TestManagerExpiryEvicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	storage := NewMemoryStorage(0)
	mgr := newTestManager(t, storage, 0, clock)

	mgr.Set(ctx, "banner", "fall-sale", 500*time.Millisecond)
	clock.Advance(time.Second)

	var got string
	if mgr.Get(ctx, "banner", &got) {
		t.Fatal("expected miss after ttl elapsed")
	}
	if mgr.Has(ctx, "banner") {
		t.Fatal("Has should be false after expiry eviction")
	}
	if _, ok, _ := storage.Read(ctx, "banner"); ok {
		t.Fatal("expired entry should be removed from storage")
	}
}

func TestManagerGetMissingKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	mgr := newTestManager(t, NewMemoryStorage(0), 0, clock)

	var got string
	if mgr.Get(ctx, "nope", &got) {
		t.Fatal("expected miss for unknown key")
	}
}

func TestManagerUnparsableEntryEvicted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	storage := NewMemoryStorage(0)
	mgr := newTestManager(t, storage, 0, clock)

	if err := storage.Write(ctx, "junk", "{not-json"); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	if mgr.Get(ctx, "junk", nil) {
		t.Fatal("corrupt entry should not hit")
	}
	if _, ok, _ := storage.Read(ctx, "junk"); ok {
		t.Fatal("corrupt entry should be evicted on read")
	}
}

func TestManagerBudgetSweepsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	storage := NewMemoryStorage(0)
	mgr := newTestManager(t, storage, 200, clock)

	mgr.Set(ctx, "short", "soon-gone", 100*time.Millisecond)
	mgr.Set(ctx, "long", "stays", time.Hour)
	clock.Advance(time.Second)

	// The next write pushes past the budget, so the expired entry goes first.
	mgr.Set(ctx, "fresh", "new-value", time.Hour)

	if _, ok, _ := storage.Read(ctx, "short"); ok {
		t.Fatal("expired entry should have been swept by the budget check")
	}
	var got string
	if !mgr.Get(ctx, "long", &got) || got != "stays" {
		t.Fatalf("live entry lost during sweep, got %q", got)
	}
	if !mgr.Get(ctx, "fresh", &got) || got != "new-value" {
		t.Fatalf("new entry missing after sweep, got %q", got)
	}
}

func TestManagerQuotaRetryAfterFullEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	storage := NewMemoryStorage(120)
	mgr := newTestManager(t, storage, 0, clock)

	mgr.Set(ctx, "first", "aaaaaaaaaaaaaaaaaaaaaaaa", time.Hour)
	if !mgr.Has(ctx, "first") {
		t.Fatal("first write should land")
	}

	// This one does not fit next to the first entry, so the manager must
	// clear the store and retry.
	mgr.Set(ctx, "second", "bbbbbbbbbbbbbbbbbbbbbbbb", time.Hour)

	if mgr.Has(ctx, "first") {
		t.Fatal("first entry should be gone after quota eviction")
	}
	var got string
	if !mgr.Get(ctx, "second", &got) || got != "bbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Fatalf("second entry should land after eviction, got %q", got)
	}
}

func TestManagerCleanupSweepsExpiredOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	storage := NewMemoryStorage(0)
	mgr := newTestManager(t, storage, 0, clock)

	mgr.Set(ctx, "old", 1, time.Second)
	mgr.Set(ctx, "live", 2, time.Hour)
	if err := storage.Write(ctx, "garbage", "???"); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	clock.Advance(time.Minute)

	mgr.Cleanup(ctx)

	if _, ok, _ := storage.Read(ctx, "old"); ok {
		t.Fatal("expired entry survived Cleanup")
	}
	if _, ok, _ := storage.Read(ctx, "garbage"); ok {
		t.Fatal("unparsable entry survived Cleanup")
	}
	var got int
	if !mgr.Get(ctx, "live", &got) || got != 2 {
		t.Fatalf("live entry lost during Cleanup, got %d", got)
	}
}
