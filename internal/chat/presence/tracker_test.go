package presence

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/noorbazaar/storefront-backend/pkg/config"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	str, ok := value.(string)
	if !ok {
		return errors.New("fake store only takes strings")
	}
	f.data[key] = str
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	if !ok {
		return "", errors.New("missing key")
	}
	return value, nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		f.ttls[key] = ttl
	}
	return nil
}

func (f *fakeStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.data {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeStore) TypingKey(conversationID, userID string) string {
	return "typing:" + conversationID + ":" + userID
}

func (f *fakeStore) TypingPattern(conversationID string) string {
	return "typing:" + conversationID + ":*"
}

func (f *fakeStore) OnlineKey(userID string) string {
	return "online:" + userID
}

func (f *fakeStore) OnlinePattern() string {
	return "online:*"
}

func presenceConfig() config.PresenceConfig {
	return config.PresenceConfig{
		RefreshInterval: 30 * time.Second,
		RecordTTL:       90 * time.Second,
		TypingTTL:       10 * time.Second,
	}
}

func newTestTracker(t *testing.T, store *fakeStore) *Tracker {
	t.Helper()
	tracker, err := NewTracker(store, presenceConfig(), nil)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tracker
}

func TestTypingSignalLifecycle(t *testing.T) {
	store := newFakeStore()
	tracker := newTestTracker(t, store)
	ctx := context.Background()

	if err := tracker.StartTyping(ctx, "conv-1", "user-1"); err != nil {
		t.Fatalf("start typing: %v", err)
	}
	if ttl := store.ttls["typing:conv-1:user-1"]; ttl != 10*time.Second {
		t.Fatalf("typing record must carry the typing ttl, got %s", ttl)
	}

	typing, err := tracker.AnyoneTyping(ctx, "conv-1", "user-2")
	if err != nil {
		t.Fatalf("anyone typing: %v", err)
	}
	if !typing {
		t.Fatal("other participant's typing record must be visible")
	}

	// the author is excluded from their own signal
	typing, err = tracker.AnyoneTyping(ctx, "conv-1", "user-1")
	if err != nil {
		t.Fatalf("anyone typing: %v", err)
	}
	if typing {
		t.Fatal("a user must not see their own typing record")
	}

	if err := tracker.StopTyping(ctx, "conv-1", "user-1"); err != nil {
		t.Fatalf("stop typing: %v", err)
	}
	typing, err = tracker.AnyoneTyping(ctx, "conv-1", "user-2")
	if err != nil {
		t.Fatalf("anyone typing: %v", err)
	}
	if typing {
		t.Fatal("retracted record must not count")
	}
}

func TestTypingScopedToConversation(t *testing.T) {
	store := newFakeStore()
	tracker := newTestTracker(t, store)
	ctx := context.Background()

	if err := tracker.StartTyping(ctx, "conv-1", "user-1"); err != nil {
		t.Fatalf("start typing: %v", err)
	}
	typing, err := tracker.AnyoneTyping(ctx, "conv-other", "user-2")
	if err != nil {
		t.Fatalf("anyone typing: %v", err)
	}
	if typing {
		t.Fatal("typing signals must not leak across conversations")
	}
}

func TestOnlineRoleChecks(t *testing.T) {
	store := newFakeStore()
	tracker := newTestTracker(t, store)
	ctx := context.Background()

	staffOnline, err := tracker.IsStaffOnline(ctx)
	if err != nil {
		t.Fatalf("staff online: %v", err)
	}
	if staffOnline {
		t.Fatal("nobody is online yet")
	}

	if err := tracker.Track(ctx, "user-1", "مریم", RoleCustomer); err != nil {
		t.Fatalf("track customer: %v", err)
	}
	if err := tracker.Track(ctx, "admin-1", "پشتیبانی", RoleStaff); err != nil {
		t.Fatalf("track staff: %v", err)
	}

	staffOnline, err = tracker.IsStaffOnline(ctx)
	if err != nil {
		t.Fatalf("staff online: %v", err)
	}
	if !staffOnline {
		t.Fatal("staff record must be visible")
	}
	customerOnline, err := tracker.IsCustomerOnline(ctx)
	if err != nil {
		t.Fatalf("customer online: %v", err)
	}
	if !customerOnline {
		t.Fatal("customer record must be visible")
	}

	if err := tracker.Untrack(ctx, "admin-1"); err != nil {
		t.Fatalf("untrack: %v", err)
	}
	staffOnline, err = tracker.IsStaffOnline(ctx)
	if err != nil {
		t.Fatalf("staff online: %v", err)
	}
	if staffOnline {
		t.Fatal("untracked staff must not count")
	}
}

func TestTrackRejectsUnknownRole(t *testing.T) {
	tracker := newTestTracker(t, newFakeStore())
	if err := tracker.Track(context.Background(), "user-1", "مریم", "bot"); err == nil {
		t.Fatal("expected role validation error")
	}
}

func TestRefreshExtendsExistingRecord(t *testing.T) {
	store := newFakeStore()
	tracker := newTestTracker(t, store)
	ctx := context.Background()

	if err := tracker.Track(ctx, "user-1", "مریم", RoleCustomer); err != nil {
		t.Fatalf("track: %v", err)
	}
	store.mu.Lock()
	store.ttls["online:user-1"] = time.Second
	store.mu.Unlock()

	if err := tracker.Refresh(ctx, "user-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	store.mu.Lock()
	ttl := store.ttls["online:user-1"]
	store.mu.Unlock()
	if ttl != 90*time.Second {
		t.Fatalf("refresh must restore the record ttl, got %s", ttl)
	}
}
