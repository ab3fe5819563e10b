package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

// SnapshotStore persists the full cart snapshot for a browsing session.
// Load returns an empty string when no snapshot exists.
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) (string, error)
	Save(ctx context.Context, sessionID, snapshot string) error
	Delete(ctx context.Context, sessionID string) error
}

type redisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore keeps cart snapshots in Redis under the session key.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) SnapshotStore {
	return &redisSnapshotStore{client: client, ttl: ttl}
}

func (s *redisSnapshotStore) Load(ctx context.Context, sessionID string) (string, error) {
	raw, err := s.client.Get(ctx, s.client.CartKey(sessionID))
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return raw, err
}

func (s *redisSnapshotStore) Save(ctx context.Context, sessionID, snapshot string) error {
	return s.client.Set(ctx, s.client.CartKey(sessionID), snapshot, s.ttl)
}

func (s *redisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.client.CartKey(sessionID))
}

type memorySnapshotStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemorySnapshotStore keeps snapshots in process memory. Used by tests and
// single-node dev setups.
func NewMemorySnapshotStore() SnapshotStore {
	return &memorySnapshotStore{data: make(map[string]string)}
}

func (s *memorySnapshotStore) Load(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[sessionID], nil
}

func (s *memorySnapshotStore) Save(ctx context.Context, sessionID, snapshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = snapshot
	return nil
}

func (s *memorySnapshotStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}
