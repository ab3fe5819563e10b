package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

// ErrQuotaExceeded reports that the backing store refused a write for lack of
// space. The manager reacts by evicting and retrying once.
var ErrQuotaExceeded = errors.New("cache storage quota exceeded")

// Storage is the seam between the cache manager and whatever holds its bytes.
// Keys passed in are already namespaced by the manager.
type Storage interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

type memoryStorage struct {
	mu       sync.RWMutex
	data     map[string]string
	capacity int64
}

// NewMemoryStorage bounds total stored bytes by capacity; writes past the
// bound fail with ErrQuotaExceeded the way a full browser store would.
// capacity <= 0 means unbounded.
func NewMemoryStorage(capacity int64) Storage {
	return &memoryStorage{data: make(map[string]string), capacity: capacity}
}

func (s *memoryStorage) Read(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return value, ok, nil
}

func (s *memoryStorage) Write(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 {
		var used int64
		for k, v := range s.data {
			if k == key {
				continue
			}
			used += int64(len(v))
		}
		if used+int64(len(value)) > s.capacity {
			return ErrQuotaExceeded
		}
	}
	s.data[key] = value
	return nil
}

func (s *memoryStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

type redisStorage struct {
	client *redis.Client
}

// NewRedisStorage stores cache entries under the shared cache prefix. Entry
// expiry stays the manager's job so the TTL bookkeeping lives in one place.
func NewRedisStorage(client *redis.Client) Storage {
	return &redisStorage{client: client}
}

func (s *redisStorage) Read(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.client.Get(ctx, s.client.CacheKey(key))
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

func (s *redisStorage) Write(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.client.CacheKey(key), value, 0)
}

func (s *redisStorage) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.client.CacheKey(key))
}

func (s *redisStorage) Keys(ctx context.Context) ([]string, error) {
	namespaced, err := s.client.ScanKeys(ctx, s.client.CachePattern())
	if err != nil {
		return nil, err
	}
	prefix := s.client.CacheKey("")
	keys := make([]string, 0, len(namespaced))
	for _, key := range namespaced {
		keys = append(keys, key[len(prefix)+1:])
	}
	return keys, nil
}
