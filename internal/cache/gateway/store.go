package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

// CachedResponse is the stored copy of an upstream HTTP response.
type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Store holds cached responses grouped into named buckets. Bucket names carry
// a version suffix so that invalidation is a whole-bucket delete.
type Store interface {
	Match(ctx context.Context, bucket, key string) (*CachedResponse, bool, error)
	Put(ctx context.Context, bucket, key string, resp *CachedResponse) error
	DeleteBucket(ctx context.Context, bucket string) error
	Buckets(ctx context.Context) ([]string, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*CachedResponse
}

// NewMemoryStore keeps cached responses in process memory.
func NewMemoryStore() Store {
	return &memoryStore{buckets: make(map[string]map[string]*CachedResponse)}
}

func (s *memoryStore) Match(ctx context.Context, bucket, key string) (*CachedResponse, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	resp, ok := entries[key]
	return resp, ok, nil
}

func (s *memoryStore) Put(ctx context.Context, bucket, key string, resp *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.buckets[bucket]
	if !ok {
		entries = make(map[string]*CachedResponse)
		s.buckets[bucket] = entries
	}
	entries[key] = resp
	return nil
}

func (s *memoryStore) DeleteBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, bucket)
	return nil
}

func (s *memoryStore) Buckets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	return names, nil
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore shares cached responses between instances through Redis.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Match(ctx context.Context, bucket, key string) (*CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, s.client.GatewayKey(bucket, key))
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var resp CachedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (s *redisStore) Put(ctx context.Context, bucket, key string, resp *CachedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.client.GatewayKey(bucket, key), string(payload), 0)
}

func (s *redisStore) DeleteBucket(ctx context.Context, bucket string) error {
	keys, err := s.client.ScanKeys(ctx, s.client.GatewayBucketPattern(bucket))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...)
}

func (s *redisStore) Buckets(ctx context.Context) ([]string, error) {
	keys, err := s.client.ScanKeys(ctx, s.client.GatewayBucketPattern("*"))
	if err != nil {
		return nil, err
	}
	prefix := s.client.GatewayKey("", "") + ":"
	seen := make(map[string]struct{})
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		bucket, _, found := strings.Cut(rest, ":")
		if !found || bucket == "" {
			continue
		}
		if _, dup := seen[bucket]; dup {
			continue
		}
		seen[bucket] = struct{}{}
		names = append(names, bucket)
	}
	return names, nil
}
