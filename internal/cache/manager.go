package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
)

const managerLayer = "manager"

// entry is the persisted envelope around one cached value.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	ExpiresIn int64           `json:"expires_in_ms"`
}

func (e entry) expired(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp >= e.ExpiresIn
}

// Manager is a TTL key/value cache for semi-static storefront data. It is
// strictly best-effort: no method returns an error, a failed write simply
// means the next read goes to the origin.
type Manager struct {
	storage    Storage
	budget     int64
	defaultTTL time.Duration
	now        func() time.Time
	logg       *logger.Logger
	metrics    *metrics.CacheMetrics
}

// Options configures a cache manager.
type Options struct {
	Storage Storage
	// BudgetBytes caps the total serialized payload the manager tries to keep.
	// Exceeding it triggers an expired-entry sweep before the write. <= 0
	// disables the budget.
	BudgetBytes int64
	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration
	Metrics    *metrics.CacheMetrics
	Logger     *logger.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// NewManager wires a cache manager over the provided storage.
func NewManager(opts Options) (*Manager, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("cache storage required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		storage:    opts.Storage,
		budget:     opts.BudgetBytes,
		defaultTTL: opts.DefaultTTL,
		now:        now,
		logg:       opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Set stores a JSON-serializable value with the given TTL. Over-budget writes
// first sweep expired entries; a quota rejection evicts everything the manager
// owns and retries once, then gives up silently.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		m.warn(ctx, "cache entry not serializable")
		return
	}
	payload, err := json.Marshal(entry{
		Data:      data,
		Timestamp: m.now().UnixMilli(),
		ExpiresIn: ttl.Milliseconds(),
	})
	if err != nil {
		m.warn(ctx, "cache entry encode failed")
		return
	}

	if m.budget > 0 {
		if used := m.usedBytes(ctx); used+int64(len(payload)) > m.budget {
			m.Cleanup(ctx)
		}
	}

	if err := m.storage.Write(ctx, key, string(payload)); err != nil {
		if !errors.Is(err, ErrQuotaExceeded) {
			m.warn(ctx, "cache write failed")
			return
		}
		m.evictAll(ctx)
		if err := m.storage.Write(ctx, key, string(payload)); err != nil {
			m.warn(ctx, "cache write failed after eviction")
			return
		}
	}
	m.metrics.IncStore(managerLayer)
}

// Get loads a cached value into dest. Expired or unparsable entries are
// evicted and reported as absent.
func (m *Manager) Get(ctx context.Context, key string, dest any) bool {
	raw, ok, err := m.storage.Read(ctx, key)
	if err != nil || !ok {
		m.metrics.IncMiss(managerLayer)
		return false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		m.evict(ctx, key)
		m.metrics.IncMiss(managerLayer)
		return false
	}
	if e.expired(m.now()) {
		m.evict(ctx, key)
		m.metrics.IncMiss(managerLayer)
		return false
	}

	if dest != nil {
		if err := json.Unmarshal(e.Data, dest); err != nil {
			m.evict(ctx, key)
			m.metrics.IncMiss(managerLayer)
			return false
		}
	}
	m.metrics.IncHit(managerLayer)
	return true
}

// Has reports whether a live entry exists without decoding its payload.
func (m *Manager) Has(ctx context.Context, key string) bool {
	raw, ok, err := m.storage.Read(ctx, key)
	if err != nil || !ok {
		return false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		m.evict(ctx, key)
		return false
	}
	if e.expired(m.now()) {
		m.evict(ctx, key)
		return false
	}
	return true
}

// Delete removes one entry.
func (m *Manager) Delete(ctx context.Context, key string) {
	m.evict(ctx, key)
}

// Cleanup sweeps every owned entry and evicts expired or unparsable ones.
// Intended to run once at process start and when the budget is hit.
func (m *Manager) Cleanup(ctx context.Context) {
	keys, err := m.storage.Keys(ctx)
	if err != nil {
		m.warn(ctx, "cache sweep failed")
		return
	}

	now := m.now()
	evicted := 0
	for _, key := range keys {
		raw, ok, err := m.storage.Read(ctx, key)
		if err != nil || !ok {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil || e.expired(now) {
			if m.storage.Remove(ctx, key) == nil {
				evicted++
			}
		}
	}
	m.metrics.AddEvictions(managerLayer, evicted)
}

func (m *Manager) usedBytes(ctx context.Context) int64 {
	keys, err := m.storage.Keys(ctx)
	if err != nil {
		return 0
	}
	var used int64
	for _, key := range keys {
		raw, ok, err := m.storage.Read(ctx, key)
		if err != nil || !ok {
			continue
		}
		used += int64(len(raw))
	}
	return used
}

func (m *Manager) evict(ctx context.Context, key string) {
	if err := m.storage.Remove(ctx, key); err != nil {
		m.warn(ctx, "cache evict failed")
		return
	}
	m.metrics.AddEvictions(managerLayer, 1)
}

func (m *Manager) evictAll(ctx context.Context) {
	keys, err := m.storage.Keys(ctx)
	if err != nil {
		m.warn(ctx, "cache evict-all failed")
		return
	}
	evicted := 0
	for _, key := range keys {
		if m.storage.Remove(ctx, key) == nil {
			evicted++
		}
	}
	m.metrics.AddEvictions(managerLayer, evicted)
}

func (m *Manager) warn(ctx context.Context, msg string) {
	if m.logg != nil {
		m.logg.Warn(ctx, msg)
	}
}
