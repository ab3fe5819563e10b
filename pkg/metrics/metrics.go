package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics records hit/miss/eviction counts for the TTL cache and the
// response gateway buckets.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	stores    *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

// NewCacheMetrics registers the cache metrics on the provided registerer.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache reads served without touching the origin.",
	}, []string{"layer"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache reads that fell through to the origin.",
	}, []string{"layer"})
	stores := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_stores_total",
		Help: "Entries written into a cache layer.",
	}, []string{"layer"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Entries evicted from a cache layer.",
	}, []string{"layer"})
	reg.MustRegister(hits, misses, stores, evictions)
	return &CacheMetrics{
		hits:      hits,
		misses:    misses,
		stores:    stores,
		evictions: evictions,
	}
}

// IncHit increments the hit counter for the named layer.
func (c *CacheMetrics) IncHit(layer string) {
	if c == nil || c.hits == nil {
		return
	}
	c.hits.WithLabelValues(normalizeLabel(layer)).Inc()
}

// IncMiss increments the miss counter for the named layer.
func (c *CacheMetrics) IncMiss(layer string) {
	if c == nil || c.misses == nil {
		return
	}
	c.misses.WithLabelValues(normalizeLabel(layer)).Inc()
}

// IncStore increments the store counter for the named layer.
func (c *CacheMetrics) IncStore(layer string) {
	if c == nil || c.stores == nil {
		return
	}
	c.stores.WithLabelValues(normalizeLabel(layer)).Inc()
}

// AddEvictions records evicted entries for the named layer.
func (c *CacheMetrics) AddEvictions(layer string, count int) {
	if c == nil || c.evictions == nil || count <= 0 {
		return
	}
	c.evictions.WithLabelValues(normalizeLabel(layer)).Add(float64(count))
}

// ChatMetrics counts support chat traffic.
type ChatMetrics struct {
	messages *prometheus.CounterVec
	reloads  prometheus.Counter
}

// NewChatMetrics registers the chat metrics on the provided registerer.
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	if reg == nil {
		return &ChatMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Support messages accepted, by origin.",
	}, []string{"origin"})
	reloads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_feed_reloads_total",
		Help: "Full conversation reloads triggered by change notifications.",
	})
	reg.MustRegister(messages, reloads)
	return &ChatMetrics{messages: messages, reloads: reloads}
}

// IncMessage counts an accepted message for the given origin (customer/staff).
func (c *ChatMetrics) IncMessage(origin string) {
	if c == nil || c.messages == nil {
		return
	}
	c.messages.WithLabelValues(normalizeLabel(origin)).Inc()
}

// IncReload counts one full feed reload.
func (c *ChatMetrics) IncReload() {
	if c == nil || c.reloads == nil {
		return
	}
	c.reloads.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
