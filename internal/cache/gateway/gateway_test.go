package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/noorbazaar/storefront-backend/pkg/config"
)

func newTestGateway(t *testing.T, cfg config.GatewayConfig, store Store) *Gateway {
	t.Helper()
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if cfg.APIMarker == "" {
		cfg.APIMarker = "/api/"
	}
	gw, err := New(cfg, store, http.DefaultClient, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gw
}

func countingServer(t *testing.T, hits *atomic.Int64, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImageRequestCacheFirst(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, &hits, http.StatusOK, "image-bytes")
	gw := newTestGateway(t, config.GatewayConfig{}, NewMemoryStore())

	url := srv.URL + "/media/logo.png"

	first := httptest.NewRecorder()
	gw.ServeHTTP(first, httptest.NewRequest(http.MethodGet, url, nil))
	if first.Code != http.StatusOK || first.Body.String() != "image-bytes" {
		t.Fatalf("first response: %d %q", first.Code, first.Body.String())
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected exactly one upstream fetch, got %d", got)
	}

	second := httptest.NewRecorder()
	gw.ServeHTTP(second, httptest.NewRequest(http.MethodGet, url, nil))
	if second.Code != http.StatusOK || second.Body.String() != "image-bytes" {
		t.Fatalf("second response: %d %q", second.Code, second.Body.String())
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("second request should be a cache hit, upstream fetches = %d", got)
	}
}

func TestBackendRequestAlwaysFetches(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, &hits, http.StatusOK, `{"ok":true}`)
	gw := newTestGateway(t, config.GatewayConfig{}, NewMemoryStore())

	url := srv.URL + "/api/products"
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("network-first must fetch every time, got %d fetches", got)
	}
}

func TestBackendFallbackToCacheWhenUpstreamDown(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, &hits, http.StatusOK, `{"products":[]}`)
	gw := newTestGateway(t, config.GatewayConfig{}, NewMemoryStore())

	url := srv.URL + "/api/products"
	warm := httptest.NewRecorder()
	gw.ServeHTTP(warm, httptest.NewRequest(http.MethodGet, url, nil))
	if warm.Code != http.StatusOK {
		t.Fatalf("warm-up status %d", warm.Code)
	}

	srv.Close()

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"products":[]}` {
		t.Fatalf("expected cached fallback, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestBackendOfflineWithoutCachedCopy(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/api/orders"
	srv.Close()

	gw := newTestGateway(t, config.GatewayConfig{}, NewMemoryStore())
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Offline") {
		t.Fatalf("expected synthesized offline body, got %q", rec.Body.String())
	}
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, &hits, http.StatusNotFound, "missing")
	gw := newTestGateway(t, config.GatewayConfig{}, NewMemoryStore())

	url := srv.URL + "/media/gone.png"
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("404 must not be cached, got %d fetches", got)
	}
}

func TestInstallPrecachesManifest(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, &hits, http.StatusOK, "shell")
	store := NewMemoryStore()
	gw := newTestGateway(t, config.GatewayConfig{
		Precache: []string{srv.URL + "/", srv.URL + "/manifest.json"},
	}, store)

	gw.Install(context.Background())
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected 2 precache fetches, got %d", got)
	}

	if _, ok, _ := store.Match(context.Background(), "static-v1", srv.URL+"/manifest.json"); !ok {
		t.Fatal("manifest missing from static bucket after install")
	}
}

func TestActivateDropsStaleVersionBuckets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	stale := &CachedResponse{StatusCode: http.StatusOK, Body: []byte("old")}
	if err := store.Put(ctx, "static-v0", "/", stale); err != nil {
		t.Fatalf("seed put: %v", err)
	}
	if err := store.Put(ctx, "dynamic-v2", "/app.js", stale); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	gw := newTestGateway(t, config.GatewayConfig{Version: "v2"}, store)
	gw.Activate(ctx)

	if _, ok, _ := store.Match(ctx, "static-v0", "/"); ok {
		t.Fatal("old-version bucket should be deleted on activate")
	}
	if _, ok, _ := store.Match(ctx, "dynamic-v2", "/app.js"); !ok {
		t.Fatal("current-version bucket must survive activate")
	}
}

func TestClearCacheCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(ctx, "image-v1", "/x.png", &CachedResponse{StatusCode: 200}); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	gw := newTestGateway(t, config.GatewayConfig{}, store)
	if err := gw.HandleControl(ctx, ClearCacheCommand); err != nil {
		t.Fatalf("HandleControl: %v", err)
	}
	if _, ok, _ := store.Match(ctx, "image-v1", "/x.png"); ok {
		t.Fatal("buckets should be empty after clear command")
	}
	if err := gw.HandleControl(ctx, "FLUSH"); err == nil {
		t.Fatal("unknown command must be rejected")
	}
}
