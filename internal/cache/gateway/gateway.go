package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
)

// ClearCacheCommand is the control message a client posts to drop every bucket.
const ClearCacheCommand = "CLEAR_CACHE"

const (
	staticBucketName  = "static"
	dynamicBucketName = "dynamic"
	imageBucketName   = "image"
)

var imageExtensions = map[string]struct{}{
	".avif": {},
	".gif":  {},
	".ico":  {},
	".jpeg": {},
	".jpg":  {},
	".png":  {},
	".svg":  {},
	".webp": {},
}

// Fetcher performs the upstream request when the cache cannot answer.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway applies the storefront's response-caching policy: images and static
// assets are served cache-first, backend calls network-first with a cached
// fallback. Cache failures are logged and swallowed, the network stays the
// source of truth.
type Gateway struct {
	store        Store
	fetcher      Fetcher
	version      string
	apiMarker    string
	backendHosts map[string]struct{}
	precache     []string
	logg         *logger.Logger
	metrics      *metrics.CacheMetrics
}

// New wires a gateway from its dependencies.
func New(cfg config.GatewayConfig, store Store, fetcher Fetcher, logg *logger.Logger, cacheMetrics *metrics.CacheMetrics) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("gateway store required")
	}
	if fetcher == nil {
		fetcher = http.DefaultClient
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("gateway cache version required")
	}
	hosts := make(map[string]struct{}, len(cfg.BackendHosts))
	for _, host := range cfg.BackendHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			hosts[host] = struct{}{}
		}
	}
	return &Gateway{
		store:        store,
		fetcher:      fetcher,
		version:      cfg.Version,
		apiMarker:    cfg.APIMarker,
		backendHosts: hosts,
		precache:     cfg.Precache,
		logg:         logg,
		metrics:      cacheMetrics,
	}, nil
}

func (g *Gateway) staticBucket() string  { return staticBucketName + "-" + g.version }
func (g *Gateway) dynamicBucket() string { return dynamicBucketName + "-" + g.version }
func (g *Gateway) imageBucket() string   { return imageBucketName + "-" + g.version }

func (g *Gateway) ownedBuckets() map[string]struct{} {
	return map[string]struct{}{
		g.staticBucket():  {},
		g.dynamicBucket(): {},
		g.imageBucket():   {},
	}
}

// Install prefetches the core-asset manifest into the static bucket. Individual
// fetch failures are logged and skipped so one missing asset cannot block the
// rollout.
func (g *Gateway) Install(ctx context.Context) {
	for _, url := range g.precache {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			g.warnErr(ctx, "precache request build failed", err)
			continue
		}
		resp, err := g.fetchUpstream(req)
		if err != nil {
			g.warnErr(ctx, "precache fetch failed", err)
			continue
		}
		if !cacheable(resp) {
			continue
		}
		g.storeCopy(ctx, g.staticBucket(), cacheKey(req), resp)
	}
}

// Activate deletes every bucket left over from a previous cache version.
func (g *Gateway) Activate(ctx context.Context) {
	names, err := g.store.Buckets(ctx)
	if err != nil {
		g.warnErr(ctx, "bucket listing failed", err)
		return
	}
	owned := g.ownedBuckets()
	for _, name := range names {
		if _, keep := owned[name]; keep {
			continue
		}
		if err := g.store.DeleteBucket(ctx, name); err != nil {
			g.warnErr(ctx, "stale bucket delete failed", err)
		}
	}
}

// ClearAll drops every bucket the gateway owns.
func (g *Gateway) ClearAll(ctx context.Context) {
	for name := range g.ownedBuckets() {
		if err := g.store.DeleteBucket(ctx, name); err != nil {
			g.warnErr(ctx, "bucket delete failed", err)
		}
	}
}

// HandleControl executes a control message from a client. Unknown commands
// report an error so callers can reject them at the boundary.
func (g *Gateway) HandleControl(ctx context.Context, command string) error {
	switch strings.TrimSpace(command) {
	case ClearCacheCommand:
		g.ClearAll(ctx)
		return nil
	default:
		return fmt.Errorf("unknown gateway command %q", command)
	}
}

// ServeHTTP applies the caching policy to one request. Non-GET traffic always
// goes straight to the network.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.passThrough(w, r)
		return
	}
	switch {
	case g.isImageRequest(r):
		g.cacheFirst(w, r, g.imageBucket())
	case g.isBackendRequest(r):
		g.networkFirst(w, r, g.dynamicBucket())
	default:
		g.cacheFirst(w, r, g.dynamicBucket())
	}
}

func (g *Gateway) isImageRequest(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Accept"), "image/") {
		return true
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(r.URL.Path))]
	return ok
}

func (g *Gateway) isBackendRequest(r *http.Request) bool {
	if g.apiMarker != "" && strings.Contains(r.URL.Path, g.apiMarker) {
		return true
	}
	host := strings.ToLower(r.URL.Hostname())
	if host == "" {
		host = strings.ToLower(hostWithoutPort(r.Host))
	}
	_, ok := g.backendHosts[host]
	return ok
}

func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request, bucket string) {
	ctx := r.Context()
	key := cacheKey(r)

	cached, ok, err := g.store.Match(ctx, bucket, key)
	if err != nil {
		g.warnErr(ctx, "cache lookup failed", err)
	}
	if ok {
		g.metrics.IncHit(bucketLayer(bucket))
		writeCached(w, cached)
		return
	}
	g.metrics.IncMiss(bucketLayer(bucket))

	resp, err := g.fetchUpstream(r)
	if err != nil {
		writeOffline(w)
		return
	}
	if cacheable(resp) {
		resp = g.storeCopy(ctx, bucket, key, resp)
	}
	writeCached(w, resp)
}

func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request, bucket string) {
	ctx := r.Context()
	key := cacheKey(r)

	resp, err := g.fetchUpstream(r)
	if err == nil {
		if cacheable(resp) {
			resp = g.storeCopy(ctx, bucket, key, resp)
		}
		writeCached(w, resp)
		return
	}

	cached, ok, lookupErr := g.store.Match(ctx, bucket, key)
	if lookupErr != nil {
		g.warnErr(ctx, "cache fallback lookup failed", lookupErr)
	}
	if ok {
		g.metrics.IncHit(bucketLayer(bucket))
		writeCached(w, cached)
		return
	}
	writeOffline(w)
}

func (g *Gateway) passThrough(w http.ResponseWriter, r *http.Request) {
	resp, err := g.fetchUpstream(r)
	if err != nil {
		writeOffline(w)
		return
	}
	writeCached(w, resp)
}

// fetchUpstream issues the request and drains the body into a CachedResponse
// so it can be both stored and replayed.
func (g *Gateway) fetchUpstream(r *http.Request) (*CachedResponse, error) {
	req := r.Clone(r.Context())
	req.RequestURI = ""
	resp, err := g.fetcher.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func (g *Gateway) storeCopy(ctx context.Context, bucket, key string, resp *CachedResponse) *CachedResponse {
	if err := g.store.Put(ctx, bucket, key, resp); err != nil {
		g.warnErr(ctx, "cache store failed", err)
		return resp
	}
	g.metrics.IncStore(bucketLayer(bucket))
	return resp
}

func (g *Gateway) warnErr(ctx context.Context, msg string, err error) {
	if g.logg != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), msg)
	}
}

func cacheKey(r *http.Request) string {
	return r.URL.String()
}

func cacheable(resp *CachedResponse) bool {
	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}

func bucketLayer(bucket string) string {
	name, _, found := strings.Cut(bucket, "-")
	if !found {
		return bucket
	}
	return name
}

func hostWithoutPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		return host[:idx]
	}
	return host
}

func writeCached(w http.ResponseWriter, resp *CachedResponse) {
	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func writeOffline(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Offline"))
}
