package gateway

import (
	"fmt"
	"net/http"
	"net/url"
)

type upstreamFetcher struct {
	base   *url.URL
	client Fetcher
}

// NewUpstreamFetcher returns a Fetcher that resolves relative request URLs
// against base. Inbound server requests carry no scheme or host, so a gateway
// mounted behind the router needs this to reach its upstream.
func NewUpstreamFetcher(base string, client Fetcher) (Fetcher, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream base %q: %w", base, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upstream base %q must be an absolute URL", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &upstreamFetcher{base: parsed, client: client}, nil
}

func (f *upstreamFetcher) Do(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "" || req.URL.Host == "" {
		resolved := *req.URL
		resolved.Scheme = f.base.Scheme
		resolved.Host = f.base.Host
		req.URL = &resolved
		req.Host = f.base.Host
	}
	return f.client.Do(req)
}
