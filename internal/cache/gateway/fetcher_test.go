package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpstreamFetcherResolvesRelativeURLs(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewUpstreamFetcher(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewUpstreamFetcher: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
	req.RequestURI = ""
	resp, err := fetcher.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "from /assets/app.js" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestUpstreamFetcherRejectsRelativeBase(t *testing.T) {
	t.Parallel()
	if _, err := NewUpstreamFetcher("/not-absolute", nil); err == nil {
		t.Fatal("expected an error for a relative base URL")
	}
}

func TestUpstreamFetcherKeepsAbsoluteURLs(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("direct"))
	}))
	t.Cleanup(srv.Close)

	// The base points nowhere; an already-absolute request URL must win.
	fetcher, err := NewUpstreamFetcher("http://127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("NewUpstreamFetcher: %v", err)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ping", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := fetcher.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "direct" {
		t.Fatalf("unexpected body %q", body)
	}
}
