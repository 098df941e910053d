package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func upstreamServer(t *testing.T, assets map[string]string) (*httptest.Server, *url.URL) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	return srv, u
}

var defaultAssets = map[string]string{
	"/index.html":        "<html>index</html>",
	"/expenses.html":     "<html>expenses</html>",
	"/static/styles.css": "body{}",
	"/static/app.js":     "console.log(1)",
}

func manifest() []string {
	return []string{"/index.html", "/expenses.html", "/static/styles.css", "/static/app.js"}
}

func TestInstallFillsBucketCompletely(t *testing.T) {
	_, up := upstreamServer(t, defaultAssets)
	store := NewMemoryBucketStore()
	m := NewManager(Generation{Version: "v1", Assets: manifest()}, store, up, "/index.html")

	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	bucket, _ := store.Open("v1")
	for _, a := range manifest() {
		if _, ok, _ := bucket.Get(a); !ok {
			t.Fatalf("asset %q missing after install", a)
		}
	}
}

func TestPartialInstallIsNotPromoted(t *testing.T) {
	assets := map[string]string{"/index.html": "x"} // everything else 404s
	_, up := upstreamServer(t, assets)
	store := NewMemoryBucketStore()
	m := NewManager(Generation{Version: "v1", Assets: manifest()}, store, up, "/index.html")

	if err := m.Install(context.Background()); err == nil {
		t.Fatalf("expected install failure on partial manifest")
	}
	versions, _ := store.List()
	if len(versions) != 0 {
		t.Fatalf("partial bucket survived: %v", versions)
	}
}

func TestActivateLeavesExactlyOneBucket(t *testing.T) {
	_, up := upstreamServer(t, defaultAssets)
	store := NewMemoryBucketStore()

	v1 := NewManager(Generation{Version: "v1", Assets: manifest()}, store, up, "/index.html")
	if err := v1.Install(context.Background()); err != nil {
		t.Fatalf("install v1: %v", err)
	}
	if err := v1.Activate(); err != nil {
		t.Fatalf("activate v1: %v", err)
	}

	// Deploying v2 over v1: install does not disturb v1, activation
	// reclaims it.
	v2 := NewManager(Generation{Version: "v2", Assets: manifest()}, store, up, "/index.html")
	if err := v2.Install(context.Background()); err != nil {
		t.Fatalf("install v2: %v", err)
	}
	versions, _ := store.List()
	sort.Strings(versions)
	if len(versions) != 2 {
		t.Fatalf("expected both buckets before activation, got %v", versions)
	}

	if err := v2.Activate(); err != nil {
		t.Fatalf("activate v2: %v", err)
	}
	versions, _ = store.List()
	if len(versions) != 1 || versions[0] != "v2" {
		t.Fatalf("expected exactly [v2], got %v", versions)
	}
	if v2.State() != StateActive {
		t.Fatalf("expected active state, got %v", v2.State())
	}

	// The surviving bucket contains every manifest asset.
	bucket, _ := store.Open("v2")
	for _, a := range manifest() {
		if _, ok, _ := bucket.Get(a); !ok {
			t.Fatalf("asset %q missing from surviving bucket", a)
		}
	}
}

func activeManager(t *testing.T, up *url.URL) *Manager {
	t.Helper()
	store := NewMemoryBucketStore()
	m := NewManager(Generation{Version: "v1", Assets: manifest()}, store, up, "/index.html")
	if err := m.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return m
}

func TestNavigationServedFromCacheWhileOffline(t *testing.T) {
	srv, up := upstreamServer(t, defaultAssets)
	m := activeManager(t, up)
	srv.Close() // go offline

	req := httptest.NewRequest(http.MethodGet, "/expenses.html", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "expenses") {
		t.Fatalf("cached navigation failed: %d %q", rr.Code, rr.Body.String())
	}
}

func TestNavigationFallsBackToOfflineDocument(t *testing.T) {
	srv, up := upstreamServer(t, defaultAssets)
	m := activeManager(t, up)
	srv.Close()

	// Uncached page while offline: never hard-fails, serves the
	// canonical offline document instead.
	req := httptest.NewRequest(http.MethodGet, "/reports.html", nil)
	req.Header.Set("Accept", "text/html")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "index") {
		t.Fatalf("expected offline document, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestSubResourceMissFetchesAndStores(t *testing.T) {
	assets := map[string]string{"/static/extra.css": ".x{}"}
	for k, v := range defaultAssets {
		assets[k] = v
	}
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	up, _ := url.Parse(srv.URL + "/")
	m := activeManager(t, up)
	hits.Store(0)

	req := httptest.NewRequest(http.MethodGet, "/static/extra.css", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != ".x{}" {
		t.Fatalf("miss fetch failed: %d %q", rr.Code, rr.Body.String())
	}

	// The opportunistic store is async; wait for it to land in the bucket.
	bucket := m.currentBucket()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := bucket.Get("/static/extra.css"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("asset never stored")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Now a hit: served from cache, upstream not consulted again.
	before := hits.Load()
	rr = httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/extra.css", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != ".x{}" {
		t.Fatalf("cached serve failed: %d %q", rr.Code, rr.Body.String())
	}
	if hits.Load() != before {
		t.Fatalf("upstream consulted on cache hit")
	}
}

func TestSubResourceFailurePropagates(t *testing.T) {
	srv, up := upstreamServer(t, defaultAssets)
	m := activeManager(t, up)
	srv.Close()

	// No cache entry, no network: the failure propagates, no fallback.
	req := httptest.NewRequest(http.MethodGet, "/static/missing.js", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestDiskBucketStore(t *testing.T) {
	store, err := NewDiskBucketStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	b, err := store.Open("v1")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	if err := b.Put("/static/styles.css", []byte("body{}")); err != nil {
		t.Fatalf("put: %v", err)
	}
	body, ok, err := b.Get("/static/styles.css")
	if err != nil || !ok || string(body) != "body{}" {
		t.Fatalf("get: %q %v %v", body, ok, err)
	}
	if _, ok, _ := b.Get("/nope"); ok {
		t.Fatalf("unexpected hit")
	}

	if _, err := store.Open("v2"); err != nil {
		t.Fatalf("open v2: %v", err)
	}
	versions, _ := store.List()
	if len(versions) != 2 {
		t.Fatalf("expected 2 buckets, got %v", versions)
	}
	if err := store.Delete("v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	versions, _ = store.List()
	if len(versions) != 1 || versions[0] != "v2" {
		t.Fatalf("expected [v2], got %v", versions)
	}
}
