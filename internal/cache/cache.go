// Package cache keeps a versioned snapshot of upstream static assets so
// the app keeps working while disconnected. One generation (version tag
// plus asset manifest) is current at a time; installing a new generation
// fills a fresh bucket completely before activation, and activation
// reclaims every bucket of any other generation eagerly.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Generation is one versioned snapshot of static assets: an opaque
// version tag and the explicit manifest of asset paths resolved against
// the upstream base.
type Generation struct {
	Version string
	Assets  []string
}

// State of the manager's install/activate protocol.
type State int

const (
	StateNoCache State = iota
	StateInstalling
	StateActive
	StateActivating
)

// Manager owns the bucket of the current generation and implements the
// serving policy for intercepted fetches.
type Manager struct {
	gen        Generation
	store      BucketStore
	upstream   *url.URL
	client     *http.Client
	offlineDoc string

	mu      sync.Mutex
	state   State
	current Bucket
}

// NewManager builds a manager for one generation. offlineDoc is the
// manifest path of the canonical offline fallback document served when a
// navigation cannot be satisfied from cache or network. The HTTP client
// deliberately has no timeout: a stalled fetch blocks that request, by
// the ledger's no-cancellation rule.
func NewManager(gen Generation, store BucketStore, upstream *url.URL, offlineDoc string) *Manager {
	return &Manager{
		gen:        gen,
		store:      store,
		upstream:   upstream,
		client:     &http.Client{},
		offlineDoc: offlineDoc,
	}
}

// State reports where the manager is in the install/activate protocol.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Version returns the manager's generation tag.
func (m *Manager) Version() string {
	return m.gen.Version
}

// Install fetches and stores the entire manifest into the bucket of this
// generation. The bucket is only usable once every asset stored
// successfully; a partial fetch deletes the bucket and fails the
// install. Other generations, including a currently active one, are not
// touched.
func (m *Manager) Install(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateInstalling
	m.mu.Unlock()

	bucket, err := m.store.Open(m.gen.Version)
	if err != nil {
		return fmt.Errorf("open bucket %q: %w", m.gen.Version, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, asset := range m.gen.Assets {
		g.Go(func() error {
			body, _, err := m.fetch(gctx, asset)
			if err != nil {
				return fmt.Errorf("fetch manifest asset %q: %w", asset, err)
			}
			if err := bucket.Put(asset, body); err != nil {
				return fmt.Errorf("store manifest asset %q: %w", asset, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// A partial manifest must never be promoted to current.
		if derr := m.store.Delete(m.gen.Version); derr != nil {
			slog.Warn("Failed to discard partial bucket", "version", m.gen.Version, "error", derr)
		}
		m.mu.Lock()
		m.state = StateNoCache
		m.mu.Unlock()
		return err
	}

	slog.InfoContext(ctx, "Cache generation installed",
		"version", m.gen.Version,
		"assets", len(m.gen.Assets))
	return nil
}

// Activate makes this generation current and reclaims every bucket whose
// tag differs. After it returns, exactly one bucket exists.
func (m *Manager) Activate() error {
	m.mu.Lock()
	m.state = StateActivating
	m.mu.Unlock()

	versions, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list cache buckets: %w", err)
	}
	for _, v := range versions {
		if v == m.gen.Version {
			continue
		}
		if err := m.store.Delete(v); err != nil {
			return fmt.Errorf("reclaim stale bucket %q: %w", v, err)
		}
		slog.Info("Stale cache bucket reclaimed", "version", v, "current", m.gen.Version)
	}

	bucket, err := m.store.Open(m.gen.Version)
	if err != nil {
		return fmt.Errorf("open current bucket: %w", err)
	}

	m.mu.Lock()
	m.current = bucket
	m.state = StateActive
	m.mu.Unlock()

	slog.Info("Cache generation active", "version", m.gen.Version)
	return nil
}

// Handler returns the fetch interceptor. Navigations are served
// cache-first with a network fallback and finally the offline document,
// so a navigation never hard-fails while offline. Sub-resources are
// served cache-first; a miss goes to the network and the successful body
// is copied into the current bucket asynchronously. A failed
// sub-resource fetch with no cache entry propagates as a bad gateway.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := m.currentBucket()
		if bucket == nil {
			http.Error(w, "cache not active", http.StatusServiceUnavailable)
			return
		}

		reqPath := r.URL.Path
		if isNavigation(r) {
			m.serveNavigation(w, r, bucket, reqPath)
			return
		}
		m.serveSubResource(w, r, bucket, reqPath)
	})
}

func (m *Manager) serveNavigation(w http.ResponseWriter, r *http.Request, bucket Bucket, reqPath string) {
	if body, ok, err := bucket.Get(reqPath); err == nil && ok {
		writeAsset(w, reqPath, body)
		return
	}

	body, contentType, err := m.fetch(r.Context(), reqPath)
	if err == nil {
		writeFetched(w, reqPath, contentType, body)
		return
	}

	slog.InfoContext(r.Context(), "Navigation fell back to offline document",
		"path", reqPath, "error", err)
	offline, ok, oerr := bucket.Get(m.offlineDoc)
	if oerr != nil || !ok {
		http.Error(w, "offline and no cached fallback", http.StatusBadGateway)
		return
	}
	writeAsset(w, m.offlineDoc, offline)
}

func (m *Manager) serveSubResource(w http.ResponseWriter, r *http.Request, bucket Bucket, reqPath string) {
	// Cache hit is served immediately, no revalidation in the way.
	if body, ok, err := bucket.Get(reqPath); err == nil && ok {
		writeAsset(w, reqPath, body)
		return
	}

	body, contentType, err := m.fetch(r.Context(), reqPath)
	if err != nil {
		slog.WarnContext(r.Context(), "Sub-resource fetch failed with no cache entry",
			"path", reqPath, "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	// Opportunistic copy for next time. Fire-and-forget: a slow write
	// never delays the response, and a write lost to a concurrent bucket
	// reclaim is acceptable.
	go func() {
		if err := bucket.Put(reqPath, body); err != nil {
			slog.Warn("Opportunistic cache write failed", "path", reqPath, "error", err)
		}
	}()

	writeFetched(w, reqPath, contentType, body)
}

func (m *Manager) currentBucket() Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// fetch retrieves one upstream asset and returns its body and
// content type. Non-2xx responses count as failures.
func (m *Manager) fetch(ctx context.Context, assetPath string) ([]byte, string, error) {
	ref, err := url.Parse(strings.TrimPrefix(assetPath, "/"))
	if err != nil {
		return nil, "", fmt.Errorf("resolve asset path %q: %w", assetPath, err)
	}
	target := m.upstream.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %q: %w", assetPath, err)
	}
	res, err := m.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, "", fmt.Errorf("upstream returned %d for %q", res.StatusCode, assetPath)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read upstream body for %q: %w", assetPath, err)
	}
	return body, res.Header.Get("Content-Type"), nil
}

func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeAsset(w http.ResponseWriter, reqPath string, body []byte) {
	if ct := mime.TypeByExtension(path.Ext(reqPath)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", http.DetectContentType(body))
	}
	_, _ = w.Write(body)
}

func writeFetched(w http.ResponseWriter, reqPath string, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
		return
	}
	writeAsset(w, reqPath, body)
}
