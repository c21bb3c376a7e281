package cache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/civitasgis/ageo-edge/internal/metrics"
)

// maxCachedBody bounds what a single cached response may hold. Larger
// responses are served but never stored.
const maxCachedBody = 8 << 20

// Forwarder relays a request to the upstream portal.
type Forwarder interface {
	Forward(ctx context.Context, r *http.Request, body io.Reader) (*http.Response, error)
}

// Policy serves GET requests through the cache, choosing a strategy per
// resource class: documents and static assets are cache-first, API reads
// are network-first with a cached fallback.
type Policy struct {
	store          *Store
	upstream       Forwarder
	offlineURL     string
	staticPrefixes []string
	apiPrefixes    []string
	logger         *slog.Logger
}

// NewPolicy builds the caching policy handler. offlineURL names the page
// shell served when a document is requested while unreachable and uncached.
func NewPolicy(store *Store, upstream Forwarder, offlineURL string, staticPrefixes, apiPrefixes []string, logger *slog.Logger) *Policy {
	return &Policy{
		store:          store,
		upstream:       upstream,
		offlineURL:     offlineURL,
		staticPrefixes: staticPrefixes,
		apiPrefixes:    apiPrefixes,
		logger:         logger.With("component", "cache"),
	}
}

// Classify maps a request to a resource class. Static prefixes win over API
// prefixes; anything else with an HTML Accept header is a document, and the
// remainder is treated as an API read.
func (p *Policy) Classify(r *http.Request) string {
	for _, prefix := range p.staticPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return ClassStatic
		}
	}
	for _, prefix := range p.apiPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return ClassAPI
		}
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return ClassDocument
	}
	return ClassAPI
}

func requestKey(r *http.Request) string {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

// ServeHTTP handles a GET request under the class-appropriate strategy.
// Non-GET requests are never cached and must not reach this handler.
func (p *Policy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := p.Classify(r)
	key := requestKey(r)

	switch class {
	case ClassDocument:
		p.serveCacheFirst(w, r, class, key, true)
	case ClassStatic:
		p.serveCacheFirst(w, r, class, key, false)
	default:
		p.serveNetworkFirst(w, r, class, key)
	}
}

// serveCacheFirst answers from the cache when possible. Documents are
// revalidated in the background after a hit so the next load is fresh;
// static assets are fetched only on a miss.
func (p *Policy) serveCacheFirst(w http.ResponseWriter, r *http.Request, class, key string, revalidate bool) {
	entry, ok, err := p.store.Get(key)
	if err != nil {
		p.logger.Error("cache read failed", "key", key, "error", err)
	}
	if ok {
		metrics.CacheHits.WithLabelValues(class).Inc()
		writeEntry(w, entry)
		if revalidate {
			// Clone before the handler returns; the original request is
			// reused by the server afterwards.
			go p.refresh(class, key, r.Clone(context.Background()))
		}
		return
	}

	metrics.CacheMisses.WithLabelValues(class).Inc()
	resp, err := p.upstream.Forward(r.Context(), r, nil)
	if err != nil {
		p.serveOfflineFallback(w, class)
		return
	}
	defer resp.Body.Close()
	p.relayAndCache(w, resp, class, key)
}

// serveNetworkFirst prefers the live upstream and falls back to the cache
// only when the portal is unreachable.
func (p *Policy) serveNetworkFirst(w http.ResponseWriter, r *http.Request, class, key string) {
	resp, err := p.upstream.Forward(r.Context(), r, nil)
	if err == nil {
		defer resp.Body.Close()
		p.relayAndCache(w, resp, class, key)
		return
	}

	entry, ok, readErr := p.store.Get(key)
	if readErr != nil {
		p.logger.Error("cache read failed", "key", key, "error", readErr)
	}
	if ok {
		metrics.CacheHits.WithLabelValues(class).Inc()
		writeEntry(w, entry)
		return
	}

	metrics.CacheMisses.WithLabelValues(class).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":"Sin conexión","offline":true}`))
}

// serveOfflineFallback answers a document request that missed both the
// network and the cache. Documents get the offline page shell when one has
// been warmed; everything else gets a bare 503.
func (p *Policy) serveOfflineFallback(w http.ResponseWriter, class string) {
	if class == ClassDocument && p.offlineURL != "" {
		entry, ok, err := p.store.Get(p.offlineURL)
		if err == nil && ok {
			writeEntry(w, entry)
			return
		}
	}
	http.Error(w, "Sin conexión", http.StatusServiceUnavailable)
}

// relayAndCache streams an upstream response to the client and stores
// successful, reasonably sized bodies for later offline replays.
func (p *Policy) relayAndCache(w http.ResponseWriter, resp *http.Response, class, key string) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body)

	if resp.StatusCode == http.StatusOK && len(body) <= maxCachedBody {
		err := p.store.Put(key, &Entry{
			Status: resp.StatusCode,
			Header: resp.Header,
			Body:   body,
			Class:  class,
		})
		if err != nil {
			p.logger.Error("cache write failed", "key", key, "error", err)
		}
	}
}

// refresh revalidates a cached document in the background after a hit.
func (p *Policy) refresh(class, key string, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req := r.Clone(ctx)
	req.Body = nil
	resp, err := p.upstream.Forward(ctx, req, nil)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil || len(body) > maxCachedBody {
		return
	}

	err = p.store.Put(key, &Entry{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
		Class:  class,
	})
	if err != nil {
		p.logger.Error("cache refresh failed", "key", key, "error", err)
	}
}

// Warmup precaches the application shell so documents and static assets are
// available on first offline use. Individual failures are logged and
// skipped, a cold start must not abort the daemon.
func (p *Policy) Warmup(ctx context.Context, urls []string) {
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			p.logger.Warn("warmup skipped", "url", u, "error", err)
			continue
		}
		req.Header.Set("Accept", "text/html")

		resp, err := p.upstream.Forward(ctx, req, nil)
		if err != nil {
			p.logger.Warn("warmup fetch failed", "url", u, "error", err)
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody))
		resp.Body.Close()
		if readErr != nil || resp.StatusCode != http.StatusOK {
			p.logger.Warn("warmup fetch failed", "url", u, "status", resp.StatusCode)
			continue
		}

		class := ClassDocument
		for _, prefix := range p.staticPrefixes {
			if strings.HasPrefix(u, prefix) {
				class = ClassStatic
				break
			}
		}
		err = p.store.Put(u, &Entry{
			Status: resp.StatusCode,
			Header: resp.Header,
			Body:   body,
			Class:  class,
		})
		if err != nil {
			p.logger.Warn("warmup store failed", "url", u, "error", err)
			continue
		}
	}
	p.logger.Info("warmup finished", "urls", len(urls))
}

func writeEntry(w http.ResponseWriter, e *Entry) {
	for k, vv := range e.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Served-From-Cache", "true")
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}
