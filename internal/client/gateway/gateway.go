// Package gateway is a caching HTTP proxy in front of the FleetZen web
// origin. Same-origin GET requests go to the network first and fall back to
// stored responses when the origin cannot be reached, so the app shell keeps
// loading offline. Everything else passes through untouched.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

// MessagePath receives control messages for the gateway.
const MessagePath = "/__gateway/message"

const maxCachedBody = 10 << 20

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Gateway is safe for concurrent use.
type Gateway struct {
	origin      *url.URL
	store       *Store
	client      *http.Client
	offlinePage string
	logger      logging.Logger
	now         func() time.Time

	mu      sync.RWMutex
	active  string
	waiting string
}

// New returns a gateway for origin that caches into store. offlinePage is
// the precached path served to navigations that cannot be satisfied.
func New(origin string, store *Store, offlinePage string, logger logging.Logger) (*Gateway, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin %q: scheme must be http or https", origin)
	}

	active, waiting, err := store.versions()
	if err != nil {
		return nil, err
	}

	return &Gateway{
		origin:      u,
		store:       store,
		client:      &http.Client{Timeout: 15 * time.Second},
		offlinePage: offlinePage,
		logger:      logger.With("module", "gateway"),
		now:         time.Now,
		active:      active,
		waiting:     waiting,
	}, nil
}

// Versions returns the active and the waiting cache version.
func (g *Gateway) Versions() (active, waiting string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active, g.waiting
}

// Install fetches urls into the precache of version. The first version
// installed becomes active at once; a later one waits for Activate. Any
// failed fetch fails the whole install.
func (g *Gateway) Install(ctx context.Context, version string, urls []string) (activated bool, err error) {
	if version == "" {
		return false, errors.New("cache version is required")
	}

	entries := make(map[string]*Entry, len(urls))
	for _, raw := range urls {
		target, err := g.resolve(raw)
		if err != nil {
			return false, err
		}
		e, err := g.fetchEntry(ctx, target)
		if err != nil {
			return false, fmt.Errorf("precache %s: %w", raw, err)
		}
		entries[cacheKey(http.MethodGet, target)] = e
	}

	cache := precachePrefix + version
	for key, e := range entries {
		if err := g.store.Put(cache, key, e); err != nil {
			return false, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.active == "" || g.active == version:
		g.active, g.waiting = version, ""
		activated = true
	default:
		g.waiting = version
	}
	if err := g.store.setVersions(g.active, g.waiting); err != nil {
		return false, err
	}
	g.logger.Info(ctx, "precache installed", "version", version, "urls", len(urls), "active", activated)
	return activated, nil
}

// Activate makes the waiting version current and deletes the caches of
// every other version. It is a no-op cleanup when nothing is waiting.
func (g *Gateway) Activate(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.waiting != "" {
		g.active, g.waiting = g.waiting, ""
		if err := g.store.setVersions(g.active, g.waiting); err != nil {
			g.mu.Unlock()
			return "", err
		}
	}
	active := g.active
	g.mu.Unlock()

	deleted, err := g.store.Prune(active)
	if err != nil {
		return "", err
	}
	if len(deleted) > 0 {
		g.logger.Info(ctx, "old caches deleted", "active", active, "deleted", strings.Join(deleted, ","))
	}
	return active, nil
}

// CacheURLs fetches urls into the runtime cache and returns how many were
// stored. Failures are skipped.
func (g *Gateway) CacheURLs(ctx context.Context, urls []string) int {
	cache := g.runtimeCache()
	stored := 0
	for _, raw := range urls {
		target, err := g.resolve(raw)
		if err != nil {
			g.logger.Warn(ctx, "url not cached", "url", raw, "error", err)
			continue
		}
		e, err := g.fetchEntry(ctx, target)
		if err == nil {
			err = g.store.Put(cache, cacheKey(http.MethodGet, target), e)
		}
		if err != nil {
			g.logger.Warn(ctx, "url not cached", "url", raw, "error", err)
			continue
		}
		stored++
	}
	return stored
}

// Handler returns the HTTP handler serving the proxy and the control
// endpoint.
func (g *Gateway) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST(MessagePath, g.handleMessage)
	r.NoRoute(func(c *gin.Context) { g.serve(c.Writer, c.Request) })
	return r
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.IsAbs() && !g.sameOrigin(r.URL) {
		g.passThrough(w, r, r.URL)
		return
	}

	target := g.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	if r.Method != http.MethodGet {
		g.passThrough(w, r, target)
		return
	}

	key := cacheKey(r.Method, target)
	resp, err := g.forward(r, target)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			writeResponse(w, resp.StatusCode, resp.Header, resp.Body)
			return
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
		if err != nil {
			g.logger.Warn(ctx, "origin body read failed", "url", target.String(), "error", err)
			g.fallback(w, r, key)
			return
		}
		if len(body) > maxCachedBody {
			// too large to cache: pass the buffered prefix and the rest through
			g.logger.Debug(ctx, "response too large to cache", "url", target.String())
			writeResponse(w, resp.StatusCode, resp.Header, io.MultiReader(bytes.NewReader(body), resp.Body))
			return
		}
		e := &Entry{Status: resp.StatusCode, Header: cleanHeader(resp.Header), Body: body, StoredAt: g.now()}
		if err := g.store.Put(g.runtimeCache(), key, e); err != nil {
			g.logger.Warn(ctx, "response not cached", "url", target.String(), "error", err)
		}
		writeResponse(w, resp.StatusCode, resp.Header, bytes.NewReader(body))
		return
	}

	g.logger.Debug(ctx, "origin unreachable, serving from cache", "url", target.String(), "error", err)
	g.fallback(w, r, key)
}

// fallback serves from the runtime cache, then the precache, then the
// offline page for navigations, then a synthesized 503.
func (g *Gateway) fallback(w http.ResponseWriter, r *http.Request, key string) {
	active, _ := g.Versions()
	caches := []string{g.runtimeCache()}
	if active != "" {
		caches = append(caches, precachePrefix+active)
	}

	for _, cache := range caches {
		if e := g.lookup(r.Context(), cache, key); e != nil {
			writeEntry(w, e)
			return
		}
	}

	if isNavigation(r) && active != "" && g.offlinePage != "" {
		page := g.origin.ResolveReference(&url.URL{Path: g.offlinePage})
		if e := g.lookup(r.Context(), precachePrefix+active, cacheKey(http.MethodGet, page)); e != nil {
			writeEntry(w, e)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, "content not available")
}

func (g *Gateway) lookup(ctx context.Context, cache, key string) *Entry {
	e, err := g.store.Get(cache, key)
	if err != nil {
		g.logger.Warn(ctx, "cache lookup failed", "cache", cache, "error", err)
		return nil
	}
	return e
}

func (g *Gateway) passThrough(w http.ResponseWriter, r *http.Request, target *url.URL) {
	resp, err := g.forward(r, target)
	if err != nil {
		g.logger.Debug(r.Context(), "pass-through failed", "url", target.String(), "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	writeResponse(w, resp.StatusCode, resp.Header, resp.Body)
}

func (g *Gateway) forward(r *http.Request, target *url.URL) (*http.Response, error) {
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	out.Header = cleanHeader(r.Header)
	out.ContentLength = r.ContentLength
	return g.client.Do(out)
}

func (g *Gateway) fetchEntry(ctx context.Context, target *url.URL) (*Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxCachedBody {
		return nil, errors.New("response too large to cache")
	}
	return &Entry{Status: resp.StatusCode, Header: cleanHeader(resp.Header), Body: body, StoredAt: g.now()}, nil
}

func (g *Gateway) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	u = g.origin.ResolveReference(u)
	if !g.sameOrigin(u) {
		return nil, fmt.Errorf("url %q is not on %s", raw, g.origin.Host)
	}
	return u, nil
}

func (g *Gateway) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, g.origin.Scheme) && strings.EqualFold(u.Host, g.origin.Host)
}

func (g *Gateway) runtimeCache() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return runtimePrefix + g.active
}

func cacheKey(method string, u *url.URL) string {
	return method + " " + u.String()
}

func isNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

func cleanHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	return out
}

func writeResponse(w http.ResponseWriter, status int, h http.Header, body io.Reader) {
	for k, vv := range cleanHeader(h) {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(status)
	_, _ = io.Copy(w, body)
}

func writeEntry(w http.ResponseWriter, e *Entry) {
	w.Header().Del("Content-Length")
	writeResponse(w, e.Status, e.Header, bytes.NewReader(e.Body))
}
