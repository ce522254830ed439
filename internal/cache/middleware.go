package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ziadkadry99/crystal-viewer/internal/logging"
	"github.com/ziadkadry99/crystal-viewer/internal/metrics"
)

// HeaderCache reports whether a response came from the cache.
const HeaderCache = "X-Cache"

// entry is the stored form of a response.
type entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Middleware caches successful GET responses in a Backend.
type Middleware struct {
	backend Backend
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewMiddleware returns a caching middleware. m may be nil.
func NewMiddleware(backend Backend, ttl time.Duration, m *metrics.Metrics) *Middleware {
	return &Middleware{backend: backend, ttl: ttl, metrics: m}
}

// Key derives the cache key from the request method and full request URI.
func Key(r *http.Request) string {
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.RequestURI()))
	return hex.EncodeToString(sum[:])
}

// Handler wraps next. Concurrent misses for the same key run next once and
// share its response.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		logger := logging.FromContext(ctx).With("cache", m.backend.Name())
		key := Key(r)

		raw, ok, err := m.backend.Get(ctx, key)
		if err != nil {
			logger.Warn("cache lookup failed, serving uncached", "error", err)
			m.count("error")
			next.ServeHTTP(w, r)
			return
		}
		if ok {
			var e entry
			if err := json.Unmarshal(raw, &e); err == nil {
				m.count("hit")
				writeEntry(w, &e, "HIT")
				return
			}
			logger.Warn("discarding undecodable cache entry", "key", key)
		}

		m.count("miss")
		v, _, _ := m.group.Do(key, func() (any, error) {
			// Coalesced callers share this run, so it must outlive the
			// client that started it.
			shared := context.WithoutCancel(ctx)
			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r.WithContext(shared))
			e := rec.entry()
			if e.Status == http.StatusOK {
				m.store(shared, logger, key, e)
			}
			return e, nil
		})
		writeEntry(w, v.(*entry), "MISS")
	})
}

func (m *Middleware) store(ctx context.Context, logger *slog.Logger, key string, e *entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		logger.Warn("encoding cache entry", "error", err)
		return
	}
	if err := m.backend.Set(ctx, key, raw, m.ttl); err != nil {
		logger.Warn("cache store failed", "error", err)
	}
}

func (m *Middleware) count(result string) {
	if m.metrics != nil {
		m.metrics.CacheRequests.WithLabelValues(result).Inc()
	}
}

func writeEntry(w http.ResponseWriter, e *entry, state string) {
	h := w.Header()
	for k, vs := range e.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set(HeaderCache, state)
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

// recorder buffers a response so it can be stored and replayed.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) entry() *entry {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &entry{Status: status, Header: r.header, Body: r.body.Bytes()}
}
