package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/crystal-viewer/internal/db"
	"github.com/ziadkadry99/crystal-viewer/internal/logging"
	"github.com/ziadkadry99/crystal-viewer/internal/metrics"
)

func newSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	b := NewSQLiteBackend(database)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	b := newSQLite(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v1"), time.Hour))
	require.NoError(t, b.Set(ctx, "k", []byte("v2"), time.Hour))
	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	now = now.Add(2 * time.Hour)
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	var count int
	require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM response_cache").Scan(&count))
	assert.Equal(t, 0, count, "expired entry should be removed on read")
}

func TestSQLitePurge(t *testing.T) {
	ctx := context.Background()
	b := newSQLite(t)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, b.Set(ctx, "long", []byte("b"), time.Hour))
	now = now.Add(10 * time.Minute)

	n, err := b.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := b.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := newSQLite(t)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, b.Set(ctx, "long", []byte("b"), time.Hour))
	now = now.Add(10 * time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Sweep(ctx, 10*time.Millisecond, logging.Discard())
	}()

	assert.Eventually(t, func() bool {
		var count int
		err := b.db.QueryRow("SELECT COUNT(*) FROM response_cache").Scan(&count)
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not stop after cancel")
	}
}

func TestSQLiteZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	b := newSQLite(t)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	now = now.AddDate(10, 0, 0)

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	// Bare host:port as used by REDIS_URL deployments.
	b, err := OpenRedis(ctx, mr.Addr())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "redis", b.Name())

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("payload"), time.Minute))
	assert.True(t, mr.Exists(keyPrefix+"k"))

	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenRedisErrors(t *testing.T) {
	ctx := context.Background()
	_, err := OpenRedis(ctx, "redis://127.0.0.1:1/0")
	assert.Error(t, err)
	_, err = OpenRedis(ctx, "http://not-redis")
	assert.Error(t, err)
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}
func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("backend down")
}
func (failingBackend) Name() string { return "failing" }
func (failingBackend) Close() error { return nil }

func TestMiddlewareHitAndMiss(t *testing.T) {
	m := metrics.New()
	calls := 0
	h := NewMiddleware(newSQLite(t), time.Hour, m).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"n":%d}`, calls)
	}))

	do := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	first := do("/api?structure-url=a&structure-format=cif")
	assert.Equal(t, "MISS", first.Header().Get(HeaderCache))
	assert.Equal(t, `{"n":1}`, first.Body.String())

	second := do("/api?structure-url=a&structure-format=cif")
	assert.Equal(t, "HIT", second.Header().Get(HeaderCache))
	assert.Equal(t, `{"n":1}`, second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	// A different query is a different request.
	other := do("/api?structure-url=b&structure-format=cif")
	assert.Equal(t, "MISS", other.Header().Get(HeaderCache))
	assert.Equal(t, 2, calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")))
}

func TestMiddlewareSkipsErrorsAndNonGET(t *testing.T) {
	calls := 0
	h := NewMiddleware(newSQLite(t), time.Hour, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api?x=1", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "MISS", w.Header().Get(HeaderCache))
	}
	assert.Equal(t, 2, calls)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api?x=1", nil))
	assert.Empty(t, w.Header().Get(HeaderCache))
	assert.Equal(t, 3, calls)
}

func TestMiddlewareBackendFailurePassesThrough(t *testing.T) {
	h := NewMiddleware(failingBackend{}, time.Hour, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "fresh")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh", w.Body.String())
	assert.Empty(t, w.Header().Get(HeaderCache))
}

func TestMiddlewareCoalescesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	h := NewMiddleware(newSQLite(t), time.Hour, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		io.WriteString(w, "shared")
	}))

	var wg sync.WaitGroup
	bodies := make([]string, 8)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api?same=1", nil))
			bodies[i] = w.Body.String()
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, b := range bodies {
		assert.Equal(t, "shared", b)
	}
}

func TestMiddlewareSharedRunOutlivesCaller(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := NewMiddleware(newSQLite(t), time.Hour, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		if r.Context().Err() != nil {
			http.Error(w, "cancelled", http.StatusBadGateway)
			return
		}
		io.WriteString(w, "done")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	first := httptest.NewRecorder()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api?slow=1", nil).WithContext(ctx))
	}()

	<-entered
	cancel()
	close(release)
	<-finished

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "done", first.Body.String())

	again := httptest.NewRecorder()
	h.ServeHTTP(again, httptest.NewRequest(http.MethodGet, "/api?slow=1", nil))
	assert.Equal(t, "HIT", again.Header().Get(HeaderCache))
}

func TestKeyIncludesMethodAndQuery(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/x?a=1", nil)
	b := httptest.NewRequest(http.MethodGet, "/x?a=2", nil)
	c := httptest.NewRequest(http.MethodHead, "/x?a=1", nil)
	assert.NotEqual(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c))
	assert.Equal(t, Key(a), Key(httptest.NewRequest(http.MethodGet, "/x?a=1", nil)))
}
