package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/crystal-viewer/internal/logging"
	"github.com/ziadkadry99/crystal-viewer/internal/metrics"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
	"github.com/ziadkadry99/crystal-viewer/internal/viewer"
)

func newViewer(t *testing.T, prefix string) *viewer.Viewer {
	t.Helper()
	v, err := viewer.New(viewer.Options{
		Title:      "Crystal Viewer",
		PathPrefix: prefix,
		Resolver:   resolver.New(resolver.Options{}),
	})
	if err != nil {
		t.Fatalf("viewer.New: %v", err)
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	srv := New(Config{}, logging.Discard(), nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := New(Config{AllowAll: true}, logging.Discard(), nil, nil)

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Resolutions.WithLabelValues(metrics.OutcomeLoaded).Inc()
	srv := New(Config{}, logging.Discard(), m, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `crystalviewer_resolutions_total{outcome="loaded"} 1`) {
		t.Error("expected resolution counter in exposition")
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := New(Config{}, logging.Discard(), nil, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", w.Code)
	}
}

func TestViewerMountedUnderPrefix(t *testing.T) {
	srv := New(Config{}, logging.Discard(), nil, newViewer(t, "/crystal/viewer/"))

	req := httptest.NewRequest("GET", "/crystal/viewer/", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for viewer page, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "main_structure") {
		t.Error("expected viewer page")
	}

	req = httptest.NewRequest("GET", "/", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect from /, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/crystal/viewer/" {
		t.Errorf("expected redirect to prefix, got %q", loc)
	}

	req = httptest.NewRequest("GET", "/crystal/viewer/_api/structure", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"idle"`) {
		t.Errorf("expected idle structure response, got %d: %s", w.Code, w.Body.String())
	}
}

func TestViewerAtRoot(t *testing.T) {
	srv := New(Config{}, logging.Discard(), nil, newViewer(t, "/"))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCompression(t *testing.T) {
	srv := New(Config{Compress: true}, logging.Discard(), nil, newViewer(t, "/crystal/viewer/"))

	req := httptest.NewRequest("GET", "/crystal/viewer/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("expected gzip encoding, got %q", got)
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	srv := New(Config{}, logger, nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["path"] != "/healthz" {
		t.Errorf("expected path in log, got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200 in log, got %v", entry["status"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("expected request_id in log")
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := New(Config{}, logging.Discard(), nil, nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	url := "http://" + l.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v after shutdown", err)
	}
}
