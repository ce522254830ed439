package viewer

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/crystal-viewer/internal/cache"
	"github.com/ziadkadry99/crystal-viewer/internal/db"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
)

const testPrefix = "/crystal/viewer/"

const cscl = `CsCl
4.11
1 0 0
0 1 0
0 0 1
Cs Cl
1 1
Direct
0 0 0
0.5 0.5 0.5
`

// setupTest starts a file server for structures and builds a Viewer with a
// fresh in-memory cache.
func setupTest(t *testing.T) (*Viewer, *httptest.Server) {
	t.Helper()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CsCl.poscar":
			io.WriteString(w, cscl)
		case "/garbage":
			io.WriteString(w, "<html>not a structure</html>")
		case "/nan.poscar":
			io.WriteString(w, strings.Replace(cscl, "1 0 0", "nan 0 0", 1))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(files.Close)

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	backend := cache.NewSQLiteBackend(database)
	t.Cleanup(func() { backend.Close() })

	v, err := New(Options{
		Title:      "Crystal Viewer",
		PathPrefix: testPrefix,
		Resolver:   resolver.New(resolver.Options{}),
		Cache:      cache.NewMiddleware(backend, 0, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v, files
}

func setupRouter(v *Viewer) chi.Router {
	r := chi.NewRouter()
	r.Route(strings.TrimSuffix(testPrefix, "/"), v.RegisterRoutes)
	return r
}

func structureQuery(files *httptest.Server, path, format, supercell string) string {
	q := url.Values{}
	q.Set(resolver.ParamStructureURL, files.URL+path)
	q.Set(resolver.ParamStructureFormat, format)
	if supercell != "" {
		q.Set(resolver.ParamSupercell, supercell)
	}
	return q.Encode()
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{PathPrefix: testPrefix}); err == nil {
		t.Error("expected error without resolver")
	}
	if _, err := New(Options{PathPrefix: "crystal", Resolver: resolver.New(resolver.Options{})}); err == nil {
		t.Error("expected error for relative prefix")
	}
}

func TestServeIndex(t *testing.T) {
	v, _ := setupTest(t)
	w := get(setupRouter(v), testPrefix)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected text/html content type, got %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"<title>Crystal Viewer</title>", `id="loading-output"`, `id="main_structure"`, testPrefix + "assets/viewer.js"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected index to contain %q", want)
		}
	}
}

func TestServeHelp(t *testing.T) {
	v, _ := setupTest(t)
	w := get(setupRouter(v), testPrefix+"help")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<table>") {
		t.Error("expected markdown table to be rendered")
	}
	if !strings.Contains(body, "structure-url") {
		t.Error("expected help to document structure-url")
	}
}

func TestServeAssets(t *testing.T) {
	v, _ := setupTest(t)
	r := setupRouter(v)

	w := get(r, testPrefix+"assets/viewer.js")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "structure-change") {
		t.Error("expected viewer script")
	}

	if w := get(r, testPrefix+"assets/index.html.tmpl"); w.Code != http.StatusNotFound {
		t.Errorf("templates should not be served, got %d", w.Code)
	}
}

func TestStructureIdle(t *testing.T) {
	v, _ := setupTest(t)
	w := get(setupRouter(v), testPrefix+"_api/structure")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["state"] != "idle" {
		t.Errorf("expected idle state, got %v", body["state"])
	}
	if v, ok := body["structure"]; !ok || v != nil {
		t.Errorf("expected null structure, got %v", v)
	}
	if v, ok := body["loading_output"]; !ok || v != nil {
		t.Errorf("expected null loading_output, got %v", v)
	}
}

func TestStructureLoaded(t *testing.T) {
	v, files := setupTest(t)
	w := get(setupRouter(v), testPrefix+"_api/structure?"+structureQuery(files, "/CsCl.poscar", "poscar", "2,2,2"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		State     string `json:"state"`
		Formula   string `json:"formula"`
		Structure struct {
			Class string            `json:"@class"`
			Sites []json.RawMessage `json:"sites"`
		} `json:"structure"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.State != "loaded" {
		t.Errorf("expected loaded, got %q", body.State)
	}
	if body.Formula != "ClCs" {
		t.Errorf("expected formula ClCs, got %q", body.Formula)
	}
	if body.Structure.Class != "Structure" {
		t.Errorf("expected pymatgen dict, got class %q", body.Structure.Class)
	}
	if len(body.Structure.Sites) != 16 {
		t.Errorf("expected 16 sites in 2x2x2 supercell, got %d", len(body.Structure.Sites))
	}
}

func TestStructureErrors(t *testing.T) {
	v, files := setupTest(t)
	r := setupRouter(v)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantKind   string
	}{
		{"bad supercell", structureQuery(files, "/CsCl.poscar", "poscar", "2,2"), http.StatusBadRequest, KindSupercellArgument},
		{"parse", structureQuery(files, "/garbage", "poscar", ""), http.StatusUnprocessableEntity, KindParse},
		{"nan lattice", structureQuery(files, "/nan.poscar", "poscar", ""), http.StatusUnprocessableEntity, KindParse},
		{"oversized supercell", structureQuery(files, "/CsCl.poscar", "poscar", "2000,2000,2000"), http.StatusBadRequest, KindSupercellArgument},
		{"unknown format", structureQuery(files, "/CsCl.poscar", "pdb", ""), http.StatusUnprocessableEntity, KindParse},
		{"not found", structureQuery(files, "/missing.cif", "cif", ""), http.StatusBadGateway, KindRemoteFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, testPrefix+"_api/structure?"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			var body errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, body.Kind)
			}
			if body.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestStructureCached(t *testing.T) {
	v, files := setupTest(t)
	r := setupRouter(v)
	target := testPrefix + "_api/structure?" + structureQuery(files, "/CsCl.poscar", "poscar", "")

	first := get(r, target)
	if got := first.Header().Get(cache.HeaderCache); got != "MISS" {
		t.Errorf("first request: expected MISS, got %q", got)
	}
	second := get(r, target)
	if got := second.Header().Get(cache.HeaderCache); got != "HIT" {
		t.Errorf("second request: expected HIT, got %q", got)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("cached body differs from original")
	}

	// Failures are never cached.
	bad := testPrefix + "_api/structure?" + structureQuery(files, "/missing.cif", "cif", "")
	get(r, bad)
	if got := get(r, bad).Header().Get(cache.HeaderCache); got != "MISS" {
		t.Errorf("error response should not be cached, got %q", got)
	}
}

func TestWriteJSONUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]float64{"x": math.NaN()})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Kind != KindInternal {
		t.Errorf("expected kind %q, got %q", KindInternal, body.Kind)
	}
}

func TestClassifyUnknownError(t *testing.T) {
	status, body := classify(errors.New("boom"))
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	if body.Kind != KindInternal || strings.Contains(body.Error, "boom") {
		t.Errorf("internal details should not leak: %+v", body)
	}
}

func dialSocket(t *testing.T, v *Viewer) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(setupRouter(v))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + testPrefix + "_ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	return conn
}

func TestWebSocketSearch(t *testing.T) {
	v, files := setupTest(t)
	conn := dialSocket(t, v)

	search := "?" + structureQuery(files, "/CsCl.poscar", "poscar", "1,1,2")
	for i, wantCache := range []string{"MISS", "HIT"} {
		if err := conn.WriteJSON(searchRequest{Type: "search", Search: search}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var resp socketResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Type != "structure" {
			t.Fatalf("expected structure message, got %q: %s", resp.Type, resp.Payload)
		}
		if resp.ConnectionID == "" {
			t.Error("expected connection id")
		}
		if resp.Cache != wantCache {
			t.Errorf("request %d: expected cache %q, got %q", i, wantCache, resp.Cache)
		}

		var payload struct {
			State     string `json:"state"`
			Structure struct {
				Sites []json.RawMessage `json:"sites"`
			} `json:"structure"`
		}
		if err := json.Unmarshal(resp.Payload, &payload); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if payload.State != "loaded" || len(payload.Structure.Sites) != 4 {
			t.Errorf("expected 4 loaded sites, got state %q with %d", payload.State, len(payload.Structure.Sites))
		}
	}
}

func TestWebSocketIdleAndErrors(t *testing.T) {
	v, files := setupTest(t)
	conn := dialSocket(t, v)

	tests := []struct {
		name     string
		message  any
		wantType string
		wantKind string
	}{
		{"idle", searchRequest{Type: "search", Search: ""}, "structure", ""},
		{"fetch error", searchRequest{Type: "search", Search: "?" + structureQuery(files, "/missing.cif", "cif", "")}, "error", KindRemoteFetch},
		{"unknown type", searchRequest{Type: "render"}, "error", KindBadMessage},
		{"bad json", "not json", "error", KindBadMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if s, ok := tt.message.(string); ok {
				err = conn.WriteMessage(websocket.TextMessage, []byte(s))
			} else {
				err = conn.WriteJSON(tt.message)
			}
			if err != nil {
				t.Fatalf("write: %v", err)
			}

			var resp socketResponse
			if err := conn.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Type != tt.wantType {
				t.Fatalf("expected %q, got %q: %s", tt.wantType, resp.Type, resp.Payload)
			}
			if tt.wantKind != "" {
				var body errorResponse
				if err := json.Unmarshal(resp.Payload, &body); err != nil {
					t.Fatalf("decoding payload: %v", err)
				}
				if body.Kind != tt.wantKind {
					t.Errorf("expected kind %q, got %q", tt.wantKind, body.Kind)
				}
			}
		})
	}
}
