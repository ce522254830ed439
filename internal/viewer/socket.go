package viewer

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/crystal-viewer/internal/cache"
	"github.com/ziadkadry99/crystal-viewer/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// searchRequest is the incoming WebSocket message format. The page sends
// one whenever its location changes.
type searchRequest struct {
	Type   string `json:"type"`   // "search"
	Search string `json:"search"` // location.search, e.g. "?structure-url=..."
}

// socketResponse is the outgoing WebSocket message format. Payload holds a
// structureResponse or an errorResponse.
type socketResponse struct {
	Type         string          `json:"type"` // "structure" or "error"
	ConnectionID string          `json:"connection_id"`
	Search       string          `json:"search"`
	Cache        string          `json:"cache,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

func (v *Viewer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := logging.FromContext(r.Context()).With("connection_id", connID)
	ctx := logging.WithLogger(r.Context(), logger)
	logger.Debug("viewer connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read", "error", err)
			}
			return
		}

		var req searchRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			v.sendError(conn, logger, connID, "", "invalid message format")
			continue
		}
		if req.Type != "search" {
			v.sendError(conn, logger, connID, req.Search, "unknown message type: "+req.Type)
			continue
		}

		// Route through the structure endpoint so cached entries are shared
		// with plain HTTP clients.
		apiReq := (&http.Request{
			Method:     http.MethodGet,
			URL:        &url.URL{Path: v.prefix + "_api/structure", RawQuery: strings.TrimPrefix(req.Search, "?")},
			Header:     make(http.Header),
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Host:       r.Host,
		}).WithContext(ctx)
		rec := newBufferedResponse()
		v.api.ServeHTTP(rec, apiReq)

		resp := socketResponse{
			Type:         "structure",
			ConnectionID: connID,
			Search:       req.Search,
			Cache:        rec.header.Get(cache.HeaderCache),
			Payload:      json.RawMessage(bytes.TrimSpace(rec.body.Bytes())),
		}
		if rec.status != http.StatusOK {
			resp.Type = "error"
		}
		v.send(conn, logger, resp)
	}
}

func (v *Viewer) send(conn *websocket.Conn, logger *slog.Logger, resp socketResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		logger.Warn("websocket write", "error", err)
	}
}

func (v *Viewer) sendError(conn *websocket.Conn, logger *slog.Logger, connID, search, message string) {
	payload, _ := json.Marshal(errorResponse{Error: message, Kind: KindBadMessage})
	v.send(conn, logger, socketResponse{
		Type:         "error",
		ConnectionID: connID,
		Search:       search,
		Payload:      payload,
	})
}

// bufferedResponse captures an in-process response.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}
