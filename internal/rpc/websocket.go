package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jacksodj/unicel-sub000/internal/logging"
)

const (
	// pongWait is how long a connection may stay silent before it is
	// considered dead. Any frame, including client pings, resets it.
	pongWait = 60 * time.Second
	// writeWait bounds a single response or control write.
	writeWait = 10 * time.Second
	// maxMessageBytes caps one request, shared with the stdio loop.
	maxMessageBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local tooling connects from arbitrary origins (or none at all).
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var startTime = time.Now()

// HealthInfo is the health check response.
type HealthInfo struct {
	Status   string `json:"status"`
	Workbook string `json:"workbook"`
	Sheets   int    `json:"sheets"`
	Uptime   string `json:"uptime"`
}

// Handler returns the HTTP handler serving the WebSocket RPC endpoint
// at /rpc and a health probe at /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	return mux
}

// ListenAndServe serves the WebSocket transport on addr until the
// listener fails.
func (s *Server) ListenAndServe(addr string) error {
	logging.Info("rpc server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "only GET is allowed"})
		return
	}

	s.mu.RLock()
	meta := s.wb.Describe()
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, HealthInfo{
		Status:   "healthy",
		Workbook: meta.Name,
		Sheets:   len(meta.Sheets),
		Uptime:   time.Since(startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	// The hijacked connection outlives this handler, so its context
	// cannot derive from the request's.
	ctx := logging.WithConnID(context.Background(), uuid.New().String())
	logging.LoggerFromContext(ctx).Info("client connected", "remote", r.RemoteAddr)
	go s.connLoop(ctx, conn)
}

// connLoop serves one connection: read a request, dispatch, write the
// response. One goroutine per connection does both directions, so no
// write ever races another.
func (s *Server) connLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		logging.LoggerFromContext(ctx).Info("client disconnected")
	}()

	conn.SetReadLimit(maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LoggerFromContext(ctx).Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		resp := s.Handle(ctx, msg)
		if resp == nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			logging.LoggerFromContext(ctx).Warn("websocket write failed", "error", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
