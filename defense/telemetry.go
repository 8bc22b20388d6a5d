package defense

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skyshield/skyshield/sim"
)

// Snapshot is the per-tick state view broadcast to observers.
type Snapshot struct {
	Tick         uint64             `json:"tick"`
	Clock        float64            `json:"clock"`
	Threats      []*sim.Threat      `json:"threats"`
	Interceptors []*sim.Interceptor `json:"interceptors"`
	Engagements  []*sim.Engagement  `json:"engagements"`
	Events       []Event            `json:"events"`
	Stats        EngineStats        `json:"stats"`
}

// TelemetryServer streams engine snapshots to WebSocket observers and
// serves the status endpoint. Observers are read-only; a client that
// falls behind or errors is dropped.
type TelemetryServer struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func NewTelemetryServer(log zerolog.Logger) *TelemetryServer {
	return &TelemetryServer{
		log: log.With().Str("comp", "telemetry").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades an observer connection and registers it for
// snapshot broadcasts.
func (ts *TelemetryServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ts.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ts.mu.Lock()
	ts.clients[conn] = struct{}{}
	count := len(ts.clients)
	ts.mu.Unlock()
	ts.log.Info().Int("observers", count).Msg("observer connected")

	// Drain (and discard) incoming messages so pings and close frames
	// are processed; observers have nothing to say to the engine.
	go func() {
		defer ts.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (ts *TelemetryServer) drop(conn *websocket.Conn) {
	ts.mu.Lock()
	if _, ok := ts.clients[conn]; ok {
		delete(ts.clients, conn)
		conn.Close()
	}
	count := len(ts.clients)
	ts.mu.Unlock()
	ts.log.Info().Int("observers", count).Msg("observer disconnected")
}

// Broadcast sends a snapshot to every connected observer.
func (ts *TelemetryServer) Broadcast(snap Snapshot) {
	ts.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(ts.clients))
	for c := range ts.clients {
		conns = append(conns, c)
	}
	ts.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		ts.log.Error().Err(err).Msg("snapshot marshal failed")
		return
	}

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			ts.drop(c)
		}
	}
}

// ClientCount returns the number of connected observers.
func (ts *TelemetryServer) ClientCount() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.clients)
}

// HandleStatus serves the cumulative engine statistics as JSON.
func (ts *TelemetryServer) HandleStatus(stats func() EngineStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
