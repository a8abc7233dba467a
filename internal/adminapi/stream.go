package adminapi

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/orbital/kernel/internal/auditbus"
)

// hub fans auditbus events out to connected WebSocket clients — the
// same register/unregister/broadcast shape as the teacher's
// websocket.DAGStreamer, subscribing once to the audit bus instead of
// being fed events by callers directly.
type hub struct {
	bus    auditbus.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func newHub(bus auditbus.Bus, logger *slog.Logger) *hub {
	return &hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// run subscribes to the audit bus once and forwards every event to every
// currently-connected client for the hub's lifetime.
func (h *hub) run() {
	ch, cancel := h.bus.Subscribe()
	defer cancel()
	for event := range ch {
		h.mu.Lock()
		for conn := range h.clients {
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("websocket write failed, dropping client", "error", err)
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

func (h *hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "audit bus not configured", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.register(conn)
	go func() {
		defer s.hub.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
