package notify

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans events out to connected websocket clients. Slow clients are
// dropped rather than allowed to block publishers.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin,
		},
		clients: make(map[*websocket.Conn]chan Event),
	}
}

// sameOrigin accepts upgrades only from pages served by this gateway.
// Non-browser clients send no Origin header and are let through.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Publish broadcasts an event to every connected client without blocking.
func (h *Hub) Publish(ev Event) {
	slog.Info("notification",
		"component", "notify",
		"type", string(ev.Type),
		"message", ev.Message,
	)

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			// Client is not keeping up; disconnect it.
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			"component", "notify",
			"error", err,
		)
		return
	}

	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	// Drain reads so close/ping frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// LogNotifier logs events without any transport, used when no UI channel is
// wanted (CLI runs, tests).
type LogNotifier struct{}

// Publish implements Notifier.
func (LogNotifier) Publish(ev Event) {
	slog.Info("notification",
		"component", "notify",
		"type", string(ev.Type),
		"message", ev.Message,
	)
}
