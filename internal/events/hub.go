// Package events broadcasts protocol events to WebSocket subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tyield/engine/internal/metrics"
	"github.com/tyield/engine/internal/model"
)

// client is one WebSocket subscriber with an optional event-kind filter.
// An empty filter receives every kind.
type client struct {
	conn  *websocket.Conn
	kinds map[string]struct{}
}

func (c *client) wants(kind string) bool {
	if len(c.kinds) == 0 {
		return true
	}
	_, ok := c.kinds[kind]
	return ok
}

// message is a marshaled event envelope tagged with its kind so the hub
// can route it through subscriber filters without re-parsing.
type message struct {
	kind string
	data []byte
}

// Hub fans protocol events out to WebSocket subscribers: trade lifecycle,
// master agent price and yield changes, user status transitions. Clients
// subscribe to a subset of kinds with ?kinds=trade_opened,trade_closed;
// omitting the parameter subscribes to everything.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan message
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", h.ClientCount(), "kinds", len(c.kinds))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.kind) {
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					c.conn.Close()
					delete(h.clients, c)
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast wraps payload in a stamped envelope and sends it to every
// subscriber whose filter matches kind.
func (h *Hub) Broadcast(kind string, payload any) {
	data, err := json.Marshal(model.NewEvent(kind, payload))
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message{kind: kind, data: data}:
	default:
		// Drop if buffer full to avoid blocking instruction handling.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// parseKinds builds the subscription filter from the comma-separated
// kinds query parameter. Unknown kinds are kept; they simply never match.
func parseKinds(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	kinds := make(map[string]struct{})
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[k] = struct{}{}
		}
	}
	return kinds
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, kinds: parseKinds(r.URL.Query().Get("kinds"))}
	h.register <- c

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- c }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[c]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
