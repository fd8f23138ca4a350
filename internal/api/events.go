package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is pushed to every connected UI. A non-zero Version orders
// events of the same Type; older versions are dropped.
type Event struct {
	Type    string `json:"type"`
	Version uint64 `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Hub fans workspace changes out to websocket clients. New clients get
// the latest event immediately.
type Hub struct {
	upgrader websocket.Upgrader
	ping     time.Duration

	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	last     []byte
	versions map[string]uint64
	closed   bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a hub pinging clients every ping interval
func NewHub(ping time.Duration) *Hub {
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &Hub{
		ping:     ping,
		clients:  make(map[*wsClient]struct{}),
		versions: make(map[string]uint64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Broadcast sends an event to every client. Slow clients are dropped, and
// so are events older than the last one sent for the same type.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode event", "type", ev.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Version != 0 {
		if ev.Version <= h.versions[ev.Type] {
			slog.Debug("Dropping stale event", "type", ev.Type, "version", ev.Version)
			return
		}
		h.versions[ev.Type] = ev.Version
	}
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "err", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 16), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(c)
	}()
	h.writeLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()
	<-readDone
}

// readLoop discards client messages and notices disconnects
func (h *Hub) readLoop(c *wsClient) {
	defer c.close()
	c.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read error", "err", err)
			}
			return
		}
	}
}

// writeLoop handles outgoing events and pings
func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("WebSocket write error", "err", err)
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				c.close()
				return
			}
		}
	}
}
