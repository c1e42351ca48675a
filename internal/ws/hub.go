// Package ws fans AMI-driven snapshots out to browser clients over
// WebSocket. A slow or dead client never blocks the event loop: each
// connection gets a small buffered queue and is dropped when it falls
// behind or errors.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lq216/gonopbx/internal/ami"
)

const (
	writeTimeout    = 5 * time.Second
	clientQueueSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is token-authenticated; the socket itself accepts any
	// origin so the dashboard can run on a different port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is one push to a connected client.
type Message struct {
	Type        string           `json:"type"`
	EventName   string           `json:"event_name"`
	ActiveCalls []ami.ActiveCall `json:"active_calls"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub tracks live observer connections. It implements ami.Broadcaster.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientQueueSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("observer connected", "remote", conn.RemoteAddr().String(), "observers", count)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast pushes a snapshot to every observer. A client whose queue is
// full is dropped rather than blocking the caller.
func (h *Hub) Broadcast(eventName string, calls []ami.ActiveCall) {
	msg := Message{Type: "ami_event", EventName: eventName, ActiveCalls: calls}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow observer", "remote", c.conn.RemoteAddr().String())
		}
	}
}

// Count returns the number of live observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all observers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.drop(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// readLoop discards inbound frames; it exists to detect disconnects and
// answer pings.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
