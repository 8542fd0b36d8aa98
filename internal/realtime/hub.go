package realtime

import (
	"sync"

	"github.com/gofiber/websocket/v2"
)

// Client is one connected websocket peer.
type Client struct {
	UserID string

	conn   *websocket.Conn
	mu     sync.Mutex
	send   chan any
	closed bool
}

// NewClient wraps a connection. conn may be nil in tests that only exercise
// hub routing.
func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, conn: conn, send: make(chan any, 16)}
}

// Send queues a message for the client, dropping it when the buffer is full
// or the client already closed.
func (c *Client) Send(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// WritePump drains the send queue onto the wire. Runs in its own goroutine
// per connection.
func (c *Client) WritePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// Close stops the send queue. Safe to call more than once and concurrently
// with Send.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub tracks connected clients by user id. One connection per user; a new
// connection replaces the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds the client, displacing any prior connection for the user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.UserID]
	h.clients[c.UserID] = c
	h.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Unregister removes the client unless a newer connection already replaced it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.UserID] == c {
		delete(h.clients, c.UserID)
	}
	h.mu.Unlock()
	c.Close()
}

// Send delivers a message to the user's connection. Reports false when the
// user is offline.
func (h *Hub) Send(userID string, msg any) bool {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	client.Send(msg)
	return true
}
