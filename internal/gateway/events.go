package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tiendi/tiendi/internal/logging"
)

var ErrClientClosed = errors.New("client connection closed")

// Client is one connected operator event stream.
type Client struct {
	ConnID      string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	log    *logging.Logger
}

// NewClient wraps a newly upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, log *logging.Logger) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Socket:      conn,
		ConnectedAt: time.Now(),
		log:         log,
	}
}

// Send sends a frame to the client. Thread-safe.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.Socket.WriteJSON(frame)
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// EventHub fans events out to connected operator clients. It implements
// the processing notifier so typing indicators reach the dashboard.
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     atomic.Int64
	log     *logging.Logger
}

// NewEventHub creates an empty hub.
func NewEventHub(log *logging.Logger) *EventHub {
	return &EventHub{
		clients: make(map[string]*Client),
		log:     log.Sub("events"),
	}
}

// Add registers a connected client.
func (h *EventHub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ConnID] = c
	h.log.Info().Str("connId", c.ConnID).Msg("operator connected")
}

// Remove unregisters a client by connection ID.
func (h *EventHub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	h.log.Info().Str("connId", connID).Msg("operator disconnected")
}

// Count returns the number of connected clients.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event frame to all connected clients.
func (h *EventHub) Broadcast(event string, payload any) {
	frame, err := NewEvent(event, payload, h.seq.Add(1))
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("event marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if err := c.Send(frame); err != nil {
			h.log.Warn().Err(err).Str("connId", c.ConnID).Msg("broadcast send failed")
		}
	}
}

// Typing pushes a typing indicator change to operator clients.
func (h *EventHub) Typing(conversationID string, active bool) {
	h.Broadcast(EventTyping, TypingEvent{
		ConversationID: conversationID,
		Active:         active,
	})
}

// CloseAll closes all connected clients.
func (h *EventHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}
