package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	clientBuffer    = 256
	broadcastBuffer = 1024
)

var (
	ErrQueueFull  = errors.New("broadcast queue full")
	ErrHubStopped = errors.New("hub stopped")
)

// Envelope is the wire format of every message sent to subscribers.
type Envelope struct {
	ID      string            `json:"id"`
	Type    session.EventType `json:"type"`
	Code    string            `json:"code"`
	Payload json.RawMessage   `json:"payload"`
	SentAt  time.Time         `json:"sent_at"`
}

// NewEnvelope wraps payload for the session channel code.
func NewEnvelope(code string, eventType session.EventType, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:      uuid.NewString(),
		Type:    eventType,
		Code:    session.NormalizeCode(code),
		Payload: data,
		SentAt:  time.Now().UTC(),
	}, nil
}

// Client is one WebSocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	code   string
	userID string
}

// Hub maintains the set of active clients per session code and fans
// envelopes out to them. Delivery is at most once: a client whose buffer is
// full is disconnected, and envelopes are dropped when the queue is full.
type Hub struct {
	// Registered clients by session code
	sessions map[string]map[*Client]bool
	mu       sync.RWMutex

	broadcast  chan *Envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.log = logging.Component(l, "ws-hub") }
}

// WithCheckOrigin sets the origin policy for upgrades. The default allows all origins.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub creates a new WebSocket hub
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Envelope, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's event loop and blocks until ctx is done. All clients
// are disconnected on return.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.broadcastMessage(env)
		}
	}
}

// Publish sends an event to every subscriber of code on this instance.
func (h *Hub) Publish(ctx context.Context, code string, eventType session.EventType, payload any) error {
	env, err := NewEnvelope(code, eventType, payload)
	if err != nil {
		return err
	}
	return h.Deliver(env)
}

// Deliver queues an envelope for local fanout without blocking.
func (h *Hub) Deliver(env *Envelope) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	h.mu.RLock()
	subscribers := len(h.sessions[env.Code])
	h.mu.RUnlock()
	if subscribers == 0 {
		return nil
	}

	select {
	case h.broadcast <- env:
		return nil
	default:
		h.log.Warn().Str("code", env.Code).Str("type", string(env.Type)).Msg("broadcast queue full, dropping event")
		return ErrQueueFull
	}
}

// ClientCount returns the number of subscribers for code.
func (h *Hub) ClientCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}

// ServeWS upgrades the request and subscribes the connection to code.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, code, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		code:   session.NormalizeCode(code),
		userID: userID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.code] == nil {
		h.sessions[client.code] = make(map[*Client]bool)
	}
	h.sessions[client.code][client] = true

	h.log.Debug().Str("code", client.code).Str("user_id", client.userID).
		Int("clients", len(h.sessions[client.code])).Msg("client registered")
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.code]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.code)
	}

	h.log.Debug().Str("code", client.code).Str("user_id", client.userID).
		Int("remaining", len(clients)).Msg("client unregistered")
}

// broadcastMessage sends an envelope to all clients in its session
func (h *Hub) broadcastMessage(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.sessions[env.Code] {
		select {
		case client.send <- data:
		default:
			h.log.Warn().Str("code", env.Code).Str("user_id", client.userID).Msg("client buffer full, disconnecting")
			h.removeLocked(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, clients := range h.sessions {
			for client := range clients {
				h.removeLocked(client)
			}
		}
	})
}

// readPump drains the connection so control frames are processed. Clients
// do not send application messages.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("code", c.code).Msg("websocket closed unexpectedly")
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection. Each
// envelope is written as its own text frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
