// Package notify pushes league events to connected users over websockets.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 512
	defaultSendBuffer = 64
)

// Sink receives events addressed to a user.
type Sink interface {
	Publish(ctx context.Context, userID string, ev model.Event) error
}

// Message is the frame written to a websocket client.
type Message struct {
	Type    model.NotificationKind `json:"type"`
	Payload model.Event            `json:"payload"`
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks open connections per user and implements Sink.
// Publishing to a user with no connection fails with ErrNoRecipient.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*client]struct{}
	total      int
	closed     bool
	upgrader   websocket.Upgrader
	sendBuffer int
	onConnect  func(userID string)
	logger     logger.Logger
}

var _ Sink = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*client]struct{}),
		sendBuffer: defaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("notify")
	}
	return h
}

// Serve upgrades the request and subscribes the connection to userID's events.
// It returns once the pumps are started.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return fmt.Errorf("upgrade: %w", err)
	}
	c := &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
	}
	if err := h.register(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return err
	}
	h.logger.Debug(r.Context(), "client connected", logger.String("user_id", userID))

	go c.writePump()
	go c.readPump()
	if h.onConnect != nil {
		go h.onConnect(userID)
	}
	return nil
}

// Publish sends ev to every connection of userID. Slow clients whose buffer
// is full are disconnected. It fails with ErrNoRecipient unless at least one
// connection took the event.
func (h *Hub) Publish(ctx context.Context, userID string, ev model.Event) error { //nolint:gocritic // hugeParam: matches Sink
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Message{Type: ev.Kind, Payload: ev})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	var (
		slow []*client
		sent int
	)
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(ctx, "dropping slow client", logger.String("user_id", userID))
		h.unregister(c)
	}
	if sent == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNoRecipient)
	}
	return nil
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// ConnectionsFor returns the number of open connections for a user.
func (h *Hub) ConnectionsFor(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client and rejects further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			c.close()
		}
		delete(h.clients, userID)
	}
	h.total = 0
	metrics.UpdateWSConnections(0)
	return nil
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.total++
	metrics.UpdateWSConnections(h.total)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	c.close()
	h.total--
	metrics.UpdateWSConnections(h.total)
}

// readPump discards inbound frames and keeps the read deadline alive.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug(context.Background(), "client read failed",
					logger.String("user_id", c.userID), logger.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				metrics.RecordErrorByComponent("notify", "write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
