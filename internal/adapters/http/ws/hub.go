// Package ws streams stored measurements and leaderboard snapshots to
// websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/biotica/internal/adapters/repository"
	"github.com/okian/biotica/internal/domain/model"
	"github.com/okian/biotica/pkg/logger"
	"github.com/okian/biotica/pkg/metrics"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the connection
	// as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBufSize = 64

	defaultInterval    = 5 * time.Second
	defaultSnapshotTop = 10
)

// Event names carried in Message.Event.
const (
	EventMeasurement = "measurement"
	EventLeaderboard = "leaderboard"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	TS    string `json:"ts"`
}

// Leaderboard supplies the periodic snapshot.
type Leaderboard interface {
	TopN(ctx context.Context, n int) ([]repository.Entry, error)
}

// LeaderboardFunc adapts a function to Leaderboard.
type LeaderboardFunc func(ctx context.Context, n int) ([]repository.Entry, error)

// TopN calls f.
func (f LeaderboardFunc) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	return f(ctx, n)
}

// Option configures a Hub.
type Option func(*Hub)

// WithInterval sets how often the leaderboard snapshot is broadcast.
func WithInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithSnapshotSize sets how many leaderboard entries a snapshot carries.
func WithSnapshotSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.top = n
		}
	}
}

// WithAllowedOrigin restricts the Origin header accepted on upgrade. "*" or
// empty accepts any origin.
func WithAllowedOrigin(origin string) Option {
	return func(h *Hub) { h.origin = origin }
}

// Hub fans out events to every connected client. A slow client whose buffer
// fills up is disconnected.
type Hub struct {
	board    Leaderboard
	interval time.Duration
	top      int
	origin   string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	logger logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub. board may be nil, which disables snapshots.
func New(board Leaderboard, opts ...Option) *Hub {
	h := &Hub{
		board:    board,
		interval: defaultInterval,
		top:      defaultSnapshotTop,
		clients:  make(map[*client]struct{}),
		logger:   logger.Get().Named("ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.origin == "" || h.origin == "*" {
		return true
	}
	o := r.Header.Get("Origin")
	return o == "" || o == h.origin
}

// Run broadcasts the leaderboard every interval until ctx is cancelled, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			if data, ok := h.snapshot(ctx); ok {
				h.broadcast(data)
			}
		}
	}
}

// Publish implements worker.Publisher.
func (h *Hub) Publish(ctx context.Context, m model.Measurement) {
	data, err := encode(EventMeasurement, m)
	if err != nil {
		h.logger.Error(ctx, "encode measurement", logger.String("measurement_id", m.ID), logger.Error(err))
		return
	}
	h.broadcast(data)
}

// ServeHTTP upgrades the connection and serves the client until it goes away.
// The current leaderboard is sent right after connecting.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}
	h.register(c)
	defer h.unregister(c)

	if data, ok := h.snapshot(r.Context()); ok {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWSClients(n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWSClients(n)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	metrics.RecordWSBroadcast()
	for _, c := range targets {
		if !h.trySend(c, data) {
			h.unregister(c)
		}
	}
}

// trySend queues data for c. It reports false when the buffer is full; a
// client unregistered concurrently is skipped.
func (h *Hub) trySend(c *client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) snapshot(ctx context.Context) ([]byte, bool) {
	if h.board == nil {
		return nil, false
	}
	entries, err := h.board.TopN(ctx, h.top)
	if err != nil {
		h.logger.Debug(ctx, "leaderboard snapshot unavailable", logger.Error(err))
		return nil, false
	}
	data, err := encode(EventLeaderboard, entries)
	if err != nil {
		h.logger.Error(ctx, "encode leaderboard", logger.Error(err))
		return nil, false
	}
	return data, true
}

func encode(event string, v any) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: v, TS: time.Now().UTC().Format(time.RFC3339Nano)})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.UpdateWSClients(0)
}

// writePump forwards queued messages and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and detects disconnects.
func (c *client) readPump() {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
