package live

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHeartbeatInterval is how often the hub writes a heartbeat frame
	// to every open connection.
	DefaultHeartbeatInterval = 10 * time.Second
	// DefaultIdleTimeout is how long a connection may go without a
	// successful write before it is force-closed.
	DefaultIdleTimeout = 30 * time.Second
)

// Flusher pushes buffered frames to the client. http.Flusher satisfies it.
type Flusher interface {
	Flush()
}

// Conn is one open client stream. It is created by Hub.Open and destroyed
// by Hub.Close; callers never construct it directly.
type Conn struct {
	ID     string
	UserID string

	mu       sync.Mutex
	w        io.Writer
	flusher  Flusher
	lastPing time.Time
	subs     map[string]struct{}
	closed   bool
	done     chan struct{}
}

// Done is closed when the connection has been removed from the hub. The
// owning HTTP handler blocks on it to keep the stream open.
func (c *Conn) Done() <-chan struct{} { return c.done }

// write frames and flushes one event. A successful write refreshes
// lastPing, which is what keeps the connection alive past the idle timeout.
func (c *Conn) write(ev Event) error {
	frame, err := encodeFrame(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	c.lastPing = time.Now()
	return nil
}

// Hub is the per-process registry of open client connections, indexed both
// by connection id and by user id. All index mutation happens under one
// mutex; frame writes happen outside it under each connection's own lock.
type Hub struct {
	logger            *slog.Logger
	heartbeatInterval time.Duration
	idleTimeout       time.Duration

	mu     sync.Mutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
}

// NewHub creates a hub with the default heartbeat cadence.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:            logger,
		heartbeatInterval: DefaultHeartbeatInterval,
		idleTimeout:       DefaultIdleTimeout,
		conns:             make(map[string]*Conn),
		byUser:            make(map[string]map[string]*Conn),
	}
}

// Run drives the heartbeat loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeat(time.Now())
		}
	}
}

// Open registers a new connection for userID on the given stream, delivers
// the "connected" control event immediately, and returns the connection.
func (h *Hub) Open(userID string, w io.Writer, flusher Flusher) *Conn {
	conn := &Conn{
		ID:       uuid.New().String(),
		UserID:   userID,
		w:        w,
		flusher:  flusher,
		lastPing: time.Now(),
		subs:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*Conn)
	}
	h.byUser[userID][conn.ID] = conn
	h.mu.Unlock()

	h.logger.Info("live connection opened", "connectionID", conn.ID, "userID", userID)

	if err := conn.write(Event{Type: EventConnected, Data: map[string]string{"connection_id": conn.ID}}); err != nil {
		h.logger.Error("failed to deliver connected event", "connectionID", conn.ID, "error", err)
		h.Close(conn.ID)
	}
	return conn
}

// Close removes the connection from both indices. When the user's last
// connection goes away the user entry is dropped entirely. A best-effort
// "disconnected" frame is written before teardown.
func (h *Hub) Close(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	if userConns := h.byUser[conn.UserID]; userConns != nil {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(h.byUser, conn.UserID)
		}
	}
	h.mu.Unlock()

	conn.mu.Lock()
	alreadyClosed := conn.closed
	conn.closed = true
	conn.mu.Unlock()
	if alreadyClosed {
		return
	}

	_ = conn.write(Event{Type: EventDisconnected})
	close(conn.done)
	h.logger.Info("live connection closed", "connectionID", connID, "userID", conn.UserID)
}

// SendToConnection writes one framed event to a single connection. On write
// failure the connection is force-closed and false is returned; callers
// must not retry that connection.
func (h *Hub) SendToConnection(connID string, ev Event) bool {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return h.deliver(conn, ev)
}

// SendToUser fans the event out to every open connection of one user.
// Failures are isolated per connection; the returned count is how many
// deliveries succeeded.
func (h *Hub) SendToUser(userID string, ev Event) int {
	delivered := 0
	for _, conn := range h.userConns(userID) {
		if h.deliver(conn, ev) {
			delivered++
		}
	}
	return delivered
}

// Broadcast fans the event out to every open connection process-wide.
func (h *Hub) Broadcast(ev Event) int {
	delivered := 0
	for _, conn := range h.allConns() {
		if h.deliver(conn, ev) {
			delivered++
		}
	}
	return delivered
}

// Subscribe adds event types to the connection's allow-list.
func (h *Hub) Subscribe(connID string, eventTypes ...string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return
	}
	conn.mu.Lock()
	for _, t := range eventTypes {
		conn.subs[t] = struct{}{}
	}
	conn.mu.Unlock()
}

// Unsubscribe removes event types from the connection's allow-list.
func (h *Hub) Unsubscribe(connID string, eventTypes ...string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return
	}
	conn.mu.Lock()
	for _, t := range eventTypes {
		delete(conn.subs, t)
	}
	conn.mu.Unlock()
}

// SendToSubscribers delivers the event only to connections whose allow-list
// contains eventType.
func (h *Hub) SendToSubscribers(eventType string, ev Event) int {
	delivered := 0
	for _, conn := range h.allConns() {
		conn.mu.Lock()
		_, subscribed := conn.subs[eventType]
		conn.mu.Unlock()
		if !subscribed {
			continue
		}
		if h.deliver(conn, ev) {
			delivered++
		}
	}
	return delivered
}

// ConnectionCount reports how many connections are currently open.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) deliver(conn *Conn, ev Event) bool {
	if err := conn.write(ev); err != nil {
		h.logger.Warn("live write failed, closing connection",
			"connectionID", conn.ID, "userID", conn.UserID, "error", err)
		h.Close(conn.ID)
		return false
	}
	return true
}

// heartbeat writes a heartbeat frame to every connection and reaps those
// whose last successful write is older than the idle timeout. Liveness is
// server-driven: a successful heartbeat refreshes lastPing.
func (h *Hub) heartbeat(now time.Time) {
	for _, conn := range h.allConns() {
		conn.mu.Lock()
		stale := now.Sub(conn.lastPing) > h.idleTimeout
		conn.mu.Unlock()
		if stale {
			h.logger.Info("live connection timed out", "connectionID", conn.ID, "userID", conn.UserID)
			h.Close(conn.ID)
			continue
		}
		h.deliver(conn, Event{Type: EventHeartbeat, Data: map[string]int64{"ts": now.Unix()}})
	}
}

func (h *Hub) userConns(userID string) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Conn, 0, len(h.byUser[userID]))
	for _, conn := range h.byUser[userID] {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) allConns() []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		out = append(out, conn)
	}
	return out
}
