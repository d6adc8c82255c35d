package live

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// streamWriter is a goroutine-safe sink that can be told to start failing.
type streamWriter struct {
	mu      sync.Mutex
	buf     strings.Builder
	failing bool
	flushes int
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failing {
		return 0, errors.New("client went away")
	}
	return w.buf.WriteString(string(p))
}

func (w *streamWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *streamWriter) fail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failing = true
}

func (w *streamWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *streamWriter) frames() []string {
	raw := strings.TrimSuffix(w.String(), "\n\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n\n")
}

func TestEncodeFrame(t *testing.T) {
	frame, err := encodeFrame(Event{
		ID:          "42",
		RetryMillis: 3000,
		Type:        EventSyncCompleted,
		Data:        map[string]int{"conflicts": 0},
	})

	require.NoError(t, err)
	assert.Equal(t, "id: 42\nretry: 3000\nevent: calendar.sync.completed\ndata: {\"conflicts\":0}\n\n", string(frame))
}

func TestEncodeFrame_OmitsOptionalLines(t *testing.T) {
	frame, err := encodeFrame(Event{Type: EventHeartbeat, Data: nil})

	require.NoError(t, err)
	assert.Equal(t, "event: heartbeat\ndata: null\n\n", string(frame))
}

func TestHubOpen_DeliversConnectedEvent(t *testing.T) {
	hub := NewHub(testLogger())
	w := &streamWriter{}

	conn := hub.Open("user-1", w, w)

	require.NotNil(t, conn)
	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Contains(t, w.String(), "event: connected\n")
	assert.Contains(t, w.String(), conn.ID)
	assert.Positive(t, w.flushes)
}

func TestHubOpen_InitialWriteFailureClosesImmediately(t *testing.T) {
	hub := NewHub(testLogger())
	w := &streamWriter{}
	w.fail()

	conn := hub.Open("user-1", w, w)

	assert.Equal(t, 0, hub.ConnectionCount())
	select {
	case <-conn.Done():
	default:
		t.Fatal("connection should be done after a failed connected write")
	}
}

func TestHubSendToUser_FansOutToAllUserConnections(t *testing.T) {
	hub := NewHub(testLogger())
	w1, w2, other := &streamWriter{}, &streamWriter{}, &streamWriter{}
	hub.Open("user-1", w1, w1)
	hub.Open("user-1", w2, w2)
	hub.Open("user-2", other, other)

	delivered := hub.SendToUser("user-1", Event{Type: EventSyncStarted, Data: map[string]string{"provider": "google"}})

	assert.Equal(t, 2, delivered)
	assert.Contains(t, w1.String(), "event: calendar.sync.started\n")
	assert.Contains(t, w2.String(), "event: calendar.sync.started\n")
	assert.NotContains(t, other.String(), "calendar.sync.started")
}

func TestHubSendToUser_UnknownUserIsZeroNotPanic(t *testing.T) {
	hub := NewHub(testLogger())
	assert.Equal(t, 0, hub.SendToUser("ghost", Event{Type: EventSyncStarted}))
}

func TestHubSend_WriteFailureForceCloses(t *testing.T) {
	hub := NewHub(testLogger())
	w := &streamWriter{}
	conn := hub.Open("user-1", w, w)

	w.fail()
	delivered := hub.SendToUser("user-1", Event{Type: EventSyncStarted})

	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, hub.ConnectionCount())
	select {
	case <-conn.Done():
	default:
		t.Fatal("force-closed connection must signal Done")
	}

	// The closed connection no longer receives anything.
	assert.False(t, hub.SendToConnection(conn.ID, Event{Type: EventSyncStarted}))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	w1, w2 := &streamWriter{}, &streamWriter{}
	hub.Open("user-1", w1, w1)
	hub.Open("user-2", w2, w2)

	delivered := hub.Broadcast(Event{Type: EventError, Data: map[string]string{"message": "maintenance"}})

	assert.Equal(t, 2, delivered)
	assert.Contains(t, w1.String(), "event: error\n")
	assert.Contains(t, w2.String(), "event: error\n")
}

func TestHubSendToSubscribers_FiltersByAllowList(t *testing.T) {
	hub := NewHub(testLogger())
	w1, w2 := &streamWriter{}, &streamWriter{}
	c1 := hub.Open("user-1", w1, w1)
	hub.Open("user-2", w2, w2)

	hub.Subscribe(c1.ID, EventConflictDetected)

	delivered := hub.SendToSubscribers(EventConflictDetected, Event{Type: EventConflictDetected})
	assert.Equal(t, 1, delivered)
	assert.Contains(t, w1.String(), "event: calendar.conflict.detected\n")
	assert.NotContains(t, w2.String(), "conflict.detected")

	hub.Unsubscribe(c1.ID, EventConflictDetected)
	assert.Equal(t, 0, hub.SendToSubscribers(EventConflictDetected, Event{Type: EventConflictDetected}))
}

func TestHubClose_RemovesBothIndicesAndIsIdempotent(t *testing.T) {
	hub := NewHub(testLogger())
	w := &streamWriter{}
	conn := hub.Open("user-1", w, w)

	hub.Close(conn.ID)
	hub.Close(conn.ID)

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Equal(t, 0, hub.SendToUser("user-1", Event{Type: EventSyncStarted}))
	assert.Contains(t, w.String(), "event: disconnected\n")
}

func TestHubHeartbeat_RefreshesLiveAndReapsStale(t *testing.T) {
	hub := NewHub(testLogger())
	live, stale := &streamWriter{}, &streamWriter{}
	hub.Open("user-1", live, live)
	staleConn := hub.Open("user-2", stale, stale)

	// Backdate the stale connection past the idle timeout.
	staleConn.mu.Lock()
	staleConn.lastPing = time.Now().Add(-hub.idleTimeout - time.Second)
	staleConn.mu.Unlock()

	hub.heartbeat(time.Now())

	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Contains(t, live.String(), "event: heartbeat\n")
	assert.NotContains(t, stale.String(), "event: heartbeat\n")

	// The surviving connection's lastPing was refreshed by the heartbeat
	// write, so the next sweep keeps it too.
	hub.heartbeat(time.Now())
	assert.Equal(t, 1, hub.ConnectionCount())
	require.Len(t, live.frames(), 3, "connected plus two heartbeats")
}
