package sync

import (
	"context"
	stdsync "sync"
	"time"

	"wellsync/internal/live"
	"wellsync/internal/model"
	"wellsync/internal/provider"
)

// fakeStore is an in-memory Store for orchestrator and resolver tests.
type fakeStore struct {
	mu          stdsync.Mutex
	connections []model.ProviderConnection
	events      map[string]model.CalendarEvent
	conflicts   map[string]model.Conflict

	connectionsErr error
	eventsErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    make(map[string]model.CalendarEvent),
		conflicts: make(map[string]model.Conflict),
	}
}

func (s *fakeStore) ActiveConnections(ctx context.Context, userID string, p model.Provider) ([]model.ProviderConnection, error) {
	if s.connectionsErr != nil {
		return nil, s.connectionsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ProviderConnection
	for _, c := range s.connections {
		if c.UserID == userID && c.Provider == p && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) EventsInRange(ctx context.Context, userID string, p model.Provider, from, to time.Time) ([]model.CalendarEvent, error) {
	if s.eventsErr != nil {
		return nil, s.eventsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CalendarEvent
	for _, ev := range s.events {
		if ev.OwnerID == userID && ev.Provider == p {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveEvent(ctx context.Context, ev *model.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = *ev
	return nil
}

func (s *fakeStore) EventByID(ctx context.Context, id string) (*model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	copied := ev
	return &copied, nil
}

func (s *fakeStore) SaveConflict(ctx context.Context, c *model.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[c.ID] = *c
	return nil
}

func (s *fakeStore) ConflictByID(ctx context.Context, id string) (*model.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, nil
	}
	copied := c
	return &copied, nil
}

// fakeAdapter is a scripted provider.Adapter. If block is non-nil, GetEvents
// waits on it, which lets tests hold a sync pass open.
type fakeAdapter struct {
	mu         stdsync.Mutex
	remote     []provider.RemoteEvent
	fetchErr   error
	fetchCalls int
	block      chan struct{}

	pushID    string
	pushErr   error
	pushedIDs []string
}

func (a *fakeAdapter) GetEvents(ctx context.Context, conn model.ProviderConnection, window provider.Window) ([]provider.RemoteEvent, error) {
	a.mu.Lock()
	a.fetchCalls++
	block := a.block
	a.mu.Unlock()
	if block != nil {
		<-block
	}
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.remote, nil
}

func (a *fakeAdapter) Push(ctx context.Context, event model.CalendarEvent) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pushErr != nil {
		return "", a.pushErr
	}
	a.pushedIDs = append(a.pushedIDs, event.ID)
	return a.pushID, nil
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetchCalls
}

// panicAdapter blows up inside the sync pass to exercise the orchestrator's
// boundary recovery.
type panicAdapter struct{}

func (panicAdapter) GetEvents(context.Context, model.ProviderConnection, provider.Window) ([]provider.RemoteEvent, error) {
	panic("provider adapter exploded")
}

func (panicAdapter) Push(context.Context, model.CalendarEvent) (string, error) {
	return "", provider.ErrPushNotSupported
}

// fakeHub records published live events per user.
type fakeHub struct {
	mu     stdsync.Mutex
	events map[string][]live.Event
}

func newFakeHub() *fakeHub {
	return &fakeHub{events: make(map[string][]live.Event)}
}

func (h *fakeHub) SendToUser(userID string, ev live.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[userID] = append(h.events[userID], ev)
	return 1
}

func (h *fakeHub) byType(userID, eventType string) []live.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []live.Event
	for _, ev := range h.events[userID] {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
