package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wellsync/internal/live"
	"wellsync/internal/model"
	"wellsync/internal/provider"
)

// syncInterval is the cadence written into nextSyncAt after a completed pass.
const syncInterval = 15 * time.Minute

// Store is the durable storage the sync engine reads and writes through.
// Lookups by id return (nil, nil) when no record exists.
type Store interface {
	ActiveConnections(ctx context.Context, userID string, p model.Provider) ([]model.ProviderConnection, error)
	EventsInRange(ctx context.Context, userID string, p model.Provider, from, to time.Time) ([]model.CalendarEvent, error)
	SaveEvent(ctx context.Context, ev *model.CalendarEvent) error
	EventByID(ctx context.Context, id string) (*model.CalendarEvent, error)
	SaveConflict(ctx context.Context, c *model.Conflict) error
	ConflictByID(ctx context.Context, id string) (*model.Conflict, error)
}

// Publisher delivers live events to a user's open connections. The live hub
// satisfies it.
type Publisher interface {
	SendToUser(userID string, ev live.Event) int
}

// Orchestrator drives sync passes. Passes for different (user, provider)
// pairs run independently; a second concurrent pass for the same pair is a
// logged no-op.
type Orchestrator struct {
	logger   *slog.Logger
	store    Store
	adapters map[model.Provider]provider.Adapter
	registry *StatusRegistry
	hub      Publisher
	now      func() time.Time

	mu       sync.Mutex
	inflight map[statusKey]struct{}
}

// NewOrchestrator wires the sync engine together.
func NewOrchestrator(logger *slog.Logger, store Store, adapters map[model.Provider]provider.Adapter, registry *StatusRegistry, hub Publisher) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		store:    store,
		adapters: adapters,
		registry: registry,
		hub:      hub,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[statusKey]struct{}),
	}
}

// StartSync runs one sync pass for (userID, p). All failures, including
// panics, are converted into an error status and an error live event at
// this boundary; passes for other pairs are never affected.
func (o *Orchestrator) StartSync(ctx context.Context, userID string, p model.Provider) error {
	key := statusKey{userID: userID, provider: p}

	o.mu.Lock()
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		o.logger.Info("sync already in flight, skipping", "userID", userID, "provider", p)
		return nil
	}
	o.inflight[key] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inflight, key)
		o.mu.Unlock()
	}()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sync pass panicked: %v", r)
			}
		}()
		return o.runPass(ctx, userID, p)
	}()

	if err != nil {
		o.failPass(userID, p, err)
		return err
	}
	return nil
}

func (o *Orchestrator) runPass(ctx context.Context, userID string, p model.Provider) error {
	o.logger.Info("starting sync pass", "userID", userID, "provider", p)
	o.registry.Transition(userID, p, func(st *model.SyncStatus) {
		st.State = model.SyncSyncing
		st.ErrorMessage = ""
	})
	o.publish(userID, live.EventSyncStarted, map[string]any{"provider": p})

	adapter, ok := o.adapters[p]
	if !ok {
		return fmt.Errorf("no adapter registered for provider %q", p)
	}

	conns, err := o.store.ActiveConnections(ctx, userID, p)
	if err != nil {
		return fmt.Errorf("load provider connections: %w", err)
	}
	if len(conns) == 0 {
		return fmt.Errorf("%w for user %s provider %s", ErrNoActiveConnection, userID, p)
	}

	window := provider.SyncWindow(o.now())
	totalConflicts := 0

	for _, conn := range conns {
		remote, err := adapter.GetEvents(ctx, conn, window)
		if err != nil {
			return fmt.Errorf("fetch remote events: %w", err)
		}
		local, err := o.store.EventsInRange(ctx, userID, p, window.TimeMin, window.TimeMax)
		if err != nil {
			return fmt.Errorf("load local events: %w", err)
		}

		conflicts := DetectConflicts(local, remote, o.now())
		for i := range conflicts {
			conflicts[i].ID = uuid.New().String()
			if err := o.store.SaveConflict(ctx, &conflicts[i]); err != nil {
				return fmt.Errorf("persist conflict: %w", err)
			}
		}
		totalConflicts += len(conflicts)

		if len(conflicts) > 0 {
			o.registry.Transition(userID, p, func(st *model.SyncStatus) {
				st.State = model.SyncConflict
				st.ConflictsCount = totalConflicts
			})
			o.publish(userID, live.EventConflictDetected, conflictSummary(conflicts))
		}

		if err := o.applyRemote(ctx, conn, local, remote); err != nil {
			return err
		}
	}

	now := o.now()
	next := now.Add(syncInterval)
	o.registry.Transition(userID, p, func(st *model.SyncStatus) {
		if totalConflicts == 0 {
			st.State = model.SyncIdle
			st.ConflictsCount = 0
		}
		st.LastSyncAt = &now
		st.NextSyncAt = &next
	})
	o.publish(userID, live.EventSyncCompleted, map[string]any{
		"provider":  p,
		"conflicts": totalConflicts,
	})

	o.logger.Info("sync pass completed", "userID", userID, "provider", p, "conflicts", totalConflicts)
	return nil
}

// applyRemote reconciles remote events into local storage: matched events
// get their fields updated, unseen ones are created. Every touched record
// is stamped with lastSyncedAt.
func (o *Orchestrator) applyRemote(ctx context.Context, conn model.ProviderConnection, local []model.CalendarEvent, remote []provider.RemoteEvent) error {
	localByProviderID := make(map[string]model.CalendarEvent, len(local))
	for _, l := range local {
		if l.ProviderEventID != "" {
			localByProviderID[l.ProviderEventID] = l
		}
	}

	now := o.now()
	for _, r := range remote {
		if l, ok := localByProviderID[r.ID]; ok {
			changed := l.Title != r.Summary ||
				l.Description != r.Description ||
				!l.Start.Equal(r.Start) ||
				!l.End.Equal(r.End) ||
				l.Location != r.Location

			l.Title = r.Summary
			l.Description = r.Description
			l.Start = r.Start
			l.End = r.End
			l.Location = r.Location
			l.LastSyncedAt = &now
			if changed {
				l.UpdatedAt = now
			}
			if err := o.store.SaveEvent(ctx, &l); err != nil {
				return fmt.Errorf("update local event %s: %w", l.ID, err)
			}
			if changed {
				o.publish(conn.UserID, live.EventEventUpdated, eventPayload(l))
			}
			continue
		}

		created := model.CalendarEvent{
			ID:                 uuid.New().String(),
			OwnerID:            conn.UserID,
			Title:              r.Summary,
			Description:        r.Description,
			Start:              r.Start,
			End:                r.End,
			Location:           r.Location,
			Source:             model.SourceExternal,
			Provider:           conn.Provider,
			ProviderEventID:    r.ID,
			ProviderCalendarID: conn.CalendarID,
			Recurring:          r.Recurrence != nil,
			Recurrence:         r.Recurrence,
			LastSyncedAt:       &now,
			UpdatedAt:          now,
		}
		if err := o.store.SaveEvent(ctx, &created); err != nil {
			return fmt.Errorf("create local event for remote %s: %w", r.ID, err)
		}
		o.publish(conn.UserID, live.EventEventCreated, eventPayload(created))
	}
	return nil
}

func (o *Orchestrator) failPass(userID string, p model.Provider, cause error) {
	o.logger.Error("sync pass failed", "userID", userID, "provider", p, "error", cause)
	o.registry.Transition(userID, p, func(st *model.SyncStatus) {
		st.State = model.SyncError
		st.ErrorMessage = cause.Error()
	})
	o.publish(userID, live.EventError, map[string]any{
		"provider": p,
		"message":  cause.Error(),
	})
}

func (o *Orchestrator) publish(userID, eventType string, payload any) {
	o.hub.SendToUser(userID, live.Event{Type: eventType, Data: payload})
}

func eventPayload(ev model.CalendarEvent) map[string]any {
	return map[string]any{
		"id":                ev.ID,
		"title":             ev.Title,
		"start":             ev.Start,
		"end":               ev.End,
		"provider":          ev.Provider,
		"provider_event_id": ev.ProviderEventID,
	}
}

func conflictSummary(conflicts []model.Conflict) map[string]any {
	descriptors := make([]map[string]any, len(conflicts))
	for i, c := range conflicts {
		descriptors[i] = map[string]any{
			"id":              c.ID,
			"type":            c.Type,
			"local_event_id":  c.Local.ID,
			"remote_event_id": c.Remote.ID,
		}
	}
	return map[string]any{
		"count":     len(conflicts),
		"conflicts": descriptors,
	}
}
