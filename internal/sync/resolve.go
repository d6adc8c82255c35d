package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wellsync/internal/live"
	"wellsync/internal/model"
	"wellsync/internal/provider"
)

// Resolver applies a user's chosen resolution to a stored conflict.
type Resolver struct {
	logger   *slog.Logger
	store    Store
	adapters map[model.Provider]provider.Adapter
	hub      Publisher
	now      func() time.Time
}

// NewResolver wires the resolution service.
func NewResolver(logger *slog.Logger, store Store, adapters map[model.Provider]provider.Adapter, hub Publisher) *Resolver {
	return &Resolver{
		logger:   logger,
		store:    store,
		adapters: adapters,
		hub:      hub,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve loads the conflict, applies the chosen resolution, stamps the
// terminal state, and publishes a conflict-resolved event to the owning
// user. A conflict that already left the pending state cannot be resolved
// again.
func (r *Resolver) Resolve(ctx context.Context, conflictID string, resolution model.Resolution, resolvedBy string) (*model.Conflict, error) {
	if resolution == model.ResolutionPending || !resolution.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	conflict, err := r.store.ConflictByID(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("load conflict %s: %w", conflictID, err)
	}
	if conflict == nil {
		return nil, fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}
	if conflict.Resolution != model.ResolutionPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrConflictResolved, conflictID, conflict.Resolution)
	}

	switch resolution {
	case model.ResolutionRemoteWins:
		if err := r.applyRemoteWins(ctx, conflict); err != nil {
			return nil, err
		}
	case model.ResolutionLocalWins:
		if err := r.applyLocalWins(ctx, conflict); err != nil {
			return nil, err
		}
	case model.ResolutionManual:
		// The user reconciles the records themselves; nothing to apply.
	}

	now := r.now()
	conflict.Resolution = resolution
	conflict.ResolvedAt = &now
	conflict.ResolvedBy = resolvedBy
	if err := r.store.SaveConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("persist resolution: %w", err)
	}

	r.logger.Info("conflict resolved",
		"conflictID", conflict.ID, "userID", conflict.UserID, "resolution", resolution)
	r.hub.SendToUser(conflict.UserID, live.Event{
		Type: live.EventConflictResolved,
		Data: map[string]any{
			"conflict_id": conflict.ID,
			"resolution":  resolution,
		},
	})
	return conflict, nil
}

// applyRemoteWins overwrites the local event's fields from the stored
// remote snapshot.
func (r *Resolver) applyRemoteWins(ctx context.Context, conflict *model.Conflict) error {
	ev, err := r.store.EventByID(ctx, conflict.Local.ID)
	if err != nil {
		return fmt.Errorf("load local event %s: %w", conflict.Local.ID, err)
	}
	if ev == nil {
		// Local record is gone; the remote side already "won".
		return nil
	}
	ev.Title = conflict.Remote.Title
	ev.Start = conflict.Remote.Start
	ev.End = conflict.Remote.End
	ev.UpdatedAt = r.now()
	if err := r.store.SaveEvent(ctx, ev); err != nil {
		return fmt.Errorf("apply remote snapshot to event %s: %w", ev.ID, err)
	}
	return nil
}

// applyLocalWins pushes the local event through the provider's write-back
// contract and records the returned remote id.
func (r *Resolver) applyLocalWins(ctx context.Context, conflict *model.Conflict) error {
	ev, err := r.store.EventByID(ctx, conflict.Local.ID)
	if err != nil {
		return fmt.Errorf("load local event %s: %w", conflict.Local.ID, err)
	}
	if ev == nil {
		return fmt.Errorf("%w: local event %s no longer exists", ErrConflictNotFound, conflict.Local.ID)
	}

	adapter, ok := r.adapters[ev.Provider]
	if !ok {
		return fmt.Errorf("no adapter registered for provider %q", ev.Provider)
	}
	remoteID, err := adapter.Push(ctx, *ev)
	if err != nil {
		return fmt.Errorf("push local event %s: %w", ev.ID, err)
	}

	now := r.now()
	ev.ProviderEventID = remoteID
	ev.LastSyncedAt = &now
	if err := r.store.SaveEvent(ctx, ev); err != nil {
		return fmt.Errorf("record pushed event %s: %w", ev.ID, err)
	}
	return nil
}
