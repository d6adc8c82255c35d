package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellsync/internal/live"
	"wellsync/internal/model"
	"wellsync/internal/provider"
)

func newTestResolver(store *fakeStore, adapter provider.Adapter, hub *fakeHub) *Resolver {
	r := NewResolver(testLogger(), store,
		map[model.Provider]provider.Adapter{model.ProviderGoogle: adapter}, hub)
	r.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func pendingConflict(store *fakeStore) model.Conflict {
	start := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	ev := model.CalendarEvent{
		ID: "local-1", OwnerID: "user-1", Title: "Standup",
		Start: start, End: start.Add(time.Hour),
		Provider: model.ProviderGoogle, ProviderEventID: "g1",
		UpdatedAt: start,
	}
	_ = store.SaveEvent(context.Background(), &ev)

	c := model.Conflict{
		ID:     "conflict-1",
		UserID: "user-1",
		Local: model.EventSnapshot{
			ID: "local-1", Title: "Standup", Start: start, End: start.Add(time.Hour),
		},
		Remote: model.EventSnapshot{
			ID: "g1", Title: "Daily standup", Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute),
		},
		Type:       model.ConflictTitleMismatch,
		Resolution: model.ResolutionPending,
		CreatedAt:  start,
	}
	_ = store.SaveConflict(context.Background(), &c)
	return c
}

func TestResolve_RemoteWins(t *testing.T) {
	store := newFakeStore()
	hub := newFakeHub()
	r := newTestResolver(store, &fakeAdapter{}, hub)
	c := pendingConflict(store)

	resolved, err := r.Resolve(context.Background(), c.ID, model.ResolutionRemoteWins, "user-1")

	require.NoError(t, err)
	assert.Equal(t, model.ResolutionRemoteWins, resolved.Resolution)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "user-1", resolved.ResolvedBy)

	// Local event fields come from the stored remote snapshot.
	ev := store.events["local-1"]
	assert.Equal(t, "Daily standup", ev.Title)
	assert.Equal(t, c.Remote.Start, ev.Start)
	assert.Equal(t, c.Remote.End, ev.End)

	assert.Len(t, hub.byType("user-1", live.EventConflictResolved), 1)
}

func TestResolve_LocalWinsPushesThroughAdapter(t *testing.T) {
	store := newFakeStore()
	hub := newFakeHub()
	adapter := &fakeAdapter{pushID: "g-new"}
	r := newTestResolver(store, adapter, hub)
	c := pendingConflict(store)

	resolved, err := r.Resolve(context.Background(), c.ID, model.ResolutionLocalWins, "user-1")

	require.NoError(t, err)
	assert.Equal(t, model.ResolutionLocalWins, resolved.Resolution)
	assert.Equal(t, []string{"local-1"}, adapter.pushedIDs)
	assert.Equal(t, "g-new", store.events["local-1"].ProviderEventID)
	assert.Len(t, hub.byType("user-1", live.EventConflictResolved), 1)
}

func TestResolve_LocalWinsPushFailureLeavesPending(t *testing.T) {
	store := newFakeStore()
	hub := newFakeHub()
	adapter := &fakeAdapter{pushErr: provider.ErrPushNotSupported}
	r := newTestResolver(store, adapter, hub)
	c := pendingConflict(store)

	_, err := r.Resolve(context.Background(), c.ID, model.ResolutionLocalWins, "user-1")

	require.ErrorIs(t, err, provider.ErrPushNotSupported)
	stored, _ := store.ConflictByID(context.Background(), c.ID)
	assert.Equal(t, model.ResolutionPending, stored.Resolution)
	assert.Empty(t, hub.byType("user-1", live.EventConflictResolved))
}

func TestResolve_ManualChangesNoFields(t *testing.T) {
	store := newFakeStore()
	hub := newFakeHub()
	r := newTestResolver(store, &fakeAdapter{}, hub)
	c := pendingConflict(store)

	resolved, err := r.Resolve(context.Background(), c.ID, model.ResolutionManual, "user-1")

	require.NoError(t, err)
	assert.Equal(t, model.ResolutionManual, resolved.Resolution)
	assert.Equal(t, "Standup", store.events["local-1"].Title)
	assert.Len(t, hub.byType("user-1", live.EventConflictResolved), 1)
}

func TestResolve_Errors(t *testing.T) {
	store := newFakeStore()
	hub := newFakeHub()
	r := newTestResolver(store, &fakeAdapter{}, hub)
	c := pendingConflict(store)

	t.Run("unknown conflict", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "nope", model.ResolutionManual, "user-1")
		assert.ErrorIs(t, err, ErrConflictNotFound)
	})

	t.Run("pending is not a resolution", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), c.ID, model.ResolutionPending, "user-1")
		assert.ErrorIs(t, err, ErrInvalidResolution)
	})

	t.Run("garbage resolution", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), c.ID, model.Resolution("merge"), "user-1")
		assert.ErrorIs(t, err, ErrInvalidResolution)
	})

	t.Run("terminal once resolved", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), c.ID, model.ResolutionManual, "user-1")
		require.NoError(t, err)

		_, err = r.Resolve(context.Background(), c.ID, model.ResolutionRemoteWins, "user-1")
		require.Error(t, err)
		if !errors.Is(err, ErrConflictResolved) {
			t.Fatalf("expected ErrConflictResolved, got %v", err)
		}
	})
}
