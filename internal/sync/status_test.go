package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellsync/internal/model"
)

func TestStatusRegistry_GetUnknownUserIsEmpty(t *testing.T) {
	registry := NewStatusRegistry()
	assert.Empty(t, registry.Get("nobody"))
}

func TestStatusRegistry_TransitionCreatesIdleEntry(t *testing.T) {
	registry := NewStatusRegistry()

	st := registry.Transition("user-1", model.ProviderGoogle, func(*model.SyncStatus) {})

	assert.Equal(t, "user-1", st.UserID)
	assert.Equal(t, model.ProviderGoogle, st.Provider)
	assert.Equal(t, model.SyncIdle, st.State)
	assert.Nil(t, st.LastSyncAt)
}

func TestStatusRegistry_TransitionMutatesInPlace(t *testing.T) {
	registry := NewStatusRegistry()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	registry.Transition("user-1", model.ProviderGoogle, func(st *model.SyncStatus) {
		st.State = model.SyncSyncing
	})
	st := registry.Transition("user-1", model.ProviderGoogle, func(st *model.SyncStatus) {
		st.State = model.SyncError
		st.ErrorMessage = "fetch failed"
		st.LastSyncAt = &at
	})

	assert.Equal(t, model.SyncError, st.State)
	assert.Equal(t, "fetch failed", st.ErrorMessage)

	statuses := registry.Get("user-1")
	require.Len(t, statuses, 1, "same pair must reuse one entry")
	assert.Equal(t, model.SyncError, statuses[0].State)
	require.NotNil(t, statuses[0].LastSyncAt)
	assert.Equal(t, at, *statuses[0].LastSyncAt)
}

func TestStatusRegistry_GetIsScopedAndOrdered(t *testing.T) {
	registry := NewStatusRegistry()
	registry.Transition("user-1", model.ProviderGoogle, func(*model.SyncStatus) {})
	registry.Transition("user-1", model.ProviderCalDAV, func(*model.SyncStatus) {})
	registry.Transition("user-2", model.ProviderGoogle, func(*model.SyncStatus) {})

	statuses := registry.Get("user-1")

	require.Len(t, statuses, 2)
	assert.Equal(t, model.ProviderCalDAV, statuses[0].Provider)
	assert.Equal(t, model.ProviderGoogle, statuses[1].Provider)
}

func TestStatusRegistry_GetReturnsCopies(t *testing.T) {
	registry := NewStatusRegistry()
	registry.Transition("user-1", model.ProviderGoogle, func(*model.SyncStatus) {})

	statuses := registry.Get("user-1")
	statuses[0].State = model.SyncError

	assert.Equal(t, model.SyncIdle, registry.Get("user-1")[0].State)
}
