package sync

import (
	"sort"
	"sync"

	"wellsync/internal/model"
)

type statusKey struct {
	userID   string
	provider model.Provider
}

// StatusRegistry is the in-memory map of per-(user, provider) sync status.
// Entries are created lazily on first transition and never persisted; a
// restart starts clean.
type StatusRegistry struct {
	mu       sync.Mutex
	statuses map[statusKey]*model.SyncStatus
}

// NewStatusRegistry creates an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{statuses: make(map[statusKey]*model.SyncStatus)}
}

// Get returns copies of all statuses for the user, ordered by provider for
// stable output.
func (r *StatusRegistry) Get(userID string) []model.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.SyncStatus
	for key, st := range r.statuses {
		if key.userID == userID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Transition applies mutate to the (userID, provider) status under the
// registry lock, creating an idle entry first if none exists, and returns
// the resulting snapshot.
func (r *StatusRegistry) Transition(userID string, p model.Provider, mutate func(*model.SyncStatus)) model.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := statusKey{userID: userID, provider: p}
	st, ok := r.statuses[key]
	if !ok {
		st = &model.SyncStatus{UserID: userID, Provider: p, State: model.SyncIdle}
		r.statuses[key] = st
	}
	mutate(st)
	return *st
}
