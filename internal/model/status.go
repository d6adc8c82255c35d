package model

import "time"

// SyncState is the current phase of a (user, provider) sync relationship.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncSyncing  SyncState = "syncing"
	SyncError    SyncState = "error"
	SyncConflict SyncState = "conflict"
)

// IsValid returns true if the state is a known valid value.
func (s SyncState) IsValid() bool {
	switch s {
	case SyncIdle, SyncSyncing, SyncError, SyncConflict:
		return true
	}
	return false
}

// SyncStatus tracks the most recent sync outcome for one (user, provider)
// pair. Created lazily on the first sync attempt and mutated only by the
// orchestrator.
type SyncStatus struct {
	UserID         string     `json:"user_id"`
	Provider       Provider   `json:"provider"`
	State          SyncState  `json:"state"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt     *time.Time `json:"next_sync_at,omitempty"`
	ConflictsCount int        `json:"conflicts_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}
