package model

import "time"

// ConflictType classifies how a paired local/remote event diverged.
type ConflictType string

const (
	ConflictTimeOverlap   ConflictType = "time_overlap"
	ConflictTitleMismatch ConflictType = "title_mismatch"
	// ConflictDeletion is declared for wire compatibility; the detector has
	// no tombstone feed and never produces it.
	ConflictDeletion ConflictType = "deletion_conflict"
)

// IsValid returns true if the conflict type is a known valid value.
func (ct ConflictType) IsValid() bool {
	switch ct {
	case ConflictTimeOverlap, ConflictTitleMismatch, ConflictDeletion:
		return true
	}
	return false
}

// Resolution is the user's chosen outcome for a conflict. It is terminal
// once set to anything other than ResolutionPending.
type Resolution string

const (
	ResolutionPending    Resolution = "pending"
	ResolutionLocalWins  Resolution = "local_wins"
	ResolutionRemoteWins Resolution = "remote_wins"
	ResolutionManual     Resolution = "manual"
)

// IsValid returns true if the resolution is a known valid value.
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionPending, ResolutionLocalWins, ResolutionRemoteWins, ResolutionManual:
		return true
	}
	return false
}

// EventSnapshot captures the fields of one side of a conflict at detection
// time, so resolution can apply them later without refetching.
type EventSnapshot struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	LastModified time.Time `json:"last_modified"`
}

// Conflict is a detected divergence between a local event and its remote
// counterpart, awaiting an explicit resolution.
type Conflict struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Local      EventSnapshot `json:"local"`
	Remote     EventSnapshot `json:"remote"`
	Type       ConflictType  `json:"type"`
	Resolution Resolution    `json:"resolution"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy string        `json:"resolved_by,omitempty"`
}
