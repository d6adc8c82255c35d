package sync

import (
	"time"

	"wellsync/internal/model"
	"wellsync/internal/provider"
)

// DetectConflicts compares local events against their remote counterparts
// and returns conflict drafts. Pairing is by provider event id; local events
// without a matching remote (and vice versa) are never flagged.
//
// Two independent checks run per pair, so one pair can yield zero, one, or
// two drafts. Output order follows local-event iteration order. Timestamps
// that merely touch (local end == remote start) do not overlap.
func DetectConflicts(local []model.CalendarEvent, remote []provider.RemoteEvent, now time.Time) []model.Conflict {
	remoteByID := make(map[string]provider.RemoteEvent, len(remote))
	for _, r := range remote {
		remoteByID[r.ID] = r
	}

	var drafts []model.Conflict
	for _, l := range local {
		if l.ProviderEventID == "" {
			continue
		}
		r, ok := remoteByID[l.ProviderEventID]
		if !ok {
			continue
		}

		if l.Start.Before(r.End) && l.End.After(r.Start) {
			drafts = append(drafts, draft(l, r, model.ConflictTimeOverlap, now))
		}
		if l.Title != r.Summary {
			drafts = append(drafts, draft(l, r, model.ConflictTitleMismatch, now))
		}
	}
	return drafts
}

func draft(l model.CalendarEvent, r provider.RemoteEvent, ct model.ConflictType, now time.Time) model.Conflict {
	var localModified time.Time
	if !l.UpdatedAt.IsZero() {
		localModified = l.UpdatedAt
	}
	return model.Conflict{
		UserID: l.OwnerID,
		Local: model.EventSnapshot{
			ID:           l.ID,
			Title:        l.Title,
			Start:        l.Start,
			End:          l.End,
			LastModified: localModified,
		},
		Remote: model.EventSnapshot{
			ID:           r.ID,
			Title:        r.Summary,
			Start:        r.Start,
			End:          r.End,
			LastModified: r.Updated,
		},
		Type:       ct,
		Resolution: model.ResolutionPending,
		CreatedAt:  now,
	}
}
