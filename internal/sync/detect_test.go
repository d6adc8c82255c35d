package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellsync/internal/model"
	"wellsync/internal/provider"
)

var detectNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func localEvent(id, providerEventID, title string, start, end int64) model.CalendarEvent {
	return model.CalendarEvent{
		ID:              id,
		OwnerID:         "user-1",
		Title:           title,
		Start:           time.UnixMilli(start).UTC(),
		End:             time.UnixMilli(end).UTC(),
		ProviderEventID: providerEventID,
	}
}

func remoteEvent(id, summary string, start, end int64) provider.RemoteEvent {
	return provider.RemoteEvent{
		ID:      id,
		Summary: summary,
		Start:   time.UnixMilli(start).UTC(),
		End:     time.UnixMilli(end).UTC(),
	}
}

func TestDetectConflicts_TimeOverlap(t *testing.T) {
	// Same title, shifted remote window: exactly one time_overlap draft.
	local := []model.CalendarEvent{localEvent("e1", "g1", "Standup", 1000, 2000)}
	remote := []provider.RemoteEvent{remoteEvent("g1", "Standup", 1500, 2500)}

	drafts := DetectConflicts(local, remote, detectNow)

	require.Len(t, drafts, 1)
	assert.Equal(t, model.ConflictTimeOverlap, drafts[0].Type)
	assert.Equal(t, "user-1", drafts[0].UserID)
	assert.Equal(t, model.ResolutionPending, drafts[0].Resolution)
	assert.Equal(t, "e1", drafts[0].Local.ID)
	assert.Equal(t, "g1", drafts[0].Remote.ID)
}

func TestDetectConflicts_BoundaryTouchIsNotOverlap(t *testing.T) {
	local := []model.CalendarEvent{localEvent("e1", "g1", "Standup", 1000, 2000)}
	remote := []provider.RemoteEvent{remoteEvent("g1", "Standup", 2000, 3000)}

	assert.Empty(t, DetectConflicts(local, remote, detectNow))
}

func TestDetectConflicts_TitleMismatchIndependentOfOverlap(t *testing.T) {
	tests := []struct {
		name      string
		remote    provider.RemoteEvent
		wantTypes []model.ConflictType
	}{
		{
			name:      "title differs, no overlap",
			remote:    remoteEvent("g1", "Planning", 5000, 6000),
			wantTypes: []model.ConflictType{model.ConflictTitleMismatch},
		},
		{
			name:      "title differs and overlaps",
			remote:    remoteEvent("g1", "Planning", 1500, 2500),
			wantTypes: []model.ConflictType{model.ConflictTimeOverlap, model.ConflictTitleMismatch},
		},
		{
			name:      "identical pair",
			remote:    remoteEvent("g1", "Standup", 1000, 2000),
			wantTypes: []model.ConflictType{model.ConflictTimeOverlap},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := []model.CalendarEvent{localEvent("e1", "g1", "Standup", 1000, 2000)}
			drafts := DetectConflicts(local, []provider.RemoteEvent{tt.remote}, detectNow)
			require.Len(t, drafts, len(tt.wantTypes))
			for i, want := range tt.wantTypes {
				assert.Equal(t, want, drafts[i].Type)
			}
		})
	}
}

func TestDetectConflicts_UnpairedEventsNeverFlagged(t *testing.T) {
	local := []model.CalendarEvent{
		localEvent("e1", "", "Manual event", 1000, 2000),
		localEvent("e2", "g-missing", "Orphaned link", 1000, 2000),
	}
	remote := []provider.RemoteEvent{remoteEvent("g-new", "Unseen remote", 1000, 2000)}

	assert.Empty(t, DetectConflicts(local, remote, detectNow))
}

func TestDetectConflicts_OutputFollowsLocalOrder(t *testing.T) {
	local := []model.CalendarEvent{
		localEvent("e1", "g1", "A", 1000, 2000),
		localEvent("e2", "g2", "B", 1000, 2000),
	}
	remote := []provider.RemoteEvent{
		remoteEvent("g2", "B-changed", 5000, 6000),
		remoteEvent("g1", "A-changed", 5000, 6000),
	}

	drafts := DetectConflicts(local, remote, detectNow)

	require.Len(t, drafts, 2)
	assert.Equal(t, "e1", drafts[0].Local.ID)
	assert.Equal(t, "e2", drafts[1].Local.ID)
}
