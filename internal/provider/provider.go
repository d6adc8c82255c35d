// Package provider defines the contract between the sync engine and
// external calendar services, plus shared normalization helpers.
package provider

import (
	"context"
	"errors"
	"time"

	"wellsync/internal/model"
)

// ErrPushNotSupported is returned by adapters that have no write-back path.
var ErrPushNotSupported = errors.New("provider: push-back not supported")

// Window bounds a remote fetch.
type Window struct {
	TimeMin time.Time
	TimeMax time.Time
}

// SyncWindow returns the fetch window used by sync passes: 30 days back,
// 90 days forward from now.
func SyncWindow(now time.Time) Window {
	return Window{
		TimeMin: now.AddDate(0, 0, -30),
		TimeMax: now.AddDate(0, 0, 90),
	}
}

// RemoteEvent is a provider event normalized into the internal shape.
// Start and End are always concrete timestamps; all-day events are
// normalized to midnight boundaries with AllDay set.
type RemoteEvent struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	Updated     time.Time
	AllDay      bool
	Recurrence  *model.RecurrenceRule
}

// Adapter is implemented once per external calendar service.
//
// Push is the local→remote write-back extension point. Its contract is
// push(localEvent) -> remoteEventID; adapters without a write path return
// ErrPushNotSupported.
type Adapter interface {
	GetEvents(ctx context.Context, conn model.ProviderConnection, window Window) ([]RemoteEvent, error)
	Push(ctx context.Context, event model.CalendarEvent) (string, error)
}
