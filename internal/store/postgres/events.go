package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wellsync/internal/model"
)

// Store exposes the typed queries the sync engine and transport layer use.
type Store struct {
	db *DB
}

// NewStore wraps a connected DB.
func NewStore(db *DB) *Store { return &Store{db: db} }

const eventColumns = `id, owner_id, title, description, start_at, end_at, location,
source, provider, provider_event_id, provider_calendar_id,
recurring, recurrence, last_synced_at, updated_at`

// SaveEvent inserts or updates a calendar event. External events stay unique
// per (owner, provider, provider_event_id) via the table's unique index.
func (s *Store) SaveEvent(ctx context.Context, ev *model.CalendarEvent) error {
	var recurrence any
	if ev.Recurrence != nil {
		b, err := json.Marshal(ev.Recurrence)
		if err != nil {
			return fmt.Errorf("marshal recurrence: %w", err)
		}
		recurrence = string(b)
	}

	_, err := s.db.Pool.Exec(ctx, `
INSERT INTO calendar_events (`+eventColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::jsonb,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  start_at = EXCLUDED.start_at,
  end_at = EXCLUDED.end_at,
  location = EXCLUDED.location,
  recurring = EXCLUDED.recurring,
  recurrence = EXCLUDED.recurrence,
  last_synced_at = EXCLUDED.last_synced_at,
  updated_at = EXCLUDED.updated_at`,
		ev.ID, ev.OwnerID, ev.Title, ev.Description, ev.Start, ev.End, ev.Location,
		ev.Source, nullIfEmpty(string(ev.Provider)), nullIfEmpty(ev.ProviderEventID),
		nullIfEmpty(ev.ProviderCalendarID), ev.Recurring, recurrence,
		ev.LastSyncedAt, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save event %s: %w", ev.ID, err)
	}
	return nil
}

// EventByID returns the event or (nil, nil) when absent.
func (s *Store) EventByID(ctx context.Context, id string) (*model.CalendarEvent, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	return ev, nil
}

// EventsInRange returns the user's events for one provider that intersect
// [from, to).
func (s *Store) EventsInRange(ctx context.Context, userID string, p model.Provider, from, to time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT `+eventColumns+` FROM calendar_events
WHERE owner_id = $1 AND provider = $2 AND start_at < $4 AND end_at > $3
ORDER BY start_at ASC`, userID, string(p), from, to)
	if err != nil {
		return nil, fmt.Errorf("query events in range: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// UserEvents returns all of the user's events intersecting [from, to),
// regardless of source.
func (s *Store) UserEvents(ctx context.Context, userID string, from, to time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT `+eventColumns+` FROM calendar_events
WHERE owner_id = $1 AND start_at < $3 AND end_at > $2
ORDER BY start_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query user events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]model.CalendarEvent, error) {
	var out []model.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*model.CalendarEvent, error) {
	var (
		ev                 model.CalendarEvent
		provider           *string
		providerEventID    *string
		providerCalendarID *string
		recurrence         []byte
	)
	err := row.Scan(&ev.ID, &ev.OwnerID, &ev.Title, &ev.Description, &ev.Start, &ev.End,
		&ev.Location, &ev.Source, &provider, &providerEventID, &providerCalendarID,
		&ev.Recurring, &recurrence, &ev.LastSyncedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		ev.Provider = model.Provider(*provider)
	}
	if providerEventID != nil {
		ev.ProviderEventID = *providerEventID
	}
	if providerCalendarID != nil {
		ev.ProviderCalendarID = *providerCalendarID
	}
	if len(recurrence) > 0 {
		var rule model.RecurrenceRule
		if err := json.Unmarshal(recurrence, &rule); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence: %w", err)
		}
		ev.Recurrence = &rule
	}
	return &ev, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
