// Package model holds the domain records shared by the sync engine, the
// provider adapters, and the data store. These are internal representations,
// independent of any specific calendar provider.
package model

import "time"

// Provider identifies an external calendar service linked to a user account.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderCalDAV Provider = "caldav"
)

// IsValid returns true if the provider is a known valid value.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderCalDAV:
		return true
	}
	return false
}

// EventSource records where a calendar event originated.
type EventSource string

const (
	SourceManual   EventSource = "manual"
	SourceExternal EventSource = "external"
)

// CalendarEvent is a user's local event record. External events are unique
// per (OwnerID, Provider, ProviderEventID); Start is always before End.
type CalendarEvent struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Start              time.Time       `json:"start"`
	End                time.Time       `json:"end"`
	Location           string          `json:"location,omitempty"`
	Source             EventSource     `json:"source"`
	Provider           Provider        `json:"provider,omitempty"`
	ProviderEventID    string          `json:"provider_event_id,omitempty"`
	ProviderCalendarID string          `json:"provider_calendar_id,omitempty"`
	Recurring          bool            `json:"recurring"`
	Recurrence         *RecurrenceRule `json:"recurrence,omitempty"`
	LastSyncedAt       *time.Time      `json:"last_synced_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Frequency is the repeat unit of a recurrence rule.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// IsValid returns true if the frequency is a known valid value.
func (f Frequency) IsValid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// RecurrenceRule describes how a master event repeats. Expansion is always
// bounded: by Count, by EndDate, or by the expander's hard cap when neither
// is set.
type RecurrenceRule struct {
	Frequency  Frequency      `json:"frequency"`
	Interval   int            `json:"interval"` // >= 1
	EndDate    *time.Time     `json:"end_date,omitempty"`
	Count      *int           `json:"count,omitempty"`
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"` // optional hint, weekly rules
	DayOfMonth *int           `json:"day_of_month,omitempty"` // optional hint, monthly rules
}

// EventInstance is a concrete occurrence derived from a recurring master
// event. Identity is (MasterID, Sequence).
type EventInstance struct {
	MasterID string
	Sequence int
	Title    string
	Start    time.Time
	End      time.Time
}

// ProviderConnection is the stored link between a user and an external
// calendar account.
type ProviderConnection struct {
	ID          string
	UserID      string
	Provider    Provider
	CalendarID  string
	AccessToken string
	Active      bool
	CreatedAt   time.Time
}
