// Package recur expands recurrence rules into concrete occurrences.
package recur

import (
	"errors"
	"fmt"
	"time"

	"wellsync/internal/model"
)

// DefaultMaxOccurrences is the hard cap on occurrences generated for a
// single master event. It bounds expansion even when a rule configures no
// explicit termination condition.
const DefaultMaxOccurrences = 100

// Occurrence is one concrete start/end produced by expansion.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Expand generates the ordered occurrences of a recurrence rule anchored at
// the master event's start. The master's duration (masterEnd - masterStart)
// is held constant for every occurrence. Expansion stops when the rule's
// count is reached, when a candidate start would pass the rule's end date,
// or when the hard cap is hit, whichever comes first.
//
// Monthly and yearly steps use calendar arithmetic; a day-of-month past the
// end of a shorter month rolls over into the next month (Jan 31 + 1 month =
// Mar 3). That roll-over is the defined policy, not an accident.
func Expand(masterStart, masterEnd time.Time, rule model.RecurrenceRule) ([]Occurrence, error) {
	if !masterStart.Before(masterEnd) {
		return nil, errors.New("recur: master start must be before master end")
	}
	if !rule.Frequency.IsValid() {
		return nil, fmt.Errorf("recur: unknown frequency %q", rule.Frequency)
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	limit := DefaultMaxOccurrences
	if rule.Count != nil && *rule.Count < limit {
		limit = *rule.Count
	}

	duration := masterEnd.Sub(masterStart)
	out := make([]Occurrence, 0, limit)

	candidate := masterStart
	for len(out) < limit {
		if rule.EndDate != nil && candidate.After(*rule.EndDate) {
			break
		}
		out = append(out, Occurrence{Start: candidate, End: candidate.Add(duration)})
		candidate = advance(candidate, rule.Frequency, interval)
	}

	return out, nil
}

// ExpandInstances is a convenience wrapper that expands a recurring master
// event into EventInstance records with sequential identities.
func ExpandInstances(ev model.CalendarEvent) ([]model.EventInstance, error) {
	if ev.Recurrence == nil {
		return nil, errors.New("recur: event has no recurrence rule")
	}
	occs, err := Expand(ev.Start, ev.End, *ev.Recurrence)
	if err != nil {
		return nil, err
	}
	instances := make([]model.EventInstance, len(occs))
	for i, occ := range occs {
		instances[i] = model.EventInstance{
			MasterID: ev.ID,
			Sequence: i,
			Title:    ev.Title,
			Start:    occ.Start,
			End:      occ.End,
		}
	}
	return instances, nil
}

func advance(t time.Time, freq model.Frequency, interval int) time.Time {
	switch freq {
	case model.FreqDaily:
		return t.AddDate(0, 0, interval)
	case model.FreqWeekly:
		return t.AddDate(0, 0, interval*7)
	case model.FreqMonthly:
		return t.AddDate(0, interval, 0)
	case model.FreqYearly:
		return t.AddDate(interval, 0, 0)
	}
	// Unreachable: Expand validates the frequency first.
	return t
}
