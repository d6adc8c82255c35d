package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"wellsync/internal/model"
)

// RuleFromRRule maps a provider RRULE string (with or without the "RRULE:"
// prefix) onto the internal recurrence record. Sub-daily frequencies are
// rejected; the product's rule model has no representation for them.
func RuleFromRRule(raw string) (*model.RecurrenceRule, error) {
	value := strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", raw, err)
	}

	var freq model.Frequency
	switch opt.Freq {
	case rrule.DAILY:
		freq = model.FreqDaily
	case rrule.WEEKLY:
		freq = model.FreqWeekly
	case rrule.MONTHLY:
		freq = model.FreqMonthly
	case rrule.YEARLY:
		freq = model.FreqYearly
	default:
		return nil, fmt.Errorf("unsupported rrule frequency in %q", raw)
	}

	out := &model.RecurrenceRule{
		Frequency: freq,
		Interval:  opt.Interval,
	}
	if out.Interval < 1 {
		out.Interval = 1
	}
	if opt.Count > 0 {
		count := opt.Count
		out.Count = &count
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		out.EndDate = &until
	}
	for _, wd := range opt.Byweekday {
		out.DaysOfWeek = append(out.DaysOfWeek, weekday(wd))
	}
	if len(opt.Bymonthday) > 0 {
		dom := opt.Bymonthday[0]
		out.DayOfMonth = &dom
	}
	return out, nil
}

func weekday(wd rrule.Weekday) time.Weekday {
	switch wd.Day() {
	case 0:
		return time.Monday
	case 1:
		return time.Tuesday
	case 2:
		return time.Wednesday
	case 3:
		return time.Thursday
	case 4:
		return time.Friday
	case 5:
		return time.Saturday
	default:
		return time.Sunday
	}
}
