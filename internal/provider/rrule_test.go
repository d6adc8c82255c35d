package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellsync/internal/model"
)

func TestRuleFromRRule_WeeklyWithCount(t *testing.T) {
	rule, err := RuleFromRRule("RRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=5;BYDAY=MO,WE")

	require.NoError(t, err)
	assert.Equal(t, model.FreqWeekly, rule.Frequency)
	assert.Equal(t, 2, rule.Interval)
	require.NotNil(t, rule.Count)
	assert.Equal(t, 5, *rule.Count)
	assert.Nil(t, rule.EndDate)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, rule.DaysOfWeek)
}

func TestRuleFromRRule_PrefixIsOptional(t *testing.T) {
	withPrefix, err := RuleFromRRule("RRULE:FREQ=DAILY")
	require.NoError(t, err)
	bare, err := RuleFromRRule("FREQ=DAILY")
	require.NoError(t, err)

	assert.Equal(t, withPrefix, bare)
}

func TestRuleFromRRule_UntilBecomesEndDate(t *testing.T) {
	rule, err := RuleFromRRule("FREQ=MONTHLY;UNTIL=20251231T000000Z;BYMONTHDAY=15")

	require.NoError(t, err)
	assert.Equal(t, model.FreqMonthly, rule.Frequency)
	require.NotNil(t, rule.EndDate)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), rule.EndDate.UTC())
	require.NotNil(t, rule.DayOfMonth)
	assert.Equal(t, 15, *rule.DayOfMonth)
}

func TestRuleFromRRule_MissingIntervalDefaultsToOne(t *testing.T) {
	rule, err := RuleFromRRule("FREQ=YEARLY")

	require.NoError(t, err)
	assert.Equal(t, model.FreqYearly, rule.Frequency)
	assert.Equal(t, 1, rule.Interval)
}

func TestRuleFromRRule_Rejected(t *testing.T) {
	_, err := RuleFromRRule("FREQ=HOURLY")
	assert.Error(t, err, "sub-daily frequency")

	_, err = RuleFromRRule("not an rrule at all;;;")
	assert.Error(t, err)
}

func TestSyncWindow(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	w := SyncWindow(now)

	assert.Equal(t, now.AddDate(0, 0, -30), w.TimeMin)
	assert.Equal(t, now.AddDate(0, 0, 90), w.TimeMax)
}
