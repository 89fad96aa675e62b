package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Validate(t *testing.T) {
	date := t0

	tests := []struct {
		name     string
		schedule Schedule
		valid    bool
	}{
		{"once with date", Schedule{Type: ScheduleTypeOnce, Date: &date}, true},
		{"once without date", Schedule{Type: ScheduleTypeOnce}, false},
		{"recurring interval", Schedule{Type: ScheduleTypeRecurring, Interval: IntervalWeeks, IntervalValue: 2}, true},
		{"recurring zero value", Schedule{Type: ScheduleTypeRecurring, Interval: IntervalDays}, false},
		{"recurring bad unit", Schedule{Type: ScheduleTypeRecurring, Interval: "YEARS", IntervalValue: 1}, false},
		{"recurring cron", Schedule{Type: ScheduleTypeRecurring, Cron: "0 9 * * 1"}, true},
		{"recurring cron with timezone", Schedule{Type: ScheduleTypeRecurring, Cron: "0 9 * * *", Timezone: "Europe/Lisbon"}, true},
		{"recurring bad cron", Schedule{Type: ScheduleTypeRecurring, Cron: "every day"}, false},
		{"recurring bad timezone", Schedule{Type: ScheduleTypeRecurring, Cron: "0 9 * * *", Timezone: "Mars/Olympus"}, false},
		{"unknown type", Schedule{Type: "HOURLY"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsValidationError(err), "got %v", err)
			}
		})
	}
}

func TestSchedule_Step(t *testing.T) {
	jan31 := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, jan31.Add(90*time.Minute), (&Schedule{Interval: IntervalMinutes, IntervalValue: 90}).Step(jan31))
	assert.Equal(t, jan31.Add(3*time.Hour), (&Schedule{Interval: IntervalHours, IntervalValue: 3}).Step(jan31))
	assert.Equal(t, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), (&Schedule{Interval: IntervalDays, IntervalValue: 1}).Step(jan31))
	assert.Equal(t, time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC), (&Schedule{Interval: IntervalWeeks, IntervalValue: 2}).Step(jan31))
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), (&Schedule{Interval: IntervalMonths, IntervalValue: 1}).Step(jan31))
}

func TestSchedule_Fingerprint(t *testing.T) {
	a := &Schedule{Type: ScheduleTypeRecurring, Interval: IntervalDays, IntervalValue: 1}
	b := &Schedule{Type: ScheduleTypeRecurring, Interval: IntervalDays, IntervalValue: 2}

	assert.Equal(t, a.Fingerprint(), (&Schedule{Type: ScheduleTypeRecurring, Interval: IntervalDays, IntervalValue: 1}).Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestSchedule_CronScheduleHonorsTimezone(t *testing.T) {
	s := &Schedule{Type: ScheduleTypeRecurring, Cron: "0 9 * * *", Timezone: "America/Sao_Paulo"}

	parsed, err := s.CronSchedule()
	require.NoError(t, err)

	next := parsed.Next(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), next.UTC())
}
