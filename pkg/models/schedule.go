package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects between one-shot and repeating schedules.
type ScheduleType string

const (
	ScheduleTypeOnce      ScheduleType = "ONCE"
	ScheduleTypeRecurring ScheduleType = "RECURRING"
)

// IntervalUnit is the step of a recurring interval schedule.
type IntervalUnit string

const (
	IntervalMinutes IntervalUnit = "MINUTES"
	IntervalHours   IntervalUnit = "HOURS"
	IntervalDays    IntervalUnit = "DAYS"
	IntervalWeeks   IntervalUnit = "WEEKS"
	IntervalMonths  IntervalUnit = "MONTHS"
)

// CronParser accepts the standard 5-field cron format (minute hour day month weekday).
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is the timing configuration of a SCHEDULED trigger.
type Schedule struct {
	Type ScheduleType `json:"type"`

	// Date is the single run time of a ONCE schedule.
	Date *time.Time `json:"date,omitempty"`

	// Interval and IntervalValue describe a RECURRING schedule as "every N units".
	Interval      IntervalUnit `json:"interval,omitempty"`
	IntervalValue int          `json:"interval_value,omitempty"`

	// Cron is an alternative RECURRING form. Takes precedence over Interval when both are set.
	Cron string `json:"cron,omitempty"`

	// Timezone applies to Cron evaluation. Defaults to UTC.
	Timezone string `json:"timezone,omitempty"`
}

// Validate enforces the ONCE/RECURRING field requirements.
func (s *Schedule) Validate() error {
	const op = "ValidateSchedule"

	switch s.Type {
	case ScheduleTypeOnce:
		if s.Date == nil || s.Date.IsZero() {
			return newValidationError(op, "ONCE schedule requires a date")
		}
	case ScheduleTypeRecurring:
		if s.Cron != "" {
			if _, err := s.CronSchedule(); err != nil {
				return wrapValidationError(op, "invalid cron expression", err)
			}

			return nil
		}

		if !validIntervalUnit(s.Interval) {
			return newValidationError(op, "RECURRING schedule requires an interval unit or a cron expression")
		}

		if s.IntervalValue <= 0 {
			return newValidationError(op, "interval value must be positive")
		}
	default:
		return newValidationError(op, "unknown schedule type %q", s.Type)
	}

	return nil
}

// IsCron reports whether a recurring schedule is driven by a cron expression.
func (s *Schedule) IsCron() bool {
	return s.Type == ScheduleTypeRecurring && s.Cron != ""
}

// CronSchedule parses Cron, honoring Timezone.
func (s *Schedule) CronSchedule() (cron.Schedule, error) {
	spec := strings.TrimSpace(s.Cron)
	if s.Timezone != "" && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}

		spec = "CRON_TZ=" + s.Timezone + " " + spec
	}

	return CronParser.Parse(spec)
}

// Step advances t by one interval. Calendar units use AddDate so month
// lengths and DST are respected.
func (s *Schedule) Step(t time.Time) time.Time {
	n := s.IntervalValue

	switch s.Interval {
	case IntervalMinutes:
		return t.Add(time.Duration(n) * time.Minute)
	case IntervalHours:
		return t.Add(time.Duration(n) * time.Hour)
	case IntervalDays:
		return t.AddDate(0, 0, n)
	case IntervalWeeks:
		return t.AddDate(0, 0, 7*n)
	case IntervalMonths:
		return t.AddDate(0, n, 0)
	default:
		return t
	}
}

// Fingerprint identifies the timing configuration. Scheduler state is reset
// whenever it changes.
func (s *Schedule) Fingerprint() string {
	date := ""
	if s.Date != nil {
		date = s.Date.UTC().Format(time.RFC3339Nano)
	}

	raw := fmt.Sprintf("%s|%s|%s|%d|%s|%s", s.Type, date, s.Interval, s.IntervalValue, s.Cron, s.Timezone)
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:8])
}

func validIntervalUnit(u IntervalUnit) bool {
	switch u {
	case IntervalMinutes, IntervalHours, IntervalDays, IntervalWeeks, IntervalMonths:
		return true
	default:
		return false
	}
}
