// Package scheduler feeds due SCHEDULED workflows into the dispatch path.
package scheduler

import (
	"time"

	"github.com/dukex/automation/pkg/models"
)

// NextRun computes the next slot of a schedule.
//
// anchor is where the schedule started counting (workflow creation, or the
// moment the schedule last changed) and lastRun the slot that fired last, if
// any. Before the first run, the first slot after anchor is returned even when
// it is already past, so a late sweep still fires it once. Afterwards missed
// slots are skipped and the first slot after now is returned. ONCE schedules
// have no slot after they fired.
func NextRun(schedule *models.Schedule, anchor time.Time, lastRun *time.Time, now time.Time) (time.Time, bool) {
	switch schedule.Type {
	case models.ScheduleTypeOnce:
		if lastRun != nil || schedule.Date == nil {
			return time.Time{}, false
		}

		return *schedule.Date, true

	case models.ScheduleTypeRecurring:
		if schedule.IsCron() {
			return nextCron(schedule, anchor, lastRun, now)
		}

		return nextInterval(schedule, anchor, lastRun, now)

	default:
		return time.Time{}, false
	}
}

func nextInterval(schedule *models.Schedule, anchor time.Time, lastRun *time.Time, now time.Time) (time.Time, bool) {
	if lastRun == nil {
		next := schedule.Step(anchor)

		return next, next.After(anchor)
	}

	next := schedule.Step(*lastRun)
	if !next.After(*lastRun) {
		return time.Time{}, false
	}

	for !next.After(now) {
		next = schedule.Step(next)
	}

	return next, true
}

func nextCron(schedule *models.Schedule, anchor time.Time, lastRun *time.Time, now time.Time) (time.Time, bool) {
	parsed, err := schedule.CronSchedule()
	if err != nil {
		return time.Time{}, false
	}

	from := anchor
	if lastRun != nil {
		from = *lastRun
		if now.After(from) {
			from = now
		}
	}

	next := parsed.Next(from)

	return next, !next.IsZero()
}
