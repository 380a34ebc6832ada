package forecast

import (
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/downtime"
)

// hourEpsilon is the smallest slice of a day worth simulating. Residuals
// below it are dropped rather than carried across days.
const hourEpsilon = 0.01

// Allocator consumes (grade, tons) work items against a clock with variable
// daily capacity: 24 hours minus the day's outages, with shutdown days
// skipped wholesale. One allocator serves one pass; it holds only read-only
// inputs and may be shared across the pass's phases.
type Allocator struct {
	line     core.LineConfig
	cal      *downtime.Calendar
	shutdown map[time.Time]struct{}
	horizon  time.Time
}

// NewAllocator builds an allocator for one pass. horizon is the last civil
// day on which hours may be allocated.
func NewAllocator(line core.LineConfig, cal *downtime.Calendar, shutdown map[time.Time]struct{}, horizon time.Time) *Allocator {
	return &Allocator{
		line:     line,
		cal:      cal,
		shutdown: shutdown,
		horizon:  core.DayKey(horizon),
	}
}

// StartClock positions a clock at the simulation start instant: the hours
// left on the first day run from the start time to midnight, bounded by the
// day's availability. Starting on a shutdown day yields zero hours so the
// first allocation advances immediately.
func (a *Allocator) StartClock(start time.Time) Clock {
	day := core.DayKey(start)
	if a.isShutdown(day) {
		return Clock{Day: day}
	}
	elapsed := float64(start.Hour()) + float64(start.Minute())/60 + float64(start.Second())/3600
	left := 24 - elapsed
	if avail := a.cal.AvailableHours(day); avail < left {
		left = avail
	}
	return Clock{Day: day, HoursLeft: left}
}

// Allocate runs one work item: it converts tonsToMake into hours at the
// grade's throughput and consumes day capacity until the item is done or the
// clock passes the horizon. It returns the advanced clock and the tons
// actually produced by this call. Grades without throughput and non-positive
// targets produce nothing and leave the clock untouched.
func (a *Allocator) Allocate(clock Clock, grade core.Grade, tonsToMake float64) (Clock, float64) {
	throughput := a.line.ThroughputFor(grade)
	if throughput <= 0 || tonsToMake <= 0 {
		return clock, 0
	}

	hoursNeeded := tonsToMake / throughput * 24
	var produced float64

	for hoursNeeded > hourEpsilon && !clock.Day.After(a.horizon) {
		if clock.HoursLeft < hourEpsilon {
			clock.Day = clock.Day.AddDate(0, 0, 1)
			for a.isShutdown(clock.Day) && !clock.Day.After(a.horizon) {
				clock.Day = clock.Day.AddDate(0, 0, 1)
			}
			clock.HoursLeft = a.cal.AvailableHours(clock.Day)
			continue
		}

		run := hoursNeeded
		if clock.HoursLeft < run {
			run = clock.HoursLeft
		}
		produced += run / 24 * throughput
		hoursNeeded -= run
		clock.HoursLeft -= run
	}

	return clock, produced
}

// PastHorizon reports whether the clock has advanced beyond the last
// allocatable day.
func (a *Allocator) PastHorizon(clock Clock) bool {
	return clock.Day.After(a.horizon)
}

func (a *Allocator) isShutdown(day time.Time) bool {
	_, ok := a.shutdown[day]
	return ok
}
