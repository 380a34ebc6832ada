// Package downtime classifies dated outage records for a production line and
// answers per-day availability questions for the forecast simulation.
package downtime

import (
	"strings"
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
)

// Record is one dated outage row: on Date the line lost Hours of production
// for the stated reason.
type Record struct {
	Date        time.Time `json:"date"`
	Hours       float64   `json:"hours"`
	Description string    `json:"description"`
}

// shutdownKeywords mark records describing the annual maintenance shutdown.
var shutdownKeywords = []string{"SHUTDOWN", "SHUT DOWN", "ANNUAL"}

// Calendar is an immutable per-line view over outage records. A record
// counts as an annual shutdown when its description carries a shutdown
// keyword and its duration reaches the cutoff; shorter records are intra-day
// outages. Records at or above the cutoff without shutdown wording fall in
// neither bucket.
type Calendar struct {
	outageHours map[time.Time]float64
	shutdowns   map[time.Time]struct{}
}

// NewCalendar classifies records against the given shutdown cutoff (hours).
// The zero-record calendar reports 24 available hours on every day and an
// empty shutdown set.
func NewCalendar(records []Record, shutdownCutoffHours float64) *Calendar {
	c := &Calendar{
		outageHours: make(map[time.Time]float64),
		shutdowns:   make(map[time.Time]struct{}),
	}
	for _, rec := range records {
		if rec.Hours < 0 {
			continue
		}
		day := core.DayKey(rec.Date)
		switch {
		case rec.Hours >= shutdownCutoffHours && isShutdownDescription(rec.Description):
			c.shutdowns[day] = struct{}{}
		case rec.Hours < shutdownCutoffHours:
			c.outageHours[day] += rec.Hours
		}
	}
	return c
}

// AvailableHours returns the production hours left on a civil day after
// subtracting its intra-day outages, clamped to [0, 24]. Shutdown records do
// not contribute here; shutdown days are skipped wholesale by the simulation
// rather than partially discounted.
func (c *Calendar) AvailableHours(day time.Time) float64 {
	lost := c.outageHours[core.DayKey(day)]
	if lost >= 24 {
		return 0
	}
	return 24 - lost
}

// IsShutdown reports whether the civil day is classified as annual shutdown.
func (c *Calendar) IsShutdown(day time.Time) bool {
	_, ok := c.shutdowns[core.DayKey(day)]
	return ok
}

// ShutdownDays returns the shutdown-classified days within the inclusive
// range, keyed by their normalized civil day.
func (c *Calendar) ShutdownDays(from, to time.Time) map[time.Time]struct{} {
	lo := core.DayKey(from)
	hi := core.DayKey(to)
	out := make(map[time.Time]struct{})
	for day := range c.shutdowns {
		if day.Before(lo) || day.After(hi) {
			continue
		}
		out[day] = struct{}{}
	}
	return out
}

func isShutdownDescription(desc string) bool {
	upper := strings.ToUpper(desc)
	for _, kw := range shutdownKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
