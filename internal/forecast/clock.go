package forecast

import "time"

// Clock is the simulation position: the current civil day and the production
// hours left on it. Only the allocator mutates a clock, and only forward;
// days advance in whole steps once their hours are exhausted.
type Clock struct {
	Day       time.Time `json:"day"`
	HoursLeft float64   `json:"hoursLeft"`
}

// Instant reconstructs the approximate wall-clock position of the clock in
// the given location, placing it 24-HoursLeft hours into the current day.
func (c Clock) Instant(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	elapsed := 24 - c.HoursLeft
	if elapsed < 0 {
		elapsed = 0
	}
	midnight := time.Date(c.Day.Year(), c.Day.Month(), c.Day.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(elapsed * float64(time.Hour)))
}
