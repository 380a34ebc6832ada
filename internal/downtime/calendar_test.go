package downtime

import (
	"testing"
	"time"
)

const cutoff = 23.9

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAvailableHoursClampsAtZero(t *testing.T) {
	d := day(2026, 2, 10)
	cal := NewCalendar([]Record{
		{Date: d, Hours: 5, Description: "roll change"},
		{Date: d, Hours: 22, Description: "cobble"},
	}, cutoff)

	if got := cal.AvailableHours(d); got != 0 {
		t.Fatalf("expected clamped 0 available hours, got %.2f", got)
	}
}

func TestAvailableHoursSubtractsOutages(t *testing.T) {
	d := day(2026, 2, 11)
	cal := NewCalendar([]Record{
		{Date: d, Hours: 3.5, Description: "electrical fault"},
	}, cutoff)

	if got := cal.AvailableHours(d); got != 20.5 {
		t.Fatalf("expected 20.5 available hours, got %.2f", got)
	}
	if got := cal.AvailableHours(day(2026, 2, 12)); got != 24 {
		t.Fatalf("expected 24 hours on a day without records, got %.2f", got)
	}
}

func TestShutdownExcludedFromAvailableHours(t *testing.T) {
	d := day(2026, 7, 1)
	cal := NewCalendar([]Record{
		{Date: d, Hours: 24, Description: "annual shutdown"},
	}, cutoff)

	if got := cal.AvailableHours(d); got != 24 {
		t.Fatalf("expected shutdown record to stay out of the hourly sum, got %.2f", got)
	}
	if !cal.IsShutdown(d) {
		t.Fatalf("expected day to classify as shutdown")
	}
}

func TestClassificationBuckets(t *testing.T) {
	cal := NewCalendar([]Record{
		// Shutdown wording below the cutoff: intra-day outage.
		{Date: day(2026, 7, 2), Hours: 10, Description: "partial shutdown"},
		// At-cutoff duration without shutdown wording: neither bucket.
		{Date: day(2026, 7, 3), Hours: 23.95, Description: "strike"},
	}, cutoff)

	if cal.IsShutdown(day(2026, 7, 2)) {
		t.Fatalf("expected short record to classify as outage, not shutdown")
	}
	if got := cal.AvailableHours(day(2026, 7, 2)); got != 14 {
		t.Fatalf("expected 14 available hours, got %.2f", got)
	}
	if cal.IsShutdown(day(2026, 7, 3)) {
		t.Fatalf("expected long non-shutdown record to stay out of the shutdown set")
	}
	if got := cal.AvailableHours(day(2026, 7, 3)); got != 24 {
		t.Fatalf("expected long non-shutdown record to stay out of the outage sum, got %.2f", got)
	}
}

func TestShutdownDaysRangeInclusive(t *testing.T) {
	cal := NewCalendar([]Record{
		{Date: day(2026, 7, 1), Hours: 24, Description: "ANNUAL SHUTDOWN"},
		{Date: day(2026, 7, 15), Hours: 24, Description: "annual shutdown"},
		{Date: day(2026, 8, 1), Hours: 24, Description: "annual shutdown"},
	}, cutoff)

	days := cal.ShutdownDays(day(2026, 7, 1), day(2026, 7, 31))
	if len(days) != 2 {
		t.Fatalf("expected 2 shutdown days in range, got %d", len(days))
	}
	if _, ok := days[day(2026, 7, 1)]; !ok {
		t.Fatalf("expected range start to be inclusive")
	}
}

func TestDayKeysIgnoreTimeAndZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cal := NewCalendar([]Record{
		{Date: time.Date(2026, 2, 10, 14, 30, 0, 0, berlin), Hours: 6, Description: "cobble"},
	}, cutoff)

	if got := cal.AvailableHours(time.Date(2026, 2, 10, 1, 0, 0, 0, time.UTC)); got != 18 {
		t.Fatalf("expected record to land on the same civil day across zones, got %.2f", got)
	}
}

func TestNoDataDegradesToFullCapacity(t *testing.T) {
	cal := NewCalendar(nil, cutoff)
	if got := cal.AvailableHours(day(2026, 1, 1)); got != 24 {
		t.Fatalf("expected 24 hours with no data, got %.2f", got)
	}
	if days := cal.ShutdownDays(day(2026, 1, 1), day(2026, 12, 31)); len(days) != 0 {
		t.Fatalf("expected empty shutdown set with no data, got %d", len(days))
	}
}
