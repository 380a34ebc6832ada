package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/history"
	"github.com/sebastiankruger/mill-forecaster/internal/timeseries"
)

// fakeHistorian routes interval fetches by tag.
type fakeHistorian struct {
	byTag map[string][]timeseries.Interval
	errs  map[string]error
}

func (f *fakeHistorian) Intervals(ctx context.Context, tag string, from, to time.Time, tz string) ([]timeseries.Interval, error) {
	if err := f.errs[tag]; err != nil {
		return nil, err
	}
	return f.byTag[tag], nil
}

const (
	runTag = "L1.GRADE"
	calTag = "L1.CAL"
)

func forecastLine(tput map[core.Grade]float64) core.LineConfig {
	return core.LineConfig{
		ID:          "line-1",
		GradeRunTag: runTag,
		CalendarTag: calTag,
		Throughput:  tput,
	}
}

// calDays lays out one calendar interval per day starting at base.
func calDays(base time.Time, values ...string) []timeseries.Interval {
	out := make([]timeseries.Interval, len(values))
	for i, v := range values {
		out[i] = timeseries.Interval{
			Value: v,
			Start: base.AddDate(0, 0, i),
			End:   base.AddDate(0, 0, i+1),
		}
	}
	return out
}

func newOrchestrator(h *fakeHistorian) *Orchestrator {
	return New(h, history.NewAnalyzer(h))
}

func TestForecastExplicitScheduleOnly(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{errs: map[string]error{calTag: errors.New("historian down")}}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:     forecastLine(map[core.Grade]float64{"G1": 100, "G2": 50}),
		Start:    start,
		End:      start.AddDate(0, 0, 30),
		Now:      start,
		Schedule: core.Schedule{{Grade: "G1", Tons: 100}, {Grade: "G2", Tons: 50}},
	})

	if math.Abs(res.Tons["G1"]-100) > 1e-6 || math.Abs(res.Tons["G2"]-50) > 1e-6 {
		t.Fatalf("expected {G1:100 G2:50}, got %v", res.Tons)
	}
	// 24 hours of G1 and 24 hours of G2: the clock sits at the end of the
	// second day.
	if !res.Clock.Day.Equal(day(3)) || math.Abs(res.Clock.HoursLeft) > 1e-6 {
		t.Fatalf("expected 48 production hours consumed, got day %v with %.4f left", res.Clock.Day, res.Clock.HoursLeft)
	}
	if res.ScheduleStatus != PhaseComplete {
		t.Fatalf("expected schedule phase complete, got %s", res.ScheduleStatus)
	}
	if res.ContinuationStatus != PhaseDegraded {
		t.Fatalf("expected degraded continuation when the calendar is down, got %s", res.ContinuationStatus)
	}
	if res.RunID == "" {
		t.Fatalf("expected a run id on every pass")
	}
}

func TestForecastContinuationViaAlignment(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{byTag: map[string][]timeseries.Interval{
		calTag: calDays(start.AddDate(0, 0, -2), "X", "A", "B", "C", "D"),
		// Twelve-hour historical runs: C averages 50 t, D averages 30 t.
		runTag: {
			{Value: "C", Start: start.AddDate(0, -2, 0), End: start.AddDate(0, -2, 0).Add(12 * time.Hour)},
			{Value: "D", Start: start.AddDate(0, -1, 0), End: start.AddDate(0, -1, 0).Add(12 * time.Hour)},
		},
	}}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:     forecastLine(map[core.Grade]float64{"A": 100, "B": 50, "C": 100, "D": 60}),
		Start:    start,
		End:      start.AddDate(0, 0, 30),
		Now:      start,
		Schedule: core.Schedule{{Grade: "A", Tons: 100}, {Grade: "B", Tons: 50}},
	})

	if res.ContinuationStatus != PhaseComplete {
		t.Fatalf("expected continuation complete, got %s (%v)", res.ContinuationStatus, res.Warnings)
	}
	if math.Abs(res.Continuation["C"]-50) > 1e-6 || math.Abs(res.Continuation["D"]-30) > 1e-6 {
		t.Fatalf("expected continuation {C:50 D:30}, got %v", res.Continuation)
	}
	if math.Abs(res.Tons["A"]-100) > 1e-6 || math.Abs(res.Tons["B"]-50) > 1e-6 {
		t.Fatalf("expected schedule tonnage preserved, got %v", res.Tons)
	}
}

func TestForecastContinuationFallbackDropsRepeatedHead(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{byTag: map[string][]timeseries.Interval{
		// No alignment for trailing [A]: the calendar never repeats it
		// in a window the aligner trusts, so the handoff fallback runs.
		calTag: calDays(start, "P", "A", "R"),
		runTag: {
			{Value: "R", Start: start.AddDate(0, -1, 0), End: start.AddDate(0, -1, 0).Add(12 * time.Hour)},
		},
	}}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:  forecastLine(map[core.Grade]float64{"A": 100, "R": 80}),
		Start: start,
		End:   start.AddDate(0, 0, 30),
		Now:   start,
		// One day of A: the handoff lands at the end of the calendar's
		// first day, whose next run repeats A and must be dropped.
		Schedule: core.Schedule{{Grade: "A", Tons: 100}},
	})

	if res.ContinuationStatus != PhaseComplete {
		t.Fatalf("expected continuation complete, got %s (%v)", res.ContinuationStatus, res.Warnings)
	}
	if _, ok := res.Continuation["A"]; ok {
		t.Fatalf("expected repeated head grade dropped, got %v", res.Continuation)
	}
	if math.Abs(res.Continuation["R"]-40) > 1e-6 {
		t.Fatalf("expected continuation {R:40}, got %v", res.Continuation)
	}
}

func TestForecastSeedsKnownActualsAndStartsAtNow(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{errs: map[string]error{calTag: errors.New("down")}}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:         forecastLine(map[core.Grade]float64{"A": 100}),
		Start:        start,
		End:          start.AddDate(0, 0, 30),
		Now:          start.Add(12 * time.Hour),
		Schedule:     core.Schedule{{Grade: "A", Tons: 100}},
		KnownActuals: core.Tonnage{"A": 70},
	})

	if math.Abs(res.Seeded["A"]-70) > 1e-9 {
		t.Fatalf("expected seeded 70, got %v", res.Seeded)
	}
	if math.Abs(res.Tons["A"]-170) > 1e-6 {
		t.Fatalf("expected seeded plus scheduled 170, got %v", res.Tons)
	}
	// Simulation began at noon: 12 hours fit on the first day, the
	// remaining 12 spill into the next.
	if !res.Clock.Day.Equal(day(3)) || math.Abs(res.Clock.HoursLeft-12) > 1e-6 {
		t.Fatalf("expected 12 hours left on day 2 of the run, got day %v with %.4f", res.Clock.Day, res.Clock.HoursLeft)
	}
}

func TestForecastHistoryFailureKeepsPhaseOne(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{
		byTag: map[string][]timeseries.Interval{calTag: calDays(start, "A", "B", "C")},
		errs:  map[string]error{runTag: errors.New("no backfill")},
	}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:     forecastLine(map[core.Grade]float64{"A": 100, "B": 50, "C": 100}),
		Start:    start,
		End:      start.AddDate(0, 0, 30),
		Now:      start,
		Schedule: core.Schedule{{Grade: "A", Tons: 100}, {Grade: "B", Tons: 50}},
	})

	if res.ContinuationStatus != PhaseDegraded {
		t.Fatalf("expected degraded continuation, got %s", res.ContinuationStatus)
	}
	if math.Abs(res.Tons["A"]-100) > 1e-6 || math.Abs(res.Tons["B"]-50) > 1e-6 {
		t.Fatalf("expected phase 1 output intact, got %v", res.Tons)
	}
	if len(res.Continuation) != 0 {
		t.Fatalf("expected no continuation tons, got %v", res.Continuation)
	}
}

func TestForecastHorizonReachedSkipsContinuation(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{byTag: map[string][]timeseries.Interval{calTag: calDays(start, "A", "B")}}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:  forecastLine(map[core.Grade]float64{"A": 100}),
		Start: start,
		End:   start, // single-day horizon
		Now:   start,
		// Two days of work against a one-day horizon.
		Schedule: core.Schedule{{Grade: "A", Tons: 200}},
	})

	if math.Abs(res.Tons["A"]-100) > 1e-6 {
		t.Fatalf("expected one day of production, got %v", res.Tons)
	}
	if res.ContinuationStatus != PhaseSkipped {
		t.Fatalf("expected continuation skipped at horizon, got %s", res.ContinuationStatus)
	}
}

func TestForecastNonGradeScheduleEntriesSkipped(t *testing.T) {
	start := day(2)
	h := &fakeHistorian{errs: map[string]error{calTag: errors.New("down")}}
	o := newOrchestrator(h)

	res := o.Forecast(context.Background(), Request{
		Line:     forecastLine(map[core.Grade]float64{"A": 100}),
		Start:    start,
		End:      start.AddDate(0, 0, 10),
		Now:      start,
		Schedule: core.Schedule{{Grade: "HOLIDAY", Tons: 999}, {Grade: "A", Tons: 100}},
	})

	if len(res.Tons) != 1 || math.Abs(res.Tons["A"]-100) > 1e-6 {
		t.Fatalf("expected only grade A produced, got %v", res.Tons)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a warning for the sentinel schedule entry")
	}
}
