package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/config"
	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/forecast"
	"github.com/sebastiankruger/mill-forecaster/internal/history"
	"github.com/sebastiankruger/mill-forecaster/internal/timeseries"
	"github.com/sebastiankruger/mill-forecaster/internal/usage"
)

// fakeHistorian serves canned intervals per tag and samples per signal.
type fakeHistorian struct {
	intervals map[string][]timeseries.Interval
	samples   map[string][]core.Sample
}

func (f *fakeHistorian) Intervals(_ context.Context, tag string, _, _ time.Time, _ string) ([]timeseries.Interval, error) {
	return f.intervals[tag], nil
}

func (f *fakeHistorian) Series(_ context.Context, signal string, _, _ time.Time, _ string) ([]core.Sample, error) {
	return f.samples[signal], nil
}

func testLine() core.LineConfig {
	return core.LineConfig{
		ID:          "hsm",
		Name:        "Hot Strip Mill",
		Timezone:    "UTC",
		Location:    time.UTC,
		Throughput:  map[core.Grade]float64{"A36": 900, "S355": 600},
		GradeRunTag: "hsm.grade",
		CalendarTag: "hsm.calendar",
		UsageSignals: map[string]string{
			"descaler": "hsm.descaler.flow",
		},
	}
}

func testCoordinator(source *fakeHistorian) *Coordinator {
	cfg := &config.Config{
		AlignMinRatio:       0.5,
		ShutdownCutoffHours: 23.9,
		HorizonDays:         7,
		RefreshInterval:     time.Minute,
	}
	rc := config.NewRuntimeConfig(cfg)
	analyzer := history.NewAnalyzer(source)
	orch := forecast.New(source, analyzer)
	attr := usage.NewAttributor(source)
	baseline := usage.Baseline{
		Rates:  map[string]map[core.Grade]float64{"descaler": {"A36": 2}},
		Prices: map[string]float64{"descaler": 1.5},
	}
	return NewCoordinator(rc, []core.LineConfig{testLine()}, source, orch, analyzer, attr, baseline, nil, 2)
}

func TestRefreshLineStoresSnapshot(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeHistorian{
		intervals: map[string][]timeseries.Interval{
			"hsm.grade": {
				{Value: "A36", Start: now.Add(-8 * time.Hour), End: now.Add(-2 * time.Hour)},
			},
		},
		samples: map[string][]core.Sample{
			"hsm.descaler.flow": {
				{Timestamp: now.Add(-7 * time.Hour), Value: 30},
				{Timestamp: now.Add(-6 * time.Hour), Value: 30},
			},
		},
	}
	c := testCoordinator(source)

	fired := false
	c.OnFirstPass(func() { fired = true })
	c.refreshLine(context.Background(), testLine())

	snap, ok := c.Snapshot("hsm")
	if !ok {
		t.Fatalf("expected snapshot to be stored")
	}
	if snap.RunID == "" {
		t.Fatalf("expected snapshot to carry a run id")
	}
	if snap.Forecast == nil {
		t.Fatalf("expected forecast result on the snapshot")
	}
	if got := snap.ActualUsage["descaler"]["A36"]; got != 60 {
		t.Fatalf("expected 60 kg actual usage, got %.1f", got)
	}
	if !fired {
		t.Fatalf("expected first-pass callback to fire")
	}
	if stats := c.Metrics().Line("hsm"); stats.Passes != 1 {
		t.Fatalf("expected 1 recorded pass, got %d", stats.Passes)
	}
}

func TestMergedUsageSumsActualAndForecast(t *testing.T) {
	now := time.Now().UTC()
	source := &fakeHistorian{
		intervals: map[string][]timeseries.Interval{
			"hsm.grade": {
				{Value: "A36", Start: now.Add(-4 * time.Hour), End: now.Add(-1 * time.Hour)},
			},
		},
		samples: map[string][]core.Sample{
			"hsm.descaler.flow": {
				{Timestamp: now.Add(-3 * time.Hour), Value: 10},
			},
		},
	}
	c := testCoordinator(source)
	c.refreshLine(context.Background(), testLine())

	snap, _ := c.Snapshot("hsm")
	actual := snap.ActualUsage["descaler"]["A36"]
	projected := snap.ForecastUsage["descaler"]["A36"]
	if got := snap.MergedUsage["descaler"]["A36"]; got != actual+projected {
		t.Fatalf("expected merged %.2f, got %.2f", actual+projected, got)
	}
	if got := snap.Cost["descaler"]["A36"]; got != (actual+projected)*1.5 {
		t.Fatalf("expected cost to multiply merged mass by price, got %.2f", got)
	}
}

func TestComputeForecastUnknownLine(t *testing.T) {
	c := testCoordinator(&fakeHistorian{})
	if _, err := c.ComputeForecast(context.Background(), "nope", time.Now(), time.Now().Add(24*time.Hour)); err == nil {
		t.Fatalf("expected error for unknown line")
	}
}

func TestComputeForecastRunsFromScratch(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := testCoordinator(&fakeHistorian{})

	result, err := c.ComputeForecast(context.Background(), "hsm", start, start.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("compute forecast: %v", err)
	}
	if result.Seeded != nil {
		t.Fatalf("expected on-demand forecast to run without seeded actuals")
	}
	if result.ScheduleStatus != forecast.PhaseSkipped {
		t.Fatalf("expected empty schedule to report skipped, got %s", result.ScheduleStatus)
	}
}
