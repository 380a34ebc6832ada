// Package forecast simulates a production line's tonnage-by-grade output
// over a horizon: first from the explicit schedule, then, where the horizon
// allows, from the forward calendar stitched on via sequence alignment and
// filled with historical average tonnages.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/mill-forecaster/internal/align"
	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/downtime"
	"github.com/sebastiankruger/mill-forecaster/internal/history"
	"github.com/sebastiankruger/mill-forecaster/internal/timeseries"
)

// IntervalSource provides tagged condition intervals from the historian.
type IntervalSource interface {
	Intervals(ctx context.Context, tag string, from, to time.Time, tz string) ([]timeseries.Interval, error)
}

// Params are the calibration constants of one forecast pass. They are
// tunable because their values are domain calibration, not structure.
type Params struct {
	// AlignMinRatio is the fraction of the alignment target that must match
	// before a calendar alignment is trusted.
	AlignMinRatio float64 `json:"alignMinRatio"`
	// ShutdownCutoffHours separates annual-shutdown records from long
	// intra-day outages.
	ShutdownCutoffHours float64 `json:"shutdownCutoffHours"`
	// CalendarPadDays widens the calendar fetch window on both sides.
	CalendarPadDays int `json:"calendarPadDays"`
	// TrailingGrades is the length of the alignment target taken from the
	// tail of the explicit schedule.
	TrailingGrades int `json:"trailingGrades"`
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		AlignMinRatio:       0.5,
		ShutdownCutoffHours: 23.9,
		CalendarPadDays:     7,
		TrailingGrades:      3,
	}
}

// Request bundles the inputs of one forecast pass. All fields are read-only
// to the pass; accumulators are built fresh inside it.
type Request struct {
	Line     core.LineConfig
	Start    time.Time
	End      time.Time
	Schedule core.Schedule
	Downtime []downtime.Record

	// KnownActuals seeds the accumulator with already-realized tons and
	// switches the pass to "simulate forward from now": the clock starts at
	// max(Start, Now). Nil forces a from-scratch simulation starting at
	// Start.
	KnownActuals core.Tonnage

	// Now anchors the forward-simulation start. Zero means wall clock.
	Now time.Time

	// Norm overrides the normalizer; nil builds one from the line aliases.
	Norm *core.Normalizer

	Params Params
}

// PhaseStatus records how a forecast phase ended.
type PhaseStatus string

const (
	// PhaseComplete means the phase ran over all its input.
	PhaseComplete PhaseStatus = "COMPLETE"
	// PhaseSkipped means the phase had nothing to do.
	PhaseSkipped PhaseStatus = "SKIPPED"
	// PhaseDegraded means external data was unavailable and the phase kept
	// whatever had been produced so far.
	PhaseDegraded PhaseStatus = "DEGRADED"
)

// Result is the structured outcome of one pass. The pass is total: every
// defined input yields a Result; degradation shows up in phase statuses and
// warnings, never as an error or a crash.
type Result struct {
	RunID       string    `json:"runId"`
	LineID      string    `json:"lineId"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generatedAt"`

	// Tons is the full accumulator: seeded actuals plus both phases.
	Tons core.Tonnage `json:"tons"`
	// Seeded is the knownActuals portion carried into Tons.
	Seeded core.Tonnage `json:"seeded,omitempty"`
	// Scheduled is what the explicit schedule produced.
	Scheduled core.Tonnage `json:"scheduled"`
	// Continuation is what the calendar continuation produced.
	Continuation core.Tonnage `json:"continuation"`

	ScheduleStatus     PhaseStatus `json:"scheduleStatus"`
	ContinuationStatus PhaseStatus `json:"continuationStatus"`
	Warnings           []string    `json:"warnings,omitempty"`

	// Clock is the simulation position after the last allocation.
	Clock Clock `json:"clock"`
}

// Projected returns the simulated portion of the accumulator, without the
// seeded actuals. Usage forecasting applies baselines to this.
func (r *Result) Projected() core.Tonnage {
	out := core.NewTonnage()
	out.Merge(r.Scheduled)
	out.Merge(r.Continuation)
	return out
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Orchestrator sequences the day allocator over the explicit schedule and
// the calendar continuation.
type Orchestrator struct {
	source   IntervalSource
	analyzer *history.Analyzer
}

// New creates an orchestrator over the given historian source and analyzer.
func New(source IntervalSource, analyzer *history.Analyzer) *Orchestrator {
	return &Orchestrator{source: source, analyzer: analyzer}
}

// Forecast runs one pass over [req.Start, req.End]. It always returns a
// Result; external failures degrade the continuation phase and leave the
// schedule phase output intact.
func (o *Orchestrator) Forecast(ctx context.Context, req Request) *Result {
	if (req.Params == Params{}) {
		req.Params = DefaultParams()
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	norm := req.Norm
	if norm == nil {
		norm = core.NewNormalizer(req.Line.Aliases)
	}
	if req.Line.Location != nil {
		req.Start = req.Start.In(req.Line.Location)
		req.End = req.End.In(req.Line.Location)
		req.Now = req.Now.In(req.Line.Location)
	}

	res := &Result{
		RunID:              uuid.NewString(),
		LineID:             req.Line.ID,
		Start:              req.Start,
		End:                req.End,
		GeneratedAt:        time.Now().UTC(),
		Tons:               core.NewTonnage(),
		Scheduled:          core.NewTonnage(),
		Continuation:       core.NewTonnage(),
		ScheduleStatus:     PhaseComplete,
		ContinuationStatus: PhaseComplete,
	}

	cal := downtime.NewCalendar(req.Downtime, req.Params.ShutdownCutoffHours)
	horizon := core.DayKey(req.End)
	shutdown := cal.ShutdownDays(req.Start, req.End)
	alloc := NewAllocator(req.Line, cal, shutdown, horizon)

	simStart := req.Start
	if req.KnownActuals != nil {
		res.Seeded = req.KnownActuals.Clone()
		res.Tons.Merge(req.KnownActuals)
		if req.Now.After(simStart) {
			simStart = req.Now
		}
	}
	clock := alloc.StartClock(simStart)

	// Phase 1: consume the explicit schedule in order.
	if len(req.Schedule) == 0 {
		res.ScheduleStatus = PhaseSkipped
	}
	var lastProduced core.Grade
	var scheduleGrades []core.Grade
	for i, entry := range req.Schedule {
		grade, ok := norm.Normalize(string(entry.Grade))
		if !ok {
			res.warnf("schedule entry %d: label %q is not a grade, skipped", i, entry.Grade)
			continue
		}
		scheduleGrades = append(scheduleGrades, grade)
		if alloc.PastHorizon(clock) {
			res.warnf("horizon reached with %d schedule entries unconsumed", len(req.Schedule)-i)
			break
		}
		if req.Line.ThroughputFor(grade) <= 0 {
			res.warnf("no throughput for grade %s, schedule entry skipped", grade)
			continue
		}
		var produced float64
		clock, produced = alloc.Allocate(clock, grade, entry.Tons)
		if produced > 0 {
			res.Scheduled.Add(grade, produced)
			res.Tons.Add(grade, produced)
			lastProduced = grade
		}
	}

	// Phase 2: extend past the schedule while the horizon allows.
	if alloc.PastHorizon(clock) {
		res.ContinuationStatus = PhaseSkipped
		res.Clock = clock
		return res
	}
	res.Clock = o.continuation(ctx, req, norm, alloc, clock, scheduleGrades, lastProduced, res)

	log.Debug().
		Str("line", req.Line.ID).
		Str("runId", res.RunID).
		Float64("tons", res.Tons.Total()).
		Str("continuation", string(res.ContinuationStatus)).
		Msg("Forecast pass finished")
	return res
}

// continuation stitches the forward calendar onto the realized schedule and
// allocates historical average tonnage for the grades that follow. Any
// calendar or history failure leaves the phase degraded and the phase-1
// output untouched.
func (o *Orchestrator) continuation(ctx context.Context, req Request, norm *core.Normalizer, alloc *Allocator, clock Clock, scheduleGrades []core.Grade, lastProduced core.Grade, res *Result) Clock {
	from := req.Start.AddDate(0, 0, -req.Params.CalendarPadDays)
	to := req.End.AddDate(0, 0, req.Params.CalendarPadDays)
	intervals, err := o.source.Intervals(ctx, req.Line.CalendarTag, from, to, req.Line.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("line", req.Line.ID).Str("runId", res.RunID).
			Msg("Calendar fetch failed - continuation skipped")
		res.ContinuationStatus = PhaseDegraded
		res.warnf("calendar unavailable: %v", err)
		return clock
	}

	runs := make([]core.GradeRun, 0, len(intervals))
	sequence := make([]core.Grade, 0, len(intervals))
	for _, iv := range intervals {
		grade, ok := norm.Normalize(iv.Value)
		if !ok {
			continue
		}
		runs = append(runs, core.GradeRun{Grade: grade, Start: iv.Start, End: iv.End})
		sequence = append(sequence, grade)
	}
	if len(sequence) == 0 {
		res.ContinuationStatus = PhaseDegraded
		res.warnf("calendar window empty")
		return clock
	}

	target := trailing(scheduleGrades, req.Params.TrailingGrades)
	var continuation []core.Grade
	if offset := align.BestOffset(target, sequence, req.Params.AlignMinRatio); offset != align.NotFound {
		continuation = sequence[offset+len(target):]
	} else {
		// Weak or missing alignment: resume at the first calendar run still
		// open at the handoff instant, dropping a leading repeat of the
		// grade already in progress.
		handoff := clock.Instant(req.Line.Location)
		for i, run := range runs {
			if run.End.After(handoff) {
				continuation = sequence[i:]
				break
			}
		}
		if len(continuation) > 0 && lastProduced != "" && continuation[0] == lastProduced {
			continuation = continuation[1:]
		}
	}
	if len(continuation) == 0 {
		res.warnf("no calendar grades past handoff")
		return clock
	}

	stats, err := o.analyzer.Analyze(ctx, req.Start.AddDate(-1, 0, 0), req.Start, req.Line, norm)
	if err != nil {
		log.Warn().Err(err).Str("line", req.Line.ID).Str("runId", res.RunID).
			Msg("Historical averages unavailable - continuation skipped")
		res.ContinuationStatus = PhaseDegraded
		res.warnf("historical averages unavailable: %v", err)
		return clock
	}

	for _, grade := range continuation {
		if alloc.PastHorizon(clock) {
			break
		}
		avg := stats.AvgTons[grade]
		if avg <= 0 || req.Line.ThroughputFor(grade) <= 0 {
			continue
		}
		var produced float64
		clock, produced = alloc.Allocate(clock, grade, avg)
		if produced > 0 {
			res.Continuation.Add(grade, produced)
			res.Tons.Add(grade, produced)
		}
	}
	return clock
}

func trailing(grades []core.Grade, n int) []core.Grade {
	if n > len(grades) {
		n = len(grades)
	}
	return grades[len(grades)-n:]
}
