// Package usage attributes consumable-chemical consumption to product
// grades: actual consumption by intersecting usage telemetry with grade-run
// intervals, forecast consumption by applying baseline rates to projected
// tons.
package usage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
)

// Baseline holds the configured consumption rates and prices. It is loaded
// once at startup and never mutated during a pass.
type Baseline struct {
	// Rates maps chemical name to kg consumed per ton produced, by grade.
	Rates map[string]map[core.Grade]float64
	// Prices maps chemical name to price per kg.
	Prices map[string]float64
}

// RateFor returns the kg-per-ton rate of a chemical on a grade, 0 when no
// baseline exists for the pair.
func (b Baseline) RateFor(chemical string, grade core.Grade) float64 {
	rates, ok := b.Rates[chemical]
	if !ok {
		return 0
	}
	return rates[grade]
}

// Attribution maps chemical to grade to an accumulated quantity (kg, or
// currency once costed). Contributions only ever add; repeated entries for
// the same pair sum.
type Attribution map[string]map[core.Grade]float64

// NewAttribution creates an empty attribution.
func NewAttribution() Attribution {
	return make(Attribution)
}

// Add accumulates a quantity for a (chemical, grade) pair. Zero and negative
// amounts are ignored.
func (a Attribution) Add(chemical string, grade core.Grade, qty float64) {
	if qty <= 0 {
		return
	}
	row, ok := a[chemical]
	if !ok {
		row = make(map[core.Grade]float64)
		a[chemical] = row
	}
	row[grade] += qty
}

// Merge adds every entry of other into a.
func (a Attribution) Merge(other Attribution) {
	for chemical, row := range other {
		for grade, qty := range row {
			a.Add(chemical, grade, qty)
		}
	}
}

// Total returns the sum over all grades for one chemical.
func (a Attribution) Total(chemical string) float64 {
	var sum float64
	for _, qty := range a[chemical] {
		sum += qty
	}
	return sum
}

// GrandTotal returns the sum over all chemicals and grades.
func (a Attribution) GrandTotal() float64 {
	var sum float64
	for chemical := range a {
		sum += a.Total(chemical)
	}
	return sum
}

// Actual attributes sampled consumption to grades: for each grade run, the
// samples falling inside [Start, End) are summed onto the run's grade. Runs
// are processed independently, so overlapping or repeated runs of one grade
// accumulate rather than overwrite.
func Actual(runs []core.GradeRun, samples map[string][]core.Sample) Attribution {
	out := NewAttribution()
	for chemical, series := range samples {
		for _, run := range runs {
			var sum float64
			for _, s := range series {
				if s.Timestamp.Before(run.Start) || !s.Timestamp.Before(run.End) {
					continue
				}
				sum += s.Value
			}
			out.Add(chemical, run.Grade, sum)
		}
	}
	return out
}

// Forecast projects consumption from forecast tons: tons of each grade times
// the chemical's baseline rate for that grade. Grades without a baseline
// contribute nothing.
func Forecast(tons core.Tonnage, baseline Baseline) Attribution {
	out := NewAttribution()
	for chemical := range baseline.Rates {
		for grade, t := range tons {
			out.Add(chemical, grade, t*baseline.RateFor(chemical, grade))
		}
	}
	return out
}

// Cost converts a mass attribution into currency using the baseline price
// table. Chemicals without a price contribute nothing.
func Cost(a Attribution, baseline Baseline) Attribution {
	out := NewAttribution()
	for chemical, row := range a {
		price, ok := baseline.Prices[chemical]
		if !ok || price <= 0 {
			continue
		}
		for grade, mass := range row {
			out.Add(chemical, grade, mass*price)
		}
	}
	return out
}

// SeriesSource provides sampled usage signals from the historian.
type SeriesSource interface {
	Series(ctx context.Context, signal string, from, to time.Time, tz string) ([]core.Sample, error)
}

// Attributor fetches usage telemetry and runs the actual-side attribution
// for one line.
type Attributor struct {
	source SeriesSource
}

// NewAttributor creates an attributor over the given series source.
func NewAttributor(source SeriesSource) *Attributor {
	return &Attributor{source: source}
}

// Actual fetches each configured usage signal of the line over [from, to)
// and attributes it against the given grade runs. A signal that cannot be
// fetched is skipped and reported in the returned warnings; the remaining
// chemicals still attribute.
func (a *Attributor) Actual(ctx context.Context, line core.LineConfig, runs []core.GradeRun, from, to time.Time) (Attribution, []string) {
	samples := make(map[string][]core.Sample, len(line.UsageSignals))
	var warnings []string
	for chemical, signal := range line.UsageSignals {
		series, err := a.source.Series(ctx, signal, from, to, line.Timezone)
		if err != nil {
			log.Warn().Err(err).
				Str("line", line.ID).
				Str("chemical", chemical).
				Str("signal", signal).
				Msg("Usage signal unavailable - chemical skipped")
			warnings = append(warnings, "usage signal "+signal+" unavailable")
			continue
		}
		samples[chemical] = series
	}
	return Actual(runs, samples), warnings
}
