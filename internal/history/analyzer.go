// Package history derives per-grade statistics from past production
// intervals: average run tonnage and grade-to-grade transition frequencies.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/timeseries"
)

// ErrNoData marks a window with no usable production intervals. Callers
// treat it as "no historical data available", not as a fault.
var ErrNoData = errors.New("no production intervals in window")

// IntervalSource provides tagged condition intervals from the historian.
type IntervalSource interface {
	Intervals(ctx context.Context, tag string, from, to time.Time, tz string) ([]timeseries.Interval, error)
}

// Stats is the analyzer output over one window.
type Stats struct {
	// AvgTons is the mean tonnage of a single production run, by grade.
	AvgTons map[core.Grade]float64
	// Transitions is the row-normalized frequency of moving from one grade
	// to the next across consecutive non-repeating runs.
	Transitions map[core.Grade]map[core.Grade]float64
	// Runs is the number of intervals that contributed.
	Runs int
}

// Analyzer computes Stats from actual grade runs pulled over a window.
type Analyzer struct {
	source IntervalSource
}

// NewAnalyzer creates an analyzer over the given interval source.
func NewAnalyzer(source IntervalSource) *Analyzer {
	return &Analyzer{source: source}
}

// Analyze pulls the line's grade runs over [start, end), converts run
// durations to tons via the throughput table and averages by grade. A fetch
// failure or an empty window returns an error (ErrNoData for the latter);
// either way there are no partial results.
func (a *Analyzer) Analyze(ctx context.Context, start, end time.Time, line core.LineConfig, norm *core.Normalizer) (*Stats, error) {
	intervals, err := a.source.Intervals(ctx, line.GradeRunTag, start, end, line.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grade runs for line %s: %w", line.ID, err)
	}

	sums := make(map[core.Grade]float64)
	counts := make(map[core.Grade]int)
	var sequence []core.Grade
	runs := 0

	for _, iv := range intervals {
		grade, ok := norm.Normalize(iv.Value)
		if !ok {
			continue
		}
		hours := iv.End.Sub(iv.Start).Hours()
		if hours <= 0 {
			continue
		}
		tons := hours / 24 * line.ThroughputFor(grade)
		sums[grade] += tons
		counts[grade]++
		sequence = append(sequence, grade)
		runs++
	}

	if runs == 0 {
		return nil, fmt.Errorf("line %s %s to %s: %w",
			line.ID, start.Format("2006-01-02"), end.Format("2006-01-02"), ErrNoData)
	}

	avg := make(map[core.Grade]float64, len(sums))
	for grade, sum := range sums {
		avg[grade] = sum / float64(counts[grade])
	}

	return &Stats{
		AvgTons:     avg,
		Transitions: transitionFrequencies(sequence),
		Runs:        runs,
	}, nil
}

// transitionFrequencies counts grade changes across the ordered run sequence
// and normalizes each row to sum to 1. Back-to-back runs of the same grade
// do not count as a transition.
func transitionFrequencies(sequence []core.Grade) map[core.Grade]map[core.Grade]float64 {
	counts := make(map[core.Grade]map[core.Grade]int)
	totals := make(map[core.Grade]int)
	for i := 1; i < len(sequence); i++ {
		from, to := sequence[i-1], sequence[i]
		if from == to {
			continue
		}
		if counts[from] == nil {
			counts[from] = make(map[core.Grade]int)
		}
		counts[from][to]++
		totals[from]++
	}

	out := make(map[core.Grade]map[core.Grade]float64, len(counts))
	for from, row := range counts {
		out[from] = make(map[core.Grade]float64, len(row))
		for to, n := range row {
			out[from][to] = float64(n) / float64(totals[from])
		}
	}
	return out
}
