// Package refresh drives the periodic per-line forecast and attribution
// passes, caches the latest snapshot per line and pushes headline values to
// the publication surfaces.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/mill-forecaster/internal/config"
	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/downtime"
	"github.com/sebastiankruger/mill-forecaster/internal/forecast"
	"github.com/sebastiankruger/mill-forecaster/internal/history"
	"github.com/sebastiankruger/mill-forecaster/internal/ingest"
	"github.com/sebastiankruger/mill-forecaster/internal/opcua"
	"github.com/sebastiankruger/mill-forecaster/internal/timeseries"
	"github.com/sebastiankruger/mill-forecaster/internal/usage"
)

// IntervalSource provides tagged condition intervals from the historian.
type IntervalSource interface {
	Intervals(ctx context.Context, tag string, from, to time.Time, tz string) ([]timeseries.Interval, error)
}

// SnapshotPublisher streams finished snapshots to an external topic.
type SnapshotPublisher interface {
	Publish(ctx context.Context, lineID string, snapshot interface{}) error
}

// Snapshot is the cached outcome of one refresh pass for one line.
type Snapshot struct {
	LineID      string    `json:"lineId"`
	RunID       string    `json:"runId"`
	GeneratedAt time.Time `json:"generatedAt"`
	PeriodStart time.Time `json:"periodStart"`
	Horizon     time.Time `json:"horizon"`

	Forecast *forecast.Result `json:"forecast"`

	ActualUsage   usage.Attribution `json:"actualUsage"`
	ForecastUsage usage.Attribution `json:"forecastUsage"`
	MergedUsage   usage.Attribution `json:"mergedUsage"`
	Cost          usage.Attribution `json:"cost"`

	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Degraded reports whether any external source was unavailable during the
// pass.
func (s *Snapshot) Degraded() bool {
	if s.Forecast != nil && s.Forecast.ContinuationStatus == forecast.PhaseDegraded {
		return true
	}
	return len(s.Warnings) > 0
}

// Coordinator owns the per-line pass lifecycle. Passes for different lines
// share nothing but read-only configuration, so they run in parallel on a
// bounded worker pool.
type Coordinator struct {
	rc       *config.RuntimeConfig
	lines    []core.LineConfig
	source   IntervalSource
	orch     *forecast.Orchestrator
	analyzer *history.Analyzer
	attr     *usage.Attributor
	baseline usage.Baseline

	opcuaServer *opcua.Server
	publisher   SnapshotPublisher
	pool        *workerpool.WorkerPool

	nsByLine map[string]uint16
	metrics  *PassMetrics

	firstPass   sync.Once
	onFirstPass func()

	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewCoordinator wires a coordinator over the given components. publisher
// may be nil to disable streaming; the OPC UA server is attached separately
// via SetupOPCUA.
func NewCoordinator(rc *config.RuntimeConfig, lines []core.LineConfig, source IntervalSource,
	orch *forecast.Orchestrator, analyzer *history.Analyzer, attr *usage.Attributor,
	baseline usage.Baseline, publisher SnapshotPublisher, workers int) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		rc:        rc,
		lines:     lines,
		source:    source,
		orch:      orch,
		analyzer:  analyzer,
		attr:      attr,
		baseline:  baseline,
		publisher: publisher,
		pool:      workerpool.New(workers),
		nsByLine:  make(map[string]uint16),
		metrics:   NewPassMetrics(),
		snapshots: make(map[string]*Snapshot),
	}
}

// Lines returns the configured lines.
func (c *Coordinator) Lines() []core.LineConfig {
	return c.lines
}

// LineByID finds a configured line.
func (c *Coordinator) LineByID(id string) (core.LineConfig, bool) {
	for _, line := range c.lines {
		if line.ID == id {
			return line, true
		}
	}
	return core.LineConfig{}, false
}

// RuntimeConfig exposes the tunable parameters for the API surface.
func (c *Coordinator) RuntimeConfig() *config.RuntimeConfig {
	return c.rc
}

// Metrics exposes the pass counters.
func (c *Coordinator) Metrics() *PassMetrics {
	return c.metrics
}

// OnFirstPass registers a callback fired once, after the first pass of any
// line finishes. Used to flip the readiness probe.
func (c *Coordinator) OnFirstPass(fn func()) {
	c.onFirstPass = fn
}

// Snapshot returns the latest cached snapshot for a line.
func (c *Coordinator) Snapshot(lineID string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[lineID]
	return snap, ok
}

// SetupOPCUA registers one namespace per line on the server, starting at
// namespace index 2, and keeps the index mapping for later value updates.
func (c *Coordinator) SetupOPCUA(server *opcua.Server) error {
	for i, line := range c.lines {
		nsIndex := uint16(2 + i)
		if err := server.RegisterNamespace(nsIndex, line.ID, line.Name+" tonnage forecast", headlineNodes(line)); err != nil {
			return fmt.Errorf("failed to register namespace for line %s: %w", line.ID, err)
		}
		c.nsByLine[line.ID] = nsIndex
	}
	c.opcuaServer = server
	return nil
}

// Run refreshes all lines once at startup, then on every tick of the
// runtime-tunable interval until the context ends.
func (c *Coordinator) Run(ctx context.Context) {
	c.RefreshAll(ctx)

	ticker := time.NewTicker(c.rc.GetRefreshInterval())
	defer ticker.Stop()

	log.Info().
		Dur("interval", c.rc.GetRefreshInterval()).
		Int("lines", len(c.lines)).
		Msg("Starting refresh loop")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Refresh loop stopping")
			c.pool.StopWait()
			return
		case <-ticker.C:
			c.RefreshAll(ctx)
			ticker.Reset(c.rc.GetRefreshInterval())
		}
	}
}

// RefreshAll submits one pass per line to the worker pool.
func (c *Coordinator) RefreshAll(ctx context.Context) {
	for _, line := range c.lines {
		line := line
		c.pool.Submit(func() {
			c.refreshLine(ctx, line)
		})
	}
}

// refreshLine runs the full pass for one line: forecast, actual and
// forecast usage, merge and cost, then stores and publishes the snapshot.
// The pass is total; anything unavailable degrades to empty with a warning.
func (c *Coordinator) refreshLine(ctx context.Context, line core.LineConfig) {
	started := time.Now()
	now := started.In(line.Location)
	snap := &Snapshot{
		LineID:      line.ID,
		GeneratedAt: started.UTC(),
	}

	rcSnap := c.rc.Snapshot()
	periodStart := startOfMonth(now)
	horizon := core.DayKey(now).AddDate(0, 0, rcSnap.HorizonDays)
	snap.PeriodStart = periodStart
	snap.Horizon = horizon

	schedule, dtRecords, overrides := c.loadTables(line, snap)

	params := forecast.DefaultParams()
	params.AlignMinRatio = rcSnap.AlignMinRatio
	params.ShutdownCutoffHours = rcSnap.ShutdownCutoffHours

	result := c.orch.Forecast(ctx, forecast.Request{
		Line:         line,
		Start:        periodStart,
		End:          horizon,
		Schedule:     schedule,
		Downtime:     dtRecords,
		KnownActuals: overrides,
		Now:          now,
		Params:       params,
	})
	snap.Forecast = result
	snap.RunID = result.RunID

	runs := c.actualRuns(ctx, line, periodStart, now, snap)
	actualUsage, usageWarnings := c.attr.Actual(ctx, line, runs, periodStart, now)
	snap.Warnings = append(snap.Warnings, usageWarnings...)

	snap.ActualUsage = actualUsage
	snap.ForecastUsage = usage.Forecast(result.Projected(), c.baseline)
	snap.MergedUsage = usage.NewAttribution()
	snap.MergedUsage.Merge(snap.ActualUsage)
	snap.MergedUsage.Merge(snap.ForecastUsage)
	snap.Cost = usage.Cost(snap.MergedUsage, c.baseline)
	snap.Duration = time.Since(started)

	c.mu.Lock()
	c.snapshots[line.ID] = snap
	c.mu.Unlock()
	c.metrics.Record(line.ID, snap.Duration, snap.Degraded())
	if c.onFirstPass != nil {
		c.firstPass.Do(c.onFirstPass)
	}

	if c.opcuaServer != nil {
		if nsIndex, ok := c.nsByLine[line.ID]; ok {
			c.opcuaServer.UpdateNamespaceValues(nsIndex, headlineValues(snap, rcSnap.HorizonDays))
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, line.ID, snap); err != nil {
			log.Warn().Err(err).Str("line", line.ID).Msg("Snapshot publish failed")
		}
	}

	log.Info().
		Str("line", line.ID).
		Str("runId", snap.RunID).
		Float64("tons", result.Tons.Total()).
		Dur("duration", snap.Duration).
		Bool("degraded", snap.Degraded()).
		Msg("Refresh pass finished")
}

// loadTables pulls the external tables the line references. A missing or
// unreadable table degrades to its empty value; the pass still runs.
func (c *Coordinator) loadTables(line core.LineConfig, snap *Snapshot) (core.Schedule, []downtime.Record, core.Tonnage) {
	var schedule core.Schedule
	if line.ScheduleFile != "" {
		loaded, err := ingest.LoadSchedule(line.ScheduleFile)
		if err != nil {
			log.Warn().Err(err).Str("line", line.ID).Msg("Schedule table unavailable")
			snap.Warnings = append(snap.Warnings, "schedule table unavailable")
		} else {
			schedule = loaded
		}
	}

	var records []downtime.Record
	if line.DowntimeFile != "" {
		loaded, err := ingest.LoadDowntime(line.DowntimeFile)
		if err != nil {
			log.Warn().Err(err).Str("line", line.ID).Msg("Downtime table unavailable")
			snap.Warnings = append(snap.Warnings, "downtime table unavailable")
		} else {
			records = loaded
		}
	}

	var overrides core.Tonnage
	if line.OverridesFile != "" {
		loaded, err := ingest.LoadOverrides(line.OverridesFile)
		if err != nil {
			log.Warn().Err(err).Str("line", line.ID).Msg("Override table unavailable")
			snap.Warnings = append(snap.Warnings, "override table unavailable")
		} else {
			overrides = loaded
		}
	}
	return schedule, records, overrides
}

// actualRuns fetches and normalizes the line's realized grade runs over the
// attribution window.
func (c *Coordinator) actualRuns(ctx context.Context, line core.LineConfig, from, to time.Time, snap *Snapshot) []core.GradeRun {
	intervals, err := c.source.Intervals(ctx, line.GradeRunTag, from, to, line.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("line", line.ID).Msg("Grade runs unavailable - actual usage skipped")
		snap.Warnings = append(snap.Warnings, "grade runs unavailable")
		return nil
	}

	norm := core.NewNormalizer(line.Aliases)
	runs := make([]core.GradeRun, 0, len(intervals))
	for _, iv := range intervals {
		grade, ok := norm.Normalize(iv.Value)
		if !ok {
			continue
		}
		runs = append(runs, core.GradeRun{Grade: grade, Start: iv.Start, End: iv.End})
	}
	return runs
}

// ComputeForecast runs an on-demand from-scratch forecast over an explicit
// window, bypassing the cache. Used by the API's ?start=&end= path.
func (c *Coordinator) ComputeForecast(ctx context.Context, lineID string, start, end time.Time) (*forecast.Result, error) {
	line, ok := c.LineByID(lineID)
	if !ok {
		return nil, fmt.Errorf("unknown line %s", lineID)
	}

	snap := &Snapshot{LineID: line.ID}
	schedule, dtRecords, _ := c.loadTables(line, snap)

	rcSnap := c.rc.Snapshot()
	params := forecast.DefaultParams()
	params.AlignMinRatio = rcSnap.AlignMinRatio
	params.ShutdownCutoffHours = rcSnap.ShutdownCutoffHours

	result := c.orch.Forecast(ctx, forecast.Request{
		Line:     line,
		Start:    start,
		End:      end,
		Schedule: schedule,
		Downtime: dtRecords,
		Params:   params,
	})
	result.Warnings = append(result.Warnings, snap.Warnings...)
	return result, nil
}

// History runs the pattern analyzer for a line over an explicit window.
func (c *Coordinator) History(ctx context.Context, lineID string, from, to time.Time) (*history.Stats, error) {
	line, ok := c.LineByID(lineID)
	if !ok {
		return nil, fmt.Errorf("unknown line %s", lineID)
	}
	return c.analyzer.Analyze(ctx, from, to, line, core.NewNormalizer(line.Aliases))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
