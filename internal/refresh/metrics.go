package refresh

import (
	"sync"
	"time"
)

// LinePassStats are the counters kept per line across refresh passes.
type LinePassStats struct {
	Passes       int           `json:"passes"`
	Degraded     int           `json:"degraded"`
	LastDuration time.Duration `json:"lastDuration"`
	LastFinished time.Time     `json:"lastFinished"`
}

// PassMetrics aggregates refresh-pass counters across all lines.
type PassMetrics struct {
	mu        sync.RWMutex
	startTime time.Time
	byLine    map[string]LinePassStats
}

// NewPassMetrics creates an empty metrics collector.
func NewPassMetrics() *PassMetrics {
	return &PassMetrics{
		startTime: time.Now(),
		byLine:    make(map[string]LinePassStats),
	}
}

// Record counts one finished pass for a line.
func (m *PassMetrics) Record(lineID string, duration time.Duration, degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.byLine[lineID]
	stats.Passes++
	if degraded {
		stats.Degraded++
	}
	stats.LastDuration = duration
	stats.LastFinished = time.Now().UTC()
	m.byLine[lineID] = stats
}

// Line returns the counters for one line.
func (m *PassMetrics) Line(lineID string) LinePassStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byLine[lineID]
}

// Uptime returns the time since the collector was created.
func (m *PassMetrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// TotalPasses returns the pass count summed over all lines.
func (m *PassMetrics) TotalPasses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, stats := range m.byLine {
		total += stats.Passes
	}
	return total
}
