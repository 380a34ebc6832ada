package core

import (
	"fmt"
	"sort"
	"time"
)

// Grade is a canonical product code a production line runs.
type Grade string

// Tonnage accumulates tons per grade. Entries only ever grow during a pass;
// repeated contributions for the same grade sum.
type Tonnage map[Grade]float64

// NewTonnage creates an empty accumulator.
func NewTonnage() Tonnage {
	return make(Tonnage)
}

// Add accumulates tons for a grade. Zero and negative amounts are ignored.
func (t Tonnage) Add(grade Grade, tons float64) {
	if tons <= 0 {
		return
	}
	t[grade] += tons
}

// Merge adds every entry of other into t.
func (t Tonnage) Merge(other Tonnage) {
	for grade, tons := range other {
		t.Add(grade, tons)
	}
}

// Clone returns an independent copy of the accumulator.
func (t Tonnage) Clone() Tonnage {
	out := make(Tonnage, len(t))
	for grade, tons := range t {
		out[grade] = tons
	}
	return out
}

// Total returns the sum over all grades.
func (t Tonnage) Total() float64 {
	var sum float64
	for _, tons := range t {
		sum += tons
	}
	return sum
}

// Top returns the grade carrying the most tons. Ties resolve to the
// lexicographically smallest grade so the result is stable.
func (t Tonnage) Top() (Grade, float64) {
	grades := make([]Grade, 0, len(t))
	for grade := range t {
		grades = append(grades, grade)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i] < grades[j] })

	var best Grade
	var bestTons float64
	for _, grade := range grades {
		if t[grade] > bestTons {
			best = grade
			bestTons = t[grade]
		}
	}
	return best, bestTons
}

// GradeRun is a half-open interval [Start, End) during which a line ran one
// grade. Runs come from telemetry (actual) or from the forward production
// calendar (planned) and are treated as read-only snapshots.
type GradeRun struct {
	Grade Grade     `json:"grade"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours returns the run length in hours, 0 for inverted intervals.
func (r GradeRun) Hours() float64 {
	h := r.End.Sub(r.Start).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Sample is one point of a regularly sampled usage signal.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ScheduleEntry is one planned production run: make Tons of Grade.
type ScheduleEntry struct {
	Grade Grade   `json:"grade"`
	Tons  float64 `json:"tons"`
}

// Schedule is the ordered production queue, consumed strictly front to back.
type Schedule []ScheduleEntry

// LineConfig identifies one production line. It is built once at startup
// and passed around read-only; passes never mutate it.
type LineConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Time handling: timestamps for this line are converted into Location
	// once at ingestion and stay there.
	Timezone string         `json:"timezone"`
	Location *time.Location `json:"-"`

	// Tons producible per 24 continuous hours, by grade. A grade absent
	// from the table has throughput 0 and never receives allocated time.
	Throughput map[Grade]float64 `json:"throughput"`

	// Raw label to canonical grade mapping, applied by the normalizer.
	Aliases map[string]Grade `json:"aliases,omitempty"`

	// Historian identifiers.
	GradeRunTag  string            `json:"gradeRunTag"`
	CalendarTag  string            `json:"calendarTag"`
	UsageSignals map[string]string `json:"usageSignals,omitempty"`

	// Externally maintained table files.
	ScheduleFile  string `json:"scheduleFile,omitempty"`
	DowntimeFile  string `json:"downtimeFile,omitempty"`
	OverridesFile string `json:"overridesFile,omitempty"`
}

// ThroughputFor returns the daily tonnage capacity for a grade, 0 when the
// grade is missing from the table or carries a non-positive value.
func (lc LineConfig) ThroughputFor(grade Grade) float64 {
	tput, ok := lc.Throughput[grade]
	if !ok || tput < 0 {
		return 0
	}
	return tput
}

// Validate checks the invariants a line config must hold before use.
func (lc LineConfig) Validate() error {
	if lc.ID == "" {
		return fmt.Errorf("line config missing id")
	}
	if lc.Location == nil {
		return fmt.Errorf("line %s: timezone not resolved", lc.ID)
	}
	for grade, tput := range lc.Throughput {
		if tput < 0 {
			return fmt.Errorf("line %s: negative throughput %.2f for grade %s", lc.ID, tput, grade)
		}
	}
	return nil
}

// DayKey normalizes a timestamp to its civil day, dropping time of day and
// zone offset. Days from different sources compare equal when they name the
// same calendar date.
func DayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
