package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/usage"
)

// lineFile is the on-disk shape of the per-line configuration table.
type lineFile struct {
	Lines []lineEntry `yaml:"lines"`
}

type lineEntry struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	Timezone      string             `yaml:"timezone"`
	Throughput    map[string]float64 `yaml:"throughput"`
	Aliases       map[string]string  `yaml:"aliases"`
	GradeRunTag   string             `yaml:"grade_run_tag"`
	CalendarTag   string             `yaml:"calendar_tag"`
	UsageSignals  map[string]string  `yaml:"usage_signals"`
	ScheduleFile  string             `yaml:"schedule_file"`
	DowntimeFile  string             `yaml:"downtime_file"`
	OverridesFile string             `yaml:"overrides_file"`
}

// LoadLines reads the production line table and resolves each line's
// timezone once, so every later computation works in one explicit location.
func LoadLines(path string) ([]core.LineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lines file: %w", err)
	}

	var file lineFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse lines file: %w", err)
	}
	if len(file.Lines) == 0 {
		return nil, fmt.Errorf("lines file %s defines no lines", path)
	}

	lines := make([]core.LineConfig, 0, len(file.Lines))
	for _, entry := range file.Lines {
		loc, err := time.LoadLocation(entry.Timezone)
		if err != nil {
			return nil, fmt.Errorf("line %s: unknown timezone %q: %w", entry.ID, entry.Timezone, err)
		}

		throughput := make(map[core.Grade]float64, len(entry.Throughput))
		for grade, tons := range entry.Throughput {
			throughput[core.Grade(grade)] = tons
		}
		aliases := make(map[string]core.Grade, len(entry.Aliases))
		for raw, grade := range entry.Aliases {
			aliases[raw] = core.Grade(grade)
		}

		line := core.LineConfig{
			ID:            entry.ID,
			Name:          entry.Name,
			Timezone:      entry.Timezone,
			Location:      loc,
			Throughput:    throughput,
			Aliases:       aliases,
			GradeRunTag:   entry.GradeRunTag,
			CalendarTag:   entry.CalendarTag,
			UsageSignals:  entry.UsageSignals,
			ScheduleFile:  entry.ScheduleFile,
			DowntimeFile:  entry.DowntimeFile,
			OverridesFile: entry.OverridesFile,
		}
		if err := line.Validate(); err != nil {
			return nil, fmt.Errorf("invalid line config: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// baselineFile is the on-disk shape of the chemical baseline/price table.
type baselineFile struct {
	Chemicals []chemicalEntry `yaml:"chemicals"`
}

type chemicalEntry struct {
	Name       string             `yaml:"name"`
	PricePerKg float64            `yaml:"price_per_kg"`
	KgPerTon   map[string]float64 `yaml:"kg_per_ton"`
}

// LoadBaseline reads the chemical baseline table into an immutable value
// handed to the usage attributor.
func LoadBaseline(path string) (usage.Baseline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return usage.Baseline{}, fmt.Errorf("failed to read baseline file: %w", err)
	}

	var file baselineFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return usage.Baseline{}, fmt.Errorf("failed to parse baseline file: %w", err)
	}

	baseline := usage.Baseline{
		Rates:  make(map[string]map[core.Grade]float64, len(file.Chemicals)),
		Prices: make(map[string]float64, len(file.Chemicals)),
	}
	for _, chem := range file.Chemicals {
		rates := make(map[core.Grade]float64, len(chem.KgPerTon))
		for grade, rate := range chem.KgPerTon {
			if rate < 0 {
				return usage.Baseline{}, fmt.Errorf("chemical %s: negative rate for grade %s", chem.Name, grade)
			}
			rates[core.Grade(grade)] = rate
		}
		baseline.Rates[chem.Name] = rates
		if chem.PricePerKg > 0 {
			baseline.Prices[chem.Name] = chem.PricePerKg
		}
	}
	return baseline, nil
}
