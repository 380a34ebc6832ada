package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadLinesResolvesTimezone(t *testing.T) {
	path := writeTemp(t, "lines.yaml", `
lines:
  - id: hsm
    name: Hot Strip Mill
    timezone: Europe/Berlin
    throughput:
      A36: 900
      S355: 750
    aliases:
      "A-36": A36
    grade_run_tag: hsm.grade
    calendar_tag: hsm.calendar
    usage_signals:
      descaler: hsm.descaler.flow
`)

	lines, err := LoadLines(path)
	if err != nil {
		t.Fatalf("load lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	line := lines[0]
	if line.Location == nil || line.Location.String() != "Europe/Berlin" {
		t.Fatalf("expected resolved Berlin location, got %v", line.Location)
	}
	if got := line.ThroughputFor("A36"); got != 900 {
		t.Fatalf("expected throughput 900 for A36, got %.0f", got)
	}
	if got := line.Aliases["A-36"]; got != "A36" {
		t.Fatalf("expected alias mapping, got %q", got)
	}
}

func TestLoadLinesRejectsUnknownTimezone(t *testing.T) {
	path := writeTemp(t, "lines.yaml", `
lines:
  - id: hsm
    timezone: Mars/Olympus
`)

	if _, err := LoadLines(path); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestLoadBaselineTables(t *testing.T) {
	path := writeTemp(t, "baselines.yaml", `
chemicals:
  - name: descaler
    price_per_kg: 1.4
    kg_per_ton:
      A36: 2.5
      S355: 3.1
  - name: lubricant
    kg_per_ton:
      A36: 0.2
`)

	baseline, err := LoadBaseline(path)
	if err != nil {
		t.Fatalf("load baseline: %v", err)
	}
	if got := baseline.RateFor("descaler", "S355"); got != 3.1 {
		t.Fatalf("expected rate 3.1, got %.2f", got)
	}
	if got := baseline.RateFor("descaler", "DD11"); got != 0 {
		t.Fatalf("expected missing grade to rate 0, got %.2f", got)
	}
	if _, ok := baseline.Prices["lubricant"]; ok {
		t.Fatalf("expected unpriced chemical to stay out of the price table")
	}
	if got := baseline.Prices["descaler"]; got != 1.4 {
		t.Fatalf("expected price 1.4, got %.2f", got)
	}
}

func TestRuntimeConfigBounds(t *testing.T) {
	cfg := &Config{
		AlignMinRatio:       0.5,
		ShutdownCutoffHours: 23.9,
		HorizonDays:         31,
		RefreshInterval:     15 * time.Minute,
	}
	rc := NewRuntimeConfig(cfg)

	if err := rc.SetAlignMinRatio(1.5); err == nil {
		t.Fatalf("expected out-of-range ratio to be rejected")
	}
	if err := rc.SetShutdownCutoffHours(6); err == nil {
		t.Fatalf("expected out-of-range cutoff to be rejected")
	}
	if err := rc.SetHorizonDays(0); err == nil {
		t.Fatalf("expected zero horizon to be rejected")
	}
	if err := rc.SetAlignMinRatio(0.7); err != nil {
		t.Fatalf("expected valid ratio to apply: %v", err)
	}

	snap := rc.Snapshot()
	if snap.AlignMinRatio != 0.7 || snap.ShutdownCutoffHours != 23.9 || snap.HorizonDays != 31 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
