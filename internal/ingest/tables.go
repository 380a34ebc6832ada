// Package ingest loads the externally maintained production tables: the
// planned schedule, the downtime records and the per-day tonnage overrides.
// Loaders are row tolerant: malformed rows are logged and dropped, the rest
// of the file still loads.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/downtime"
)

// dateLayouts are the day-resolution formats accepted in table files.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "2006/01/02"}

// LoadSchedule reads the ordered (grade label, tons) queue from a CSV file.
func LoadSchedule(path string) (core.Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule table: %w", err)
	}
	defer f.Close()
	return ReadSchedule(f)
}

// ReadSchedule parses schedule rows, preserving file order. Rows whose
// tonnage does not parse are dropped; a leading header row is tolerated.
func ReadSchedule(r io.Reader) (core.Schedule, error) {
	rows, err := readRows(r, 2)
	if err != nil {
		return nil, err
	}

	var schedule core.Schedule
	for i, row := range rows {
		tons, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			log.Warn().Int("row", i+1).Str("tons", row[1]).Msg("Schedule row dropped - tonnage not numeric")
			continue
		}
		schedule = append(schedule, core.ScheduleEntry{
			Grade: core.Grade(strings.TrimSpace(row[0])),
			Tons:  tons,
		})
	}
	return schedule, nil
}

// LoadDowntime reads (date, hours, description) outage rows from a CSV file.
func LoadDowntime(path string) ([]downtime.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open downtime table: %w", err)
	}
	defer f.Close()
	return ReadDowntime(f)
}

// ReadDowntime parses downtime rows. Rows with an unparseable date or
// duration are dropped; a leading header row is tolerated.
func ReadDowntime(r io.Reader) ([]downtime.Record, error) {
	rows, err := readRows(r, 3)
	if err != nil {
		return nil, err
	}

	var records []downtime.Record
	for i, row := range rows {
		date, dateErr := parseDate(row[0])
		hours, hoursErr := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if dateErr != nil || hoursErr != nil {
			if i == 0 {
				continue
			}
			log.Warn().Int("row", i+1).Str("date", row[0]).Str("hours", row[1]).
				Msg("Downtime row dropped - malformed date or duration")
			continue
		}
		records = append(records, downtime.Record{
			Date:        date,
			Hours:       hours,
			Description: strings.TrimSpace(row[2]),
		})
	}
	return records, nil
}

// LoadOverrides reads the per-day, per-grade tonnage override table and
// folds it into a known-actuals seed. Repeated (date, grade) rows sum.
func LoadOverrides(path string) (core.Tonnage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open override table: %w", err)
	}
	defer f.Close()
	return ReadOverrides(f)
}

// ReadOverrides parses (date, grade, tons) rows into a tonnage accumulator.
func ReadOverrides(r io.Reader) (core.Tonnage, error) {
	rows, err := readRows(r, 3)
	if err != nil {
		return nil, err
	}

	tons := core.NewTonnage()
	for i, row := range rows {
		_, dateErr := parseDate(row[0])
		qty, qtyErr := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if dateErr != nil || qtyErr != nil {
			if i == 0 {
				continue
			}
			log.Warn().Int("row", i+1).Str("date", row[0]).Str("tons", row[2]).
				Msg("Override row dropped - malformed date or tonnage")
			continue
		}
		tons.Add(core.Grade(strings.TrimSpace(row[1])), qty)
	}
	return tons, nil
}

// readRows pulls all CSV rows with at least minFields columns. Short rows
// are dropped with a warning rather than failing the batch.
func readRows(r io.Reader, minFields int) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	rows := make([][]string, 0, len(all))
	for i, row := range all {
		if len(row) < minFields {
			log.Warn().Int("row", i+1).Int("fields", len(row)).Msg("Table row dropped - too few fields")
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
