package api

import (
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/forecast"
	"github.com/sebastiankruger/mill-forecaster/internal/usage"
)

// StatusResponse is returned by GET /api/v1/status
type StatusResponse struct {
	ServiceName string       `json:"serviceName"`
	Uptime      string       `json:"uptime"`
	TotalPasses int          `json:"totalPasses"`
	Lines       []LineStatus `json:"lines"`
}

// LineStatus summarizes the refresh state of one line
type LineStatus struct {
	ID           string    `json:"id"`
	Passes       int       `json:"passes"`
	Degraded     int       `json:"degraded"`
	LastDuration string    `json:"lastDuration"`
	LastFinished time.Time `json:"lastFinished"`
	HasSnapshot  bool      `json:"hasSnapshot"`
}

// LineListResponse is returned by GET /api/v1/lines
type LineListResponse struct {
	Lines []LineInfo `json:"lines"`
}

// LineInfo provides basic info about a configured line
type LineInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Grades   int    `json:"grades"`
}

// ForecastResponse is returned by GET /api/v1/lines/{line}/forecast
type ForecastResponse struct {
	LineID      string           `json:"lineId"`
	PeriodStart time.Time        `json:"periodStart"`
	Horizon     time.Time        `json:"horizon"`
	Duration    string           `json:"duration,omitempty"`
	Degraded    bool             `json:"degraded"`
	Forecast    *forecast.Result `json:"forecast"`
}

// UsageResponse is returned by GET /api/v1/lines/{line}/usage
type UsageResponse struct {
	LineID      string            `json:"lineId"`
	RunID       string            `json:"runId"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Actual      usage.Attribution `json:"actual"`
	Forecast    usage.Attribution `json:"forecast"`
	Merged      usage.Attribution `json:"merged"`
	Cost        usage.Attribution `json:"cost"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// HistoryResponse is returned by GET /api/v1/lines/{line}/history
type HistoryResponse struct {
	LineID      string                                 `json:"lineId"`
	From        time.Time                              `json:"from"`
	To          time.Time                              `json:"to"`
	Runs        int                                    `json:"runs"`
	AvgTons     map[core.Grade]float64                 `json:"avgTons,omitempty"`
	Transitions map[core.Grade]map[core.Grade]float64 `json:"transitions,omitempty"`
	// Unavailable carries the reason when no historical data could be
	// computed; the response is still 200 with empty maps.
	Unavailable string `json:"unavailable,omitempty"`
}

// ConfigResponse is returned by GET /api/v1/config
type ConfigResponse struct {
	AlignMinRatio       float64 `json:"alignMinRatio"`
	ShutdownCutoffHours float64 `json:"shutdownCutoffHours"`
	HorizonDays         int     `json:"horizonDays"`
	RefreshInterval     string  `json:"refreshInterval"`
}

// ConfigUpdateRequest is used for POST /api/v1/config
type ConfigUpdateRequest struct {
	AlignMinRatio       *float64 `json:"alignMinRatio,omitempty"`
	ShutdownCutoffHours *float64 `json:"shutdownCutoffHours,omitempty"`
	HorizonDays         *int     `json:"horizonDays,omitempty"`
	RefreshInterval     *string  `json:"refreshInterval,omitempty"`
}
