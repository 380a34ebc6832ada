package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sebastiankruger/mill-forecaster/internal/forecast"
	"github.com/sebastiankruger/mill-forecaster/internal/refresh"
)

// timeLayouts accepted in query parameters.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

// Handler handles REST API requests for the forecaster
type Handler struct {
	serviceName string
	coord       *refresh.Coordinator
}

// NewHandler creates an API handler over the refresh coordinator
func NewHandler(serviceName string, coord *refresh.Coordinator) *Handler {
	return &Handler{
		serviceName: serviceName,
		coord:       coord,
	}
}

// Router builds the API route set
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/lines", h.handleLines).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/lines/{line}/forecast", h.handleForecast).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/lines/{line}/usage", h.handleUsage).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/lines/{line}/history", h.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/config", h.handleConfig).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	return r
}

// handleStatus handles GET /api/v1/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := h.coord.Metrics()

	resp := StatusResponse{
		ServiceName: h.serviceName,
		Uptime:      metrics.Uptime().String(),
		TotalPasses: metrics.TotalPasses(),
	}
	for _, line := range h.coord.Lines() {
		stats := metrics.Line(line.ID)
		_, hasSnapshot := h.coord.Snapshot(line.ID)
		resp.Lines = append(resp.Lines, LineStatus{
			ID:           line.ID,
			Passes:       stats.Passes,
			Degraded:     stats.Degraded,
			LastDuration: stats.LastDuration.String(),
			LastFinished: stats.LastFinished,
			HasSnapshot:  hasSnapshot,
		})
	}

	h.writeJSON(w, resp)
}

// handleLines handles GET /api/v1/lines
func (h *Handler) handleLines(w http.ResponseWriter, r *http.Request) {
	resp := LineListResponse{Lines: []LineInfo{}}
	for _, line := range h.coord.Lines() {
		resp.Lines = append(resp.Lines, LineInfo{
			ID:       line.ID,
			Name:     line.Name,
			Timezone: line.Timezone,
			Grades:   len(line.Throughput),
		})
	}

	h.writeJSON(w, resp)
}

// handleForecast handles GET /api/v1/lines/{line}/forecast. Without query
// parameters it serves the cached snapshot; with ?start=&end= it recomputes
// a from-scratch forecast over the requested window.
func (h *Handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["line"]
	if _, ok := h.coord.LineByID(lineID); !ok {
		http.Error(w, "Line not found", http.StatusNotFound)
		return
	}

	startParam := r.URL.Query().Get("start")
	endParam := r.URL.Query().Get("end")
	if startParam != "" || endParam != "" {
		h.forecastOnDemand(r.Context(), w, lineID, startParam, endParam)
		return
	}

	snap, ok := h.coord.Snapshot(lineID)
	if !ok {
		http.Error(w, "No forecast computed yet", http.StatusNotFound)
		return
	}

	h.writeJSON(w, ForecastResponse{
		LineID:      lineID,
		PeriodStart: snap.PeriodStart,
		Horizon:     snap.Horizon,
		Duration:    snap.Duration.String(),
		Degraded:    snap.Degraded(),
		Forecast:    snap.Forecast,
	})
}

func (h *Handler) forecastOnDemand(ctx context.Context, w http.ResponseWriter, lineID, startParam, endParam string) {
	start, err := parseTimeParam(startParam)
	if err != nil {
		http.Error(w, "Invalid start: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseTimeParam(endParam)
	if err != nil {
		http.Error(w, "Invalid end: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "End must be after start", http.StatusBadRequest)
		return
	}

	result, err := h.coord.ComputeForecast(ctx, lineID, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.writeJSON(w, ForecastResponse{
		LineID:      lineID,
		PeriodStart: start,
		Horizon:     end,
		Degraded:    result.ContinuationStatus == forecast.PhaseDegraded,
		Forecast:    result,
	})
}

// handleUsage handles GET /api/v1/lines/{line}/usage
func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["line"]
	if _, ok := h.coord.LineByID(lineID); !ok {
		http.Error(w, "Line not found", http.StatusNotFound)
		return
	}

	snap, ok := h.coord.Snapshot(lineID)
	if !ok {
		http.Error(w, "No attribution computed yet", http.StatusNotFound)
		return
	}

	h.writeJSON(w, UsageResponse{
		LineID:      lineID,
		RunID:       snap.RunID,
		GeneratedAt: snap.GeneratedAt,
		Actual:      snap.ActualUsage,
		Forecast:    snap.ForecastUsage,
		Merged:      snap.MergedUsage,
		Cost:        snap.Cost,
		Warnings:    snap.Warnings,
	})
}

// handleHistory handles GET /api/v1/lines/{line}/history. The window
// defaults to the trailing year.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["line"]
	if _, ok := h.coord.LineByID(lineID); !ok {
		http.Error(w, "Line not found", http.StatusNotFound)
		return
	}

	to := time.Now()
	from := to.AddDate(-1, 0, 0)
	var err error
	if param := r.URL.Query().Get("from"); param != "" {
		if from, err = parseTimeParam(param); err != nil {
			http.Error(w, "Invalid from: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if param := r.URL.Query().Get("to"); param != "" {
		if to, err = parseTimeParam(param); err != nil {
			http.Error(w, "Invalid to: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	stats, err := h.coord.History(r.Context(), lineID, from, to)
	if err != nil {
		// No data degrades to an empty result rather than an error status.
		h.writeJSON(w, HistoryResponse{LineID: lineID, From: from, To: to, Unavailable: err.Error()})
		return
	}

	h.writeJSON(w, HistoryResponse{
		LineID:      lineID,
		From:        from,
		To:          to,
		Runs:        stats.Runs,
		AvgTons:     stats.AvgTons,
		Transitions: stats.Transitions,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleConfig handles GET and POST /api/v1/config
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Handle CORS preflight
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.writeConfig(w)
	case http.MethodPost:
		h.handleConfigUpdate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) writeConfig(w http.ResponseWriter) {
	snapshot := h.coord.RuntimeConfig().Snapshot()
	h.writeJSON(w, ConfigResponse{
		AlignMinRatio:       snapshot.AlignMinRatio,
		ShutdownCutoffHours: snapshot.ShutdownCutoffHours,
		HorizonDays:         snapshot.HorizonDays,
		RefreshInterval:     snapshot.RefreshInterval.String(),
	})
}

func (h *Handler) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	rc := h.coord.RuntimeConfig()

	// Apply updates
	if req.AlignMinRatio != nil {
		if err := rc.SetAlignMinRatio(*req.AlignMinRatio); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.ShutdownCutoffHours != nil {
		if err := rc.SetShutdownCutoffHours(*req.ShutdownCutoffHours); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.HorizonDays != nil {
		if err := rc.SetHorizonDays(*req.HorizonDays); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.RefreshInterval != nil {
		interval, err := time.ParseDuration(*req.RefreshInterval)
		if err != nil {
			http.Error(w, "Invalid refresh interval: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := rc.SetRefreshInterval(interval); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	h.writeConfig(w)
}

func parseTimeParam(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
