package refresh

import (
	"time"

	"github.com/sebastiankruger/mill-forecaster/internal/core"
	"github.com/sebastiankruger/mill-forecaster/internal/opcua"
)

// headlineNodes declares the per-line OPC UA node set exposed to plant
// network consumers.
func headlineNodes(line core.LineConfig) []opcua.NodeDefinition {
	return []opcua.NodeDefinition{
		{Name: "LineId", DisplayName: "Line ID", Description: "Production line identifier", DataType: opcua.DataTypeString, InitialValue: line.ID},
		{Name: "RunId", DisplayName: "Run ID", Description: "Identifier of the last refresh pass", DataType: opcua.DataTypeString, InitialValue: ""},
		{Name: "RefreshedAt", DisplayName: "Refreshed At", Description: "Timestamp of the last refresh pass", DataType: opcua.DataTypeDateTime, InitialValue: time.Time{}},
		{Name: "HorizonDays", DisplayName: "Horizon Days", Description: "Forecast horizon in days", DataType: opcua.DataTypeInt32, InitialValue: int32(0)},
		{Name: "TotalTons", DisplayName: "Total Forecast Tons", Description: "Forecast tons over all grades", DataType: opcua.DataTypeDouble, Unit: "t", InitialValue: 0.0},
		{Name: "ScheduledTons", DisplayName: "Scheduled Tons", Description: "Tons from the explicit schedule phase", DataType: opcua.DataTypeDouble, Unit: "t", InitialValue: 0.0},
		{Name: "ContinuationTons", DisplayName: "Continuation Tons", Description: "Tons from the calendar continuation phase", DataType: opcua.DataTypeDouble, Unit: "t", InitialValue: 0.0},
		{Name: "LeadingGrade", DisplayName: "Leading Grade", Description: "Grade carrying the most forecast tons", DataType: opcua.DataTypeString, InitialValue: ""},
		{Name: "LeadingGradeTons", DisplayName: "Leading Grade Tons", Description: "Forecast tons of the leading grade", DataType: opcua.DataTypeDouble, Unit: "t", InitialValue: 0.0},
		{Name: "AttributedCost", DisplayName: "Attributed Cost", Description: "Total attributed chemical cost over the period", DataType: opcua.DataTypeDouble, InitialValue: 0.0},
		{Name: "DataDegraded", DisplayName: "Data Degraded", Description: "True when external data was unavailable during the pass", DataType: opcua.DataTypeBool, InitialValue: false},
	}
}

// headlineValues flattens a snapshot into the node value map.
func headlineValues(snap *Snapshot, horizonDays int) map[string]interface{} {
	leading, leadingTons := snap.Forecast.Tons.Top()
	return map[string]interface{}{
		"LineId":           snap.LineID,
		"RunId":            snap.RunID,
		"RefreshedAt":      snap.GeneratedAt,
		"HorizonDays":      int32(horizonDays),
		"TotalTons":        snap.Forecast.Tons.Total(),
		"ScheduledTons":    snap.Forecast.Scheduled.Total(),
		"ContinuationTons": snap.Forecast.Continuation.Total(),
		"LeadingGrade":     string(leading),
		"LeadingGradeTons": leadingTons,
		"AttributedCost":   snap.Cost.GrandTotal(),
		"DataDegraded":     snap.Degraded(),
	}
}
