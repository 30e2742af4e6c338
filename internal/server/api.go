package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/afroash/engine-twin/internal/scenario"
	"github.com/rs/zerolog"
)

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	store   SnapshotStore
	history HistoricalStore // optional, nil when persistence disabled
	logger  zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store SnapshotStore, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:  store,
		logger: logger,
	}
}

// NewAPIHandlerWithHistory creates an API handler backed by both the live
// store and the historical database
func NewAPIHandlerWithHistory(store SnapshotStore, history HistoricalStore, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:   store,
		history: history,
		logger:  logger,
	}
}

// resolveVehicleID picks the vehicle from the query param, falling back to
// the first known vehicle.
func (api *APIHandler) resolveVehicleID(r *http.Request) (string, bool) {
	vehicleID := r.URL.Query().Get("vehicle_id")
	if vehicleID != "" {
		return vehicleID, true
	}
	vehicleIDs := api.store.GetVehicleIDs()
	if len(vehicleIDs) == 0 {
		return "", false
	}
	return vehicleIDs[0], true
}

// HandleCurrent returns the current snapshot for a vehicle
func (api *APIHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := api.resolveVehicleID(r)
	if !ok {
		http.Error(w, "No vehicles found", http.StatusNotFound)
		return
	}

	snap := api.store.GetCurrent(vehicleID)
	if snap == nil {
		http.Error(w, "No snapshots available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// HandleHistory returns recent snapshots for charting
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := api.resolveVehicleID(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]TelemetrySnapshot{})
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 50 // default
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	snapshots := api.store.GetLatest(vehicleID, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// HandleStats returns store statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := api.store.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// HandleVehicles returns the list of known vehicle IDs
func (api *APIHandler) HandleVehicles(w http.ResponseWriter, r *http.Request) {
	vehicleIDs := api.store.GetVehicleIDs()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(vehicleIDs)
}

// HandleHealth runs the health analysis over a vehicle's stored snapshots
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := api.resolveVehicleID(r)
	if !ok {
		http.Error(w, "No vehicles found", http.StatusNotFound)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 100 // default analysis window
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	snapshots := api.store.GetLatest(vehicleID, limit)
	report, err := scenario.AnalyzeHealth(snapshotReadings(snapshots))
	if err != nil {
		http.Error(w, "No snapshots available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// HandleMaintenance predicts upcoming maintenance for a vehicle based on
// its latest reported mileage
func (api *APIHandler) HandleMaintenance(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := api.resolveVehicleID(r)
	if !ok {
		http.Error(w, "No vehicles found", http.StatusNotFound)
		return
	}

	snap := api.store.GetCurrent(vehicleID)
	if snap == nil {
		http.Error(w, "No snapshots available", http.StatusNotFound)
		return
	}

	predictions := scenario.PredictMaintenance(snap.Mileage, scenario.DefaultSchedule)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(predictions)
}

// HandleChannelStats returns aggregated per-channel statistics from the
// historical database
func (api *APIHandler) HandleChannelStats(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "Historical storage not enabled", http.StatusNotImplemented)
		return
	}

	vehicleID := r.URL.Query().Get("vehicle_id")

	hours := 24 // default window
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	stats, err := api.history.GetChannelStats(vehicleID, start, end)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query channel stats")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// HandleArchive returns historical snapshots from the database
func (api *APIHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "Historical storage not enabled", http.StatusNotImplemented)
		return
	}

	vehicleID := r.URL.Query().Get("vehicle_id")

	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	limit := 500
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	snapshots, err := api.history.GetSnapshotsInRange(vehicleID, start, end, limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query archive")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// DashboardData contains all data for the dashboard
type DashboardData struct {
	CurrentSnapshot *TelemetrySnapshot `json:"current_snapshot"`
	Stats           StoreStats         `json:"stats"`
	VehicleIDs      []string           `json:"vehicle_ids"`
	LastUpdate      time.Time          `json:"last_update"`
}

// HandleDashboardData returns combined data for dashboard (htmx-friendly)
func (api *APIHandler) HandleDashboardData(w http.ResponseWriter, r *http.Request) {
	vehicleIDs := api.store.GetVehicleIDs()

	var current *TelemetrySnapshot
	if len(vehicleIDs) > 0 {
		requestedVehicle := r.URL.Query().Get("vehicle_id")
		if requestedVehicle != "" {
			current = api.store.GetCurrent(requestedVehicle)
		} else {
			current = api.store.GetCurrent(vehicleIDs[0])
		}
	}

	data := DashboardData{
		CurrentSnapshot: current,
		Stats:           api.store.Stats(),
		VehicleIDs:      vehicleIDs,
		LastUpdate:      time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
