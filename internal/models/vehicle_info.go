package models

import "time"

// VehicleInfo contains metadata about the simulated vehicle
type VehicleInfo struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the simulation started
func (v *VehicleInfo) Uptime() time.Duration {
	return time.Since(v.StartTime)
}

// NewVehicleInfo creates a new VehicleInfo with the current time as start time
func NewVehicleInfo(id, model, version string) *VehicleInfo {
	return &VehicleInfo{
		ID:        id,
		Model:     model,
		Version:   version,
		StartTime: time.Now(),
	}
}
