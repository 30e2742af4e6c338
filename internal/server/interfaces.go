package server

import (
	"time"

	"github.com/afroash/engine-twin/internal/models"
	"github.com/afroash/engine-twin/internal/storage"
)

// SnapshotStore defines the interface for real-time snapshot storage
// MemoryStore implements this interface
type SnapshotStore interface {
	// Add adds a snapshot to the store
	Add(snap *TelemetrySnapshot)

	// GetLatest returns the n most recent snapshots for a vehicle (newest first)
	GetLatest(vehicleID string, n int) []*TelemetrySnapshot

	// GetCurrent returns the most recent snapshot for a vehicle
	GetCurrent(vehicleID string) *TelemetrySnapshot

	// GetVehicleIDs returns list of all vehicle IDs that have sent data
	GetVehicleIDs() []string

	// Stats returns statistics about the store
	Stats() StoreStats

	// GetAll returns all snapshots from all vehicles
	GetAll() []*TelemetrySnapshot

	// Clear removes all data from the store
	Clear()
}

// HistoricalStore defines the interface for historical/persistent storage
// storage.SQLiteStore implements this interface
type HistoricalStore interface {
	// GetSnapshotsInRange returns snapshots within a time range
	GetSnapshotsInRange(vehicleID string, start, end time.Time, limit int) ([]*storage.StoredSnapshot, error)

	// GetSnapshotsBefore returns snapshots before a timestamp (for scrolling back)
	GetSnapshotsBefore(vehicleID string, before time.Time, limit int) ([]*storage.StoredSnapshot, error)

	// GetLatestSnapshot returns the most recent snapshot for a vehicle
	GetLatestSnapshot(vehicleID string) (*storage.StoredSnapshot, error)

	// GetVehicleIDs returns list of all unique vehicle IDs
	GetVehicleIDs() ([]string, error)

	// GetChannelStats returns aggregated per-channel statistics
	GetChannelStats(vehicleID string, start, end time.Time) ([]storage.ChannelStat, error)

	// GetStorageStats returns database statistics
	GetStorageStats() (*storage.StorageStats, error)
}

// snapshotReadings is a helper to extract the readings history from a set
// of telemetry snapshots, oldest first, for health analysis.
func snapshotReadings(snapshots []*TelemetrySnapshot) []models.Snapshot {
	history := make([]models.Snapshot, 0, len(snapshots))
	for i := len(snapshots) - 1; i >= 0; i-- {
		history = append(history, snapshots[i].Readings)
	}
	return history
}
