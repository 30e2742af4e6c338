package server

import (
	"sync"
	"time"

	"github.com/afroash/engine-twin/internal/models"
)

// TelemetrySnapshot is a received engine snapshot tagged with its source
// vehicle and arrival time.
type TelemetrySnapshot struct {
	VehicleID  string          `json:"vehicle_id"`
	Mileage    float64         `json:"mileage"`
	ReceivedAt time.Time       `json:"received_at"`
	Readings   models.Snapshot `json:"readings"`
}

// Copy returns a deep copy of the snapshot.
func (ts *TelemetrySnapshot) Copy() *TelemetrySnapshot {
	return &TelemetrySnapshot{
		VehicleID:  ts.VehicleID,
		Mileage:    ts.Mileage,
		ReceivedAt: ts.ReceivedAt,
		Readings:   ts.Readings.Copy(),
	}
}

// MemoryStore is an in-memory ring buffer of snapshots, keyed by vehicle
type MemoryStore struct {
	capacity       int
	data           map[string][]*TelemetrySnapshot
	mutex          sync.RWMutex
	totalSnapshots int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(capacity int) *MemoryStore {

	return &MemoryStore{
		capacity:       capacity,
		data:           make(map[string][]*TelemetrySnapshot),
		mutex:          sync.RWMutex{},
		totalSnapshots: 0,
	}
}

// Add adds a snapshot to the store
func (ms *MemoryStore) Add(snap *TelemetrySnapshot) {

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	snapshots := ms.data[snap.VehicleID]
	if len(snapshots) >= ms.capacity {
		snapshots = snapshots[1:] // Remove oldest
	}
	snapshots = append(snapshots, snap)
	ms.data[snap.VehicleID] = snapshots
	ms.totalSnapshots++
}

// GetLatest returns the n most recent snapshots for a vehicle, newest first
func (ms *MemoryStore) GetLatest(vehicleID string, n int) []*TelemetrySnapshot {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	snapshots := ms.data[vehicleID]
	if n <= 0 || len(snapshots) == 0 {
		return nil
	}

	start := len(snapshots) - n
	if start < 0 {
		start = 0
	}

	// Return copies, newest first
	result := make([]*TelemetrySnapshot, len(snapshots)-start)
	for i, j := len(snapshots)-1, 0; i >= start; i, j = i-1, j+1 {
		result[j] = snapshots[i].Copy()
	}
	return result
}

// GetAll returns all snapshots from all vehicles
func (ms *MemoryStore) GetAll() []*TelemetrySnapshot {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	result := make([]*TelemetrySnapshot, 0)
	for _, vehicleSnapshots := range ms.data {
		for _, snap := range vehicleSnapshots {
			result = append(result, snap.Copy())
		}
	}
	return result
}

// GetCurrent returns the most recent snapshot for a vehicle
func (ms *MemoryStore) GetCurrent(vehicleID string) *TelemetrySnapshot {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	snapshots := ms.data[vehicleID]
	if len(snapshots) == 0 {
		return nil
	}
	// Return a copy, not a pointer to internal data
	return snapshots[len(snapshots)-1].Copy()
}

// GetVehicleIDs returns list of all vehicle IDs that have sent data
func (ms *MemoryStore) GetVehicleIDs() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	keys := make([]string, 0, len(ms.data))
	for key := range ms.data {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats() StoreStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	totalSnapshots := ms.totalSnapshots
	uniqueVehicles := len(ms.data)
	currentSnapshots := 0
	for _, snapshots := range ms.data {
		currentSnapshots += len(snapshots)
	}
	return StoreStats{
		TotalSnapshots:   totalSnapshots,
		UniqueVehicles:   uniqueVehicles,
		CurrentSnapshots: currentSnapshots,
	}
}

// StoreStats contains statistics about the memory store
type StoreStats struct {
	TotalSnapshots   int64     `json:"total_snapshots"`
	UniqueVehicles   int       `json:"unique_vehicles"`
	CurrentSnapshots int       `json:"current_snapshots"` // In memory now
	OldestSnapshot   time.Time `json:"oldest_snapshot,omitempty"`
	NewestSnapshot   time.Time `json:"newest_snapshot,omitempty"`
}

// Clear removes all data from the store
func (ms *MemoryStore) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = make(map[string][]*TelemetrySnapshot)
	ms.totalSnapshots = 0
}
