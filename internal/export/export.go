// Package export writes a run's accumulated history as a one-shot JSON
// document for downstream digital-twin consumers.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/afroash/engine-twin/internal/models"
)

// DefaultVehicleID identifies exports when no vehicle id is configured.
const DefaultVehicleID = "TEST_VEHICLE_001"

// Document is the exported test session: metadata plus the ordered sequence
// of per-tick reading snapshots.
type Document struct {
	TestTimestamp models.LocalTime  `json:"test_timestamp"`
	VehicleID     string            `json:"vehicle_id"`
	Mileage       float64           `json:"mileage"`
	SensorHistory []models.Snapshot `json:"sensor_history"`
}

// NewDocument assembles a document stamped with the current time.
func NewDocument(vehicleID string, mileage float64, history []models.Snapshot) *Document {
	if vehicleID == "" {
		vehicleID = DefaultVehicleID
	}
	return &Document{
		TestTimestamp: models.NewLocalTime(time.Now()),
		VehicleID:     vehicleID,
		Mileage:       mileage,
		SensorHistory: history,
	}
}

// Write serializes the document to the file at path, indented for humans.
func (d *Document) Write(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export document: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// Load reads a previously written export document back from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse export file: %w", err)
	}
	return &doc, nil
}
