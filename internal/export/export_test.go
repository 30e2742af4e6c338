package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/afroash/engine-twin/internal/engine"
	"github.com/afroash/engine-twin/internal/models"
	"github.com/afroash/engine-twin/internal/scenario"
	"github.com/rs/zerolog"
)

func TestDocument_RoundTrip(t *testing.T) {
	model := engine.NewModelSeeded(1)
	cfg := scenario.DefaultConfig()
	cfg.TickInterval = 0
	driver := scenario.NewDriver(model, cfg, zerolog.Nop())

	if err := driver.RunSuite(context.Background()); err != nil {
		t.Fatalf("RunSuite failed: %v", err)
	}

	doc := NewDocument("TEST_VEHICLE_001", model.Mileage(), driver.History())
	path := filepath.Join(t.TempDir(), "export.json")

	if err := doc.Write(path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.VehicleID != doc.VehicleID {
		t.Errorf("VehicleID = %q, want %q", loaded.VehicleID, doc.VehicleID)
	}
	if loaded.Mileage != doc.Mileage {
		t.Errorf("Mileage = %v, want %v", loaded.Mileage, doc.Mileage)
	}
	if len(loaded.SensorHistory) != len(doc.SensorHistory) {
		t.Fatalf("len(SensorHistory) = %d, want %d", len(loaded.SensorHistory), len(doc.SensorHistory))
	}

	// Each snapshot must carry the same channel identifiers as were read
	for i, snap := range loaded.SensorHistory {
		original := doc.SensorHistory[i]
		if len(snap) != len(original) {
			t.Fatalf("snapshot %d has %d channels, want %d", i, len(snap), len(original))
		}
		for name := range original {
			reading, ok := snap[name]
			if !ok {
				t.Errorf("snapshot %d missing channel %q", i, name)
				continue
			}
			if reading.Value != original[name].Value {
				t.Errorf("snapshot %d channel %q value = %v, want %v",
					i, name, reading.Value, original[name].Value)
			}
		}
	}
}

func TestNewDocument_DefaultVehicleID(t *testing.T) {
	doc := NewDocument("", 45230.0, nil)
	if doc.VehicleID != DefaultVehicleID {
		t.Errorf("VehicleID = %q, want %q", doc.VehicleID, DefaultVehicleID)
	}
	if doc.TestTimestamp.IsZero() {
		t.Error("TestTimestamp should not be zero")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDocument_EmptyHistory(t *testing.T) {
	doc := NewDocument("TEST_VEHICLE_001", 45230.0, []models.Snapshot{})
	path := filepath.Join(t.TempDir(), "empty.json")

	if err := doc.Write(path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.SensorHistory) != 0 {
		t.Errorf("len(SensorHistory) = %d, want 0", len(loaded.SensorHistory))
	}
}
