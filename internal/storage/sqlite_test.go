package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/engine-twin/internal/models"
)

// testLogger creates a logger for tests
func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	// Create temp directory for test database
	tmpDir, err := os.MkdirTemp("", "twin-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// createTestSnapshot creates a queued snapshot with specified parameters
func createTestSnapshot(vehicleID string, rpm float64, timestamp time.Time) *QueuedSnapshot {
	return &QueuedSnapshot{
		VehicleID:  vehicleID,
		Mileage:    45230.0,
		RecordedAt: timestamp,
		Readings: models.Snapshot{
			models.ChannelRPM:         models.NewReading(models.ChannelRPM, rpm),
			models.ChannelCoolantTemp: models.NewReading(models.ChannelCoolantTemp, 85.0),
			models.ChannelOilPressure: models.NewReading(models.ChannelOilPressure, 26.4),
		},
	}
}

// TestNewSQLiteStore tests store creation
func TestNewSQLiteStore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store == nil {
		t.Fatal("Expected non-nil store")
	}

	if store.db == nil {
		t.Fatal("Expected non-nil database connection")
	}
}

// TestNewSQLiteStore_InvalidPath tests creation with invalid path
func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	// Try to create store in non-existent directory without creating it
	_, err := NewSQLiteStore("/nonexistent/path/that/cannot/exist/test.db", testLogger())
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
}

// TestMigrate_Idempotent tests that migration can be called multiple times
func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Call migrate again - should not error
	err := store.Migrate()
	if err != nil {
		t.Fatalf("Second migration failed: %v", err)
	}

	// And again
	err = store.Migrate()
	if err != nil {
		t.Fatalf("Third migration failed: %v", err)
	}
}

// TestInsertSnapshot tests single snapshot insertion
func TestInsertSnapshot(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	snap := createTestSnapshot("V1", 825.0, now)

	err := store.InsertSnapshot(snap)
	if err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}

	// Verify by querying
	latest, err := store.GetLatestSnapshot("V1")
	if err != nil {
		t.Fatalf("GetLatestSnapshot failed: %v", err)
	}

	if latest == nil {
		t.Fatal("Expected snapshot, got nil")
	}

	if latest.VehicleID != "V1" {
		t.Errorf("VehicleID = %q, want %q", latest.VehicleID, "V1")
	}

	if latest.Mileage != 45230.0 {
		t.Errorf("Mileage = %v, want 45230.0", latest.Mileage)
	}

	if len(latest.Readings) != 3 {
		t.Fatalf("len(Readings) = %d, want 3", len(latest.Readings))
	}

	rpm := latest.Readings[models.ChannelRPM]
	if rpm.Value != 825.0 {
		t.Errorf("RPM value = %v, want 825.0", rpm.Value)
	}
	if rpm.Unit != "rpm" {
		t.Errorf("RPM unit = %q, want rpm", rpm.Unit)
	}
}

// TestInsertBatch tests batch insertion
func TestInsertBatch(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	baseTime := time.Now().UTC().Truncate(time.Second)
	snapshots := make([]*QueuedSnapshot, 100)

	for i := 0; i < 100; i++ {
		snapshots[i] = createTestSnapshot(
			"V1",
			800.0+float64(i),
			baseTime.Add(time.Duration(i)*time.Minute),
		)
	}

	err := store.InsertBatch(snapshots)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	// Verify count
	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}

	if stats.TotalSnapshots != 100 {
		t.Errorf("TotalSnapshots = %d, want 100", stats.TotalSnapshots)
	}
	if stats.TotalReadings != 300 {
		t.Errorf("TotalReadings = %d, want 300", stats.TotalReadings)
	}
}

// TestInsertBatch_Empty tests batch insertion with empty slice
func TestInsertBatch_Empty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	err := store.InsertBatch([]*QueuedSnapshot{})
	if err != nil {
		t.Fatalf("InsertBatch with empty slice failed: %v", err)
	}
}

// TestInsertBatch_Nil tests batch insertion with nil slice
func TestInsertBatch_Nil(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	err := store.InsertBatch(nil)
	if err != nil {
		t.Fatalf("InsertBatch with nil slice failed: %v", err)
	}
}

// TestGetSnapshotsInRange tests querying by time range
func TestGetSnapshotsInRange(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Insert snapshots over 24 hours
	baseTime := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	for i := 0; i < 48; i++ { // Every 30 minutes
		snap := createTestSnapshot(
			"V1",
			800.0+float64(i),
			baseTime.Add(time.Duration(i)*30*time.Minute),
		)
		store.InsertSnapshot(snap)
	}

	// Query last 6 hours
	end := time.Now().UTC()
	start := end.Add(-6 * time.Hour)

	snapshots, err := store.GetSnapshotsInRange("V1", start, end, 100)
	if err != nil {
		t.Fatalf("GetSnapshotsInRange failed: %v", err)
	}

	// Should have approximately 12 snapshots (6 hours * 2 per hour)
	if len(snapshots) < 10 || len(snapshots) > 14 {
		t.Errorf("Got %d snapshots, expected ~12", len(snapshots))
	}

	// Verify order (newest first)
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].RecordedAt.After(snapshots[i-1].RecordedAt) {
			t.Errorf("Snapshots not in descending order at index %d", i)
		}
	}

	// Each snapshot should carry its readings
	for _, snap := range snapshots {
		if len(snap.Readings) != 3 {
			t.Errorf("Snapshot %d has %d readings, want 3", snap.ID, len(snap.Readings))
		}
	}
}

// TestGetSnapshotsInRange_AllVehicles tests querying all vehicles
func TestGetSnapshotsInRange_AllVehicles(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)

	// Insert snapshots for multiple vehicles
	store.InsertSnapshot(createTestSnapshot("V1", 800.0, now))
	store.InsertSnapshot(createTestSnapshot("V2", 900.0, now))
	store.InsertSnapshot(createTestSnapshot("V3", 1000.0, now))

	// Query all vehicles (empty string)
	start := now.Add(-1 * time.Hour)
	end := now.Add(1 * time.Hour)

	snapshots, err := store.GetSnapshotsInRange("", start, end, 100)
	if err != nil {
		t.Fatalf("GetSnapshotsInRange failed: %v", err)
	}

	if len(snapshots) != 3 {
		t.Errorf("Got %d snapshots, want 3", len(snapshots))
	}
}

// TestGetSnapshotsBefore tests backward scrolling
func TestGetSnapshotsBefore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Insert 50 snapshots, 1 minute apart
	baseTime := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 50; i++ {
		snap := createTestSnapshot(
			"V1",
			float64(i),
			baseTime.Add(-time.Duration(i)*time.Minute),
		)
		store.InsertSnapshot(snap)
	}

	// Get snapshots before 25 minutes ago
	before := baseTime.Add(-25 * time.Minute)
	snapshots, err := store.GetSnapshotsBefore("V1", before, 10)
	if err != nil {
		t.Fatalf("GetSnapshotsBefore failed: %v", err)
	}

	if len(snapshots) != 10 {
		t.Errorf("Got %d snapshots, want 10", len(snapshots))
	}

	// All snapshots should be before the 'before' time
	for i, s := range snapshots {
		if !s.RecordedAt.Before(before) {
			t.Errorf("Snapshot %d at %v is not before %v", i, s.RecordedAt, before)
		}
	}

	// Should be in descending order (newest first)
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].RecordedAt.After(snapshots[i-1].RecordedAt) {
			t.Errorf("Snapshots not in descending order at index %d", i)
		}
	}
}

// TestGetLatestSnapshot tests getting the most recent snapshot
func TestGetLatestSnapshot(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	baseTime := time.Now().UTC().Truncate(time.Second)

	// Insert snapshots at different times
	store.InsertSnapshot(createTestSnapshot("V1", 800.0, baseTime.Add(-2*time.Hour)))
	store.InsertSnapshot(createTestSnapshot("V1", 900.0, baseTime.Add(-1*time.Hour)))
	store.InsertSnapshot(createTestSnapshot("V1", 1050.0, baseTime)) // Most recent

	latest, err := store.GetLatestSnapshot("V1")
	if err != nil {
		t.Fatalf("GetLatestSnapshot failed: %v", err)
	}

	if latest == nil {
		t.Fatal("Expected snapshot, got nil")
	}

	if got := latest.Readings[models.ChannelRPM].Value; got != 1050.0 {
		t.Errorf("RPM = %v, want 1050.0 (most recent)", got)
	}
}

// TestGetLatestSnapshot_NoData tests getting latest when none exist
func TestGetLatestSnapshot_NoData(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	latest, err := store.GetLatestSnapshot("nonexistent-vehicle")
	if err != nil {
		t.Fatalf("GetLatestSnapshot failed: %v", err)
	}

	if latest != nil {
		t.Errorf("Expected nil for nonexistent vehicle, got %+v", latest)
	}
}

// TestGetChannelStats tests per-channel statistics aggregation
func TestGetChannelStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	baseTime := time.Now().UTC().Add(-1 * time.Hour).Truncate(time.Second)
	for i := 0; i < 10; i++ {
		store.InsertSnapshot(createTestSnapshot(
			"V1",
			800.0+float64(i)*100, // RPM ramps 800..1700
			baseTime.Add(time.Duration(i)*time.Minute),
		))
	}

	start := baseTime.Add(-1 * time.Hour)
	end := time.Now().UTC()

	stats, err := store.GetChannelStats("V1", start, end)
	if err != nil {
		t.Fatalf("GetChannelStats failed: %v", err)
	}

	// Three channels inserted per snapshot
	if len(stats) != 3 {
		t.Fatalf("Got %d channel stats, want 3", len(stats))
	}

	var rpmStat *ChannelStat
	for i := range stats {
		if stats[i].Channel == models.ChannelRPM {
			rpmStat = &stats[i]
		}
	}
	if rpmStat == nil {
		t.Fatal("No RPM stat returned")
	}

	if rpmStat.MinValue != 800.0 {
		t.Errorf("MinValue = %v, want 800.0", rpmStat.MinValue)
	}
	if rpmStat.MaxValue != 1700.0 {
		t.Errorf("MaxValue = %v, want 1700.0", rpmStat.MaxValue)
	}
	if rpmStat.SampleCount != 10 {
		t.Errorf("SampleCount = %d, want 10", rpmStat.SampleCount)
	}
	if rpmStat.AvgValue < rpmStat.MinValue || rpmStat.AvgValue > rpmStat.MaxValue {
		t.Errorf("AvgValue %v outside min/max range", rpmStat.AvgValue)
	}
	if rpmStat.Unit != "rpm" {
		t.Errorf("Unit = %q, want rpm", rpmStat.Unit)
	}
}

// TestDeleteOlderThan tests data retention cleanup
func TestDeleteOlderThan(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()

	// Insert snapshots: 5 recent, 5 old (35 days ago)
	for i := 0; i < 5; i++ {
		store.InsertSnapshot(createTestSnapshot(
			"V1",
			float64(i),
			now.Add(-time.Duration(i)*time.Hour),
		))
	}

	for i := 0; i < 5; i++ {
		store.InsertSnapshot(createTestSnapshot(
			"V1",
			float64(i+100),
			now.AddDate(0, 0, -35).Add(-time.Duration(i)*time.Hour),
		))
	}

	// Verify 10 total
	stats, _ := store.GetStorageStats()
	if stats.TotalSnapshots != 10 {
		t.Fatalf("Expected 10 snapshots before cleanup, got %d", stats.TotalSnapshots)
	}

	// Delete snapshots older than 30 days
	deleted, err := store.DeleteOlderThan(30)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}

	if deleted != 5 {
		t.Errorf("Deleted %d snapshots, want 5", deleted)
	}

	// Verify 5 remain, and that their readings survived
	stats, _ = store.GetStorageStats()
	if stats.TotalSnapshots != 5 {
		t.Errorf("Expected 5 snapshots after cleanup, got %d", stats.TotalSnapshots)
	}
	if stats.TotalReadings != 15 {
		t.Errorf("Expected 15 readings after cleanup, got %d", stats.TotalReadings)
	}
}

// TestGetStorageStats tests statistics retrieval
func TestGetStorageStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Initially empty
	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}

	if stats.TotalSnapshots != 0 {
		t.Errorf("TotalSnapshots = %d, want 0", stats.TotalSnapshots)
	}

	// Add snapshots from multiple vehicles
	now := time.Now().UTC()
	store.InsertSnapshot(createTestSnapshot("V1", 800.0, now))
	store.InsertSnapshot(createTestSnapshot("V1", 900.0, now.Add(time.Minute)))
	store.InsertSnapshot(createTestSnapshot("V2", 1000.0, now.Add(2*time.Minute)))

	stats, err = store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}

	if stats.TotalSnapshots != 3 {
		t.Errorf("TotalSnapshots = %d, want 3", stats.TotalSnapshots)
	}

	if stats.UniqueVehicles != 2 {
		t.Errorf("UniqueVehicles = %d, want 2", stats.UniqueVehicles)
	}
}

// TestGetVehicleIDs tests retrieving unique vehicle IDs
func TestGetVehicleIDs(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()

	// Insert snapshots from various vehicles
	vehicles := []string{"TEST_VEHICLE_001", "TEST_VEHICLE_002", "FLEET_A", "FLEET_B"}
	for _, v := range vehicles {
		store.InsertSnapshot(createTestSnapshot(v, 800.0, now))
	}

	ids, err := store.GetVehicleIDs()
	if err != nil {
		t.Fatalf("GetVehicleIDs failed: %v", err)
	}

	if len(ids) != 4 {
		t.Errorf("Got %d vehicle IDs, want 4", len(ids))
	}

	// Verify all expected vehicles are present
	idMap := make(map[string]bool)
	for _, id := range ids {
		idMap[id] = true
	}

	for _, expected := range vehicles {
		if !idMap[expected] {
			t.Errorf("Missing vehicle ID: %s", expected)
		}
	}
}

// TestConcurrentInserts tests thread safety of insertions
func TestConcurrentInserts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Run with: go test -race ./internal/storage/...
	done := make(chan bool)
	now := time.Now().UTC()

	// 10 goroutines each inserting 50 snapshots
	for g := 0; g < 10; g++ {
		go func(goroutineID int) {
			for i := 0; i < 50; i++ {
				snap := createTestSnapshot(
					"V1",
					float64(goroutineID*50+i),
					now.Add(time.Duration(goroutineID*50+i)*time.Millisecond),
				)
				store.InsertSnapshot(snap)
			}
			done <- true
		}(g)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Verify total count
	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}

	if stats.TotalSnapshots != 500 {
		t.Errorf("TotalSnapshots = %d, want 500", stats.TotalSnapshots)
	}
}

// TestConcurrentReadsAndWrites tests concurrent access patterns
func TestConcurrentReadsAndWrites(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Pre-populate with some data
	now := time.Now().UTC()
	for i := 0; i < 100; i++ {
		store.InsertSnapshot(createTestSnapshot("V1", float64(i), now.Add(-time.Duration(i)*time.Minute)))
	}

	done := make(chan bool)

	// Writers
	for w := 0; w < 5; w++ {
		go func(writerID int) {
			for i := 0; i < 20; i++ {
				store.InsertSnapshot(createTestSnapshot(
					"V1",
					float64(1000+writerID*20+i),
					time.Now().UTC(),
				))
			}
			done <- true
		}(w)
	}

	// Readers
	for r := 0; r < 5; r++ {
		go func() {
			for i := 0; i < 20; i++ {
				store.GetLatestSnapshot("V1")
				store.GetSnapshotsInRange("V1", now.Add(-1*time.Hour), now, 50)
				store.GetStorageStats()
			}
			done <- true
		}()
	}

	// Wait for all
	for i := 0; i < 10; i++ {
		<-done
	}

	// Verify data integrity
	stats, _ := store.GetStorageStats()
	expected := int64(100 + 5*20) // Initial + writers
	if stats.TotalSnapshots != expected {
		t.Errorf("TotalSnapshots = %d, want %d", stats.TotalSnapshots, expected)
	}
}

// TestClose tests database connection closing
func TestClose(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	// Insert some data
	store.InsertSnapshot(createTestSnapshot("V1", 800.0, time.Now().UTC()))

	// Close the connection
	err := store.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Operations should fail after close
	_, err = store.GetLatestSnapshot("V1")
	if err == nil {
		t.Error("Expected error after Close, got nil")
	}
}

// BenchmarkInsertSnapshot benchmarks single insert performance
func BenchmarkInsertSnapshot(b *testing.B) {
	tmpDir, _ := os.MkdirTemp("", "twin-bench-*")
	defer os.RemoveAll(tmpDir)

	store, _ := NewSQLiteStore(filepath.Join(tmpDir, "bench.db"), testLogger())
	defer store.Close()

	snap := createTestSnapshot("V1", 825.0, time.Now().UTC())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.InsertSnapshot(snap)
	}
}

// BenchmarkInsertBatch benchmarks batch insert performance
func BenchmarkInsertBatch(b *testing.B) {
	tmpDir, _ := os.MkdirTemp("", "twin-bench-*")
	defer os.RemoveAll(tmpDir)

	store, _ := NewSQLiteStore(filepath.Join(tmpDir, "bench.db"), testLogger())
	defer store.Close()

	// Create batch of 100 snapshots
	now := time.Now().UTC()
	snapshots := make([]*QueuedSnapshot, 100)
	for i := 0; i < 100; i++ {
		snapshots[i] = createTestSnapshot("V1", 825.0, now.Add(time.Duration(i)*time.Second))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.InsertBatch(snapshots)
	}
}
