package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/engine-twin/internal/models"
)

// Store defines the interface for telemetry persistence
type Store interface {
	Close() error
	Migrate() error
	InsertSnapshot(snap *QueuedSnapshot) error
	InsertBatch(snapshots []*QueuedSnapshot) error
	GetSnapshotsInRange(vehicleID string, start, end time.Time, limit int) ([]*StoredSnapshot, error)
	GetSnapshotsBefore(vehicleID string, before time.Time, limit int) ([]*StoredSnapshot, error)
	GetLatestSnapshot(vehicleID string) (*StoredSnapshot, error)
	GetChannelStats(vehicleID string, start, end time.Time) ([]ChannelStat, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
	GetVehicleIDs() ([]string, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore handles persistent storage of engine snapshots
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// QueuedSnapshot is a snapshot pending insertion
type QueuedSnapshot struct {
	VehicleID  string
	Mileage    float64
	RecordedAt time.Time
	Readings   models.Snapshot
}

// StoredSnapshot is a snapshot as read back from the database
type StoredSnapshot struct {
	ID         int64           `json:"id"`
	VehicleID  string          `json:"vehicle_id"`
	Mileage    float64         `json:"mileage"`
	RecordedAt time.Time       `json:"recorded_at"`
	Readings   models.Snapshot `json:"readings"`
}

// ChannelStat represents aggregated statistics for a single channel
type ChannelStat struct {
	VehicleID   string  `json:"vehicle_id"`
	Channel     string  `json:"channel"`
	Unit        string  `json:"unit"`
	MinValue    float64 `json:"min_value"`
	MaxValue    float64 `json:"max_value"`
	AvgValue    float64 `json:"avg_value"`
	SampleCount int     `json:"sample_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalSnapshots int64     `json:"total_snapshots"`
	TotalReadings  int64     `json:"total_readings"`
	OldestSnapshot time.Time `json:"oldest_snapshot,omitempty"`
	NewestSnapshot time.Time `json:"newest_snapshot,omitempty"`
	UniqueVehicles int       `json:"unique_vehicles"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply performance pragmas for SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	// Auto-migrate schema
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle_id TEXT NOT NULL,
		mileage REAL NOT NULL,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_vehicle_time ON snapshots(vehicle_id, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_snapshots_time ON snapshots(recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_readings_snapshot ON readings(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_readings_channel ON readings(channel);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// InsertSnapshot inserts a single snapshot and its readings
func (s *SQLiteStore) InsertSnapshot(snap *QueuedSnapshot) error {
	return s.InsertBatch([]*QueuedSnapshot{snap})
}

// InsertBatch inserts multiple snapshots in a single transaction
func (s *SQLiteStore) InsertBatch(snapshots []*QueuedSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snapStmt, err := tx.Prepare(`
		INSERT INTO snapshots (vehicle_id, mileage, recorded_at)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot statement: %w", err)
	}
	defer snapStmt.Close()

	readStmt, err := tx.Prepare(`
		INSERT INTO readings (snapshot_id, channel, value, unit)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare reading statement: %w", err)
	}
	defer readStmt.Close()

	for _, snap := range snapshots {
		res, err := snapStmt.Exec(
			snap.VehicleID,
			snap.Mileage,
			snap.RecordedAt.UTC().Format("2006-01-02 15:04:05"),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot in batch: %w", err)
		}
		snapshotID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get snapshot id: %w", err)
		}
		for _, reading := range snap.Readings {
			if _, err := readStmt.Exec(snapshotID, reading.Command, reading.Value, reading.Unit); err != nil {
				return fmt.Errorf("failed to insert reading in batch: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(snapshots)).Msg("Batch insert completed")
	return nil
}

// GetSnapshotsInRange returns snapshots within a time range, newest first
func (s *SQLiteStore) GetSnapshotsInRange(vehicleID string, start, end time.Time, limit int) ([]*StoredSnapshot, error) {
	var query string
	var args []interface{}

	if vehicleID == "" {
		query = `
			SELECT id, vehicle_id, mileage, recorded_at
			FROM snapshots
			WHERE recorded_at BETWEEN ? AND ?
			ORDER BY recorded_at DESC
			LIMIT ?
		`
		args = []interface{}{
			start.UTC().Format("2006-01-02 15:04:05"),
			end.UTC().Format("2006-01-02 15:04:05"),
			limit,
		}
	} else {
		query = `
			SELECT id, vehicle_id, mileage, recorded_at
			FROM snapshots
			WHERE vehicle_id = ? AND recorded_at BETWEEN ? AND ?
			ORDER BY recorded_at DESC
			LIMIT ?
		`
		args = []interface{}{
			vehicleID,
			start.UTC().Format("2006-01-02 15:04:05"),
			end.UTC().Format("2006-01-02 15:04:05"),
			limit,
		}
	}

	return s.querySnapshots(query, args...)
}

// GetSnapshotsBefore returns snapshots before a specific time (for scrolling back)
func (s *SQLiteStore) GetSnapshotsBefore(vehicleID string, before time.Time, limit int) ([]*StoredSnapshot, error) {
	var query string
	var args []interface{}

	if vehicleID == "" {
		query = `
			SELECT id, vehicle_id, mileage, recorded_at
			FROM snapshots
			WHERE recorded_at < ?
			ORDER BY recorded_at DESC
			LIMIT ?
		`
		args = []interface{}{
			before.UTC().Format("2006-01-02 15:04:05"),
			limit,
		}
	} else {
		query = `
			SELECT id, vehicle_id, mileage, recorded_at
			FROM snapshots
			WHERE vehicle_id = ? AND recorded_at < ?
			ORDER BY recorded_at DESC
			LIMIT ?
		`
		args = []interface{}{
			vehicleID,
			before.UTC().Format("2006-01-02 15:04:05"),
			limit,
		}
	}

	return s.querySnapshots(query, args...)
}

// GetLatestSnapshot returns the most recent snapshot for a vehicle
func (s *SQLiteStore) GetLatestSnapshot(vehicleID string) (*StoredSnapshot, error) {
	snapshots, err := s.querySnapshots(`
		SELECT id, vehicle_id, mileage, recorded_at
		FROM snapshots
		WHERE vehicle_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return snapshots[0], nil
}

// GetChannelStats returns aggregated per-channel statistics for a time range
func (s *SQLiteStore) GetChannelStats(vehicleID string, start, end time.Time) ([]ChannelStat, error) {
	var query string
	var args []interface{}

	if vehicleID == "" {
		query = `
			SELECT
				s.vehicle_id,
				r.channel,
				r.unit,
				MIN(r.value) as min_value,
				MAX(r.value) as max_value,
				AVG(r.value) as avg_value,
				COUNT(*) as sample_count
			FROM readings r
			JOIN snapshots s ON s.id = r.snapshot_id
			WHERE s.recorded_at BETWEEN ? AND ?
			GROUP BY s.vehicle_id, r.channel, r.unit
			ORDER BY s.vehicle_id, r.channel
		`
		args = []interface{}{
			start.UTC().Format("2006-01-02 15:04:05"),
			end.UTC().Format("2006-01-02 15:04:05"),
		}
	} else {
		query = `
			SELECT
				s.vehicle_id,
				r.channel,
				r.unit,
				MIN(r.value) as min_value,
				MAX(r.value) as max_value,
				AVG(r.value) as avg_value,
				COUNT(*) as sample_count
			FROM readings r
			JOIN snapshots s ON s.id = r.snapshot_id
			WHERE s.vehicle_id = ? AND s.recorded_at BETWEEN ? AND ?
			GROUP BY s.vehicle_id, r.channel, r.unit
			ORDER BY r.channel
		`
		args = []interface{}{
			vehicleID,
			start.UTC().Format("2006-01-02 15:04:05"),
			end.UTC().Format("2006-01-02 15:04:05"),
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel stats: %w", err)
	}
	defer rows.Close()

	var stats []ChannelStat
	for rows.Next() {
		var stat ChannelStat
		err := rows.Scan(
			&stat.VehicleID,
			&stat.Channel,
			&stat.Unit,
			&stat.MinValue,
			&stat.MaxValue,
			&stat.AvgValue,
			&stat.SampleCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel stat: %w", err)
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan removes snapshots (and their readings) older than the
// specified number of days. Deletes based on recorded_at, not created_at.
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	cutoffStr := cutoff.Format("2006-01-02 15:04:05")

	// Delete readings first in case foreign_keys is off for this connection
	if _, err := s.db.Exec(
		"DELETE FROM readings WHERE snapshot_id IN (SELECT id FROM snapshots WHERE recorded_at < ?)",
		cutoffStr,
	); err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}

	result, err := s.db.Exec("DELETE FROM snapshots WHERE recorded_at < ?", cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old snapshots")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&stats.TotalSnapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to count snapshots: %w", err)
	}

	// If no snapshots, return early with zero values
	if stats.TotalSnapshots == 0 {
		return stats, nil
	}

	err = s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.TotalReadings)
	if err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}

	var oldestStr, newestStr string
	err = s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM snapshots").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}

	stats.OldestSnapshot, _ = s.parseTimestamp(oldestStr)
	stats.NewestSnapshot, _ = s.parseTimestamp(newestStr)

	err = s.db.QueryRow("SELECT COUNT(DISTINCT vehicle_id) FROM snapshots").Scan(&stats.UniqueVehicles)
	if err != nil {
		return nil, fmt.Errorf("failed to count vehicles: %w", err)
	}

	// Get database size using PRAGMA
	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// GetVehicleIDs returns a list of all unique vehicle IDs in the database
func (s *SQLiteStore) GetVehicleIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT vehicle_id FROM snapshots ORDER BY vehicle_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// querySnapshots runs a snapshot query and attaches the readings of each
// returned snapshot
func (s *SQLiteStore) querySnapshots(query string, args ...interface{}) ([]*StoredSnapshot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*StoredSnapshot
	for rows.Next() {
		var snap StoredSnapshot
		var recordedAt string

		if err := rows.Scan(&snap.ID, &snap.VehicleID, &snap.Mileage, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snap.RecordedAt, err = s.parseTimestamp(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}

		snap.Readings = make(models.Snapshot)
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if err := s.attachReadings(snapshots); err != nil {
		return nil, err
	}

	return snapshots, nil
}

// attachReadings populates the Readings map of each snapshot
func (s *SQLiteStore) attachReadings(snapshots []*StoredSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	byID := make(map[int64]*StoredSnapshot, len(snapshots))
	placeholders := make([]string, 0, len(snapshots))
	args := make([]interface{}, 0, len(snapshots))
	for _, snap := range snapshots {
		byID[snap.ID] = snap
		placeholders = append(placeholders, "?")
		args = append(args, snap.ID)
	}

	query := fmt.Sprintf(
		"SELECT snapshot_id, channel, value, unit FROM readings WHERE snapshot_id IN (%s)",
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snapshotID int64
		var reading models.Reading

		if err := rows.Scan(&snapshotID, &reading.Command, &reading.Value, &reading.Unit); err != nil {
			return fmt.Errorf("failed to scan reading: %w", err)
		}

		snap, ok := byID[snapshotID]
		if !ok {
			continue
		}
		reading.Timestamp = models.LocalTime{Time: snap.RecordedAt.Local()}
		snap.Readings[reading.Command] = reading
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	return nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func (s *SQLiteStore) parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
