package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionCleaner prunes snapshots older than the retention window.
// It runs one pass immediately on startup, then one per cleanup period.
type RetentionCleaner struct {
	store  *SQLiteStore
	logger zerolog.Logger
	days   int
	period time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.RWMutex
	deleted     int64
	passes      int64
	lastPass    time.Time
	lastDeleted int64
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int
	CleanupPeriod time.Duration
}

// DefaultRetentionCleanerConfig returns sensible defaults
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 30,
		CleanupPeriod: 1 * time.Hour,
	}
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// NewRetentionCleaner creates a cleaner and starts its background loop
func NewRetentionCleaner(store *SQLiteStore, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	period := config.CleanupPeriod
	if period <= 0 {
		// time.NewTicker panics on non-positive durations
		logger.Warn().
			Dur("cleanup_period", period).
			Msg("Invalid cleanup period, falling back to 1h")
		period = 1 * time.Hour
	}

	rc := &RetentionCleaner{
		store:  store,
		logger: logger,
		days:   config.RetentionDays,
		period: period,
		stop:   make(chan struct{}),
	}

	rc.wg.Add(1)
	go rc.loop()

	logger.Info().
		Int("retention_days", rc.days).
		Dur("cleanup_period", period).
		Msg("Retention cleaner started")

	return rc
}

func (rc *RetentionCleaner) loop() {
	defer rc.wg.Done()

	rc.pass()

	ticker := time.NewTicker(rc.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.pass()
		case <-rc.stop:
			rc.logger.Info().Msg("Retention cleaner stopped")
			return
		}
	}
}

// pass deletes one batch of expired snapshots and records the outcome
func (rc *RetentionCleaner) pass() {
	deleted, err := rc.store.DeleteOlderThan(rc.days)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.passes++
	rc.lastPass = time.Now()

	if err != nil {
		rc.logger.Error().Err(err).Msg("Retention pass failed")
		return
	}

	rc.deleted += deleted
	rc.lastDeleted = deleted

	if deleted > 0 {
		rc.logger.Info().
			Int64("deleted", deleted).
			Int("retention_days", rc.days).
			Msg("Pruned expired snapshots")
	} else {
		rc.logger.Debug().
			Int("retention_days", rc.days).
			Msg("Retention pass found nothing to prune")
	}
}

// RunNow triggers an immediate cleanup pass
func (rc *RetentionCleaner) RunNow() {
	rc.pass()
}

// Stop halts the background loop and waits for it to exit
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.stop)
		rc.wg.Wait()
	})
}

// Stats returns current cleaner statistics
func (rc *RetentionCleaner) Stats() RetentionCleanerStats {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return RetentionCleanerStats{
		TotalDeleted:    rc.deleted,
		TotalCleanups:   rc.passes,
		LastCleanup:     rc.lastPass,
		LastDeleteCount: rc.lastDeleted,
		RetentionDays:   rc.days,
	}
}
