package storage

import (
	"sync"
	"time"

	"github.com/afroash/engine-twin/internal/models"
	"github.com/rs/zerolog"
)

// DBWriter decouples the ingest path from SQLite. Snapshots are queued
// on a buffered channel and written in batches, either when the batch
// fills or when the flush period elapses. Stop drains the queue before
// returning so accepted snapshots are not lost on shutdown.
type DBWriter struct {
	store  *SQLiteStore
	logger zerolog.Logger

	queue       chan *QueuedSnapshot
	batchSize   int
	flushPeriod time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.RWMutex
	written   int64
	batches   int64
	errors    int64
	lastWrite time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int
	FlushPeriod time.Duration
	ChannelSize int
}

// DefaultDBWriterConfig returns sensible defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates the writer and starts its background loop
func NewDBWriter(store *SQLiteStore, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	w := &DBWriter{
		store:       store,
		logger:      logger,
		queue:       make(chan *QueuedSnapshot, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stop:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("Snapshot writer started")

	return w
}

// Queue enqueues a snapshot for persistence. The readings are copied so
// callers may reuse the map. Returns false if the queue is full and the
// snapshot was dropped.
func (w *DBWriter) Queue(vehicleID string, mileage float64, readings models.Snapshot) bool {
	snap := &QueuedSnapshot{
		VehicleID:  vehicleID,
		Mileage:    mileage,
		RecordedAt: time.Now(),
		Readings:   readings.Copy(),
	}

	select {
	case w.queue <- snap:
		return true
	default:
		w.logger.Warn().
			Str("vehicle_id", vehicleID).
			Msg("Write queue full, dropping snapshot")
		return false
	}
}

func (w *DBWriter) run() {
	defer w.wg.Done()

	pending := make([]*QueuedSnapshot, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap := <-w.queue:
			pending = append(pending, snap)
			if len(pending) >= w.batchSize {
				w.flush(pending)
				pending = pending[:0]
			}

		case <-ticker.C:
			if len(pending) > 0 {
				w.flush(pending)
				pending = pending[:0]
			}

		case <-w.stop:
			pending = append(pending, w.drain()...)
			w.flush(pending)
			w.logger.Info().Msg("Snapshot writer stopped")
			return
		}
	}
}

// drain empties whatever is still buffered in the queue
func (w *DBWriter) drain() []*QueuedSnapshot {
	var rest []*QueuedSnapshot
	for {
		select {
		case snap := <-w.queue:
			rest = append(rest, snap)
		default:
			return rest
		}
	}
}

func (w *DBWriter) flush(batch []*QueuedSnapshot) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.errors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Batch write failed")
		return
	}
	w.written += int64(len(batch))
	w.batches++
	w.lastWrite = time.Now()
	w.logger.Debug().Int("count", len(batch)).Msg("Flushed batch")
}

// Stop drains and flushes the queue, then stops the background loop
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.written,
		TotalBatches:  w.batches,
		TotalErrors:   w.errors,
		LastWriteTime: w.lastWrite,
		QueueLength:   len(w.queue),
	}
}
