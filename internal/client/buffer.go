package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/engine-twin/internal/models"
)

// SnapshotBuffer is a thread-safe bounded buffer of telemetry snapshots,
// decoupling the simulation clock from the stream connection.
type SnapshotBuffer struct {
	snapshots  []models.Snapshot
	capacity   int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64
	TotalDropped  int64
	HighWaterMark int
	LastPushTime  time.Time
	LastDropTime  time.Time
}

// NewSnapshotBuffer creates a new snapshot buffer with given capacity
func NewSnapshotBuffer(capacity int, dropOldest bool) *SnapshotBuffer {
	return &SnapshotBuffer{
		snapshots:  make([]models.Snapshot, 0, capacity),
		capacity:   capacity,
		dropOldest: dropOldest,
		stats:      BufferStats{},
	}
}

// Push adds a snapshot to the buffer
// Returns true if stored, false if dropped (when full and dropOldest=false)
func (sb *SnapshotBuffer) Push(snapshot models.Snapshot) bool {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	if len(sb.snapshots) >= sb.capacity {
		sb.stats.TotalDropped++
		sb.stats.LastDropTime = time.Now()
		if !sb.dropOldest {
			return false
		}
		sb.snapshots = sb.snapshots[1:]
	}
	sb.snapshots = append(sb.snapshots, snapshot)
	sb.stats.TotalPushed++
	sb.stats.LastPushTime = time.Now()

	if len(sb.snapshots) > sb.stats.HighWaterMark {
		sb.stats.HighWaterMark = len(sb.snapshots)
	}

	return true
}

// PopBatch removes and returns up to n snapshots, oldest first
func (sb *SnapshotBuffer) PopBatch(n int) []models.Snapshot {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	count := min(n, len(sb.snapshots))
	if count == 0 {
		return nil
	}
	result := make([]models.Snapshot, count)
	copy(result, sb.snapshots[:count])
	sb.snapshots = sb.snapshots[count:]
	return result
}

// Peek returns up to n snapshots without removing them
func (sb *SnapshotBuffer) Peek(n int) []models.Snapshot {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	count := min(n, len(sb.snapshots))
	if count == 0 {
		return nil
	}

	result := make([]models.Snapshot, count)
	copy(result, sb.snapshots[:count])
	return result
}

// Size returns the current number of snapshots in the buffer
func (sb *SnapshotBuffer) Size() int {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return len(sb.snapshots)
}

// IsFull returns true if buffer is at capacity
func (sb *SnapshotBuffer) IsFull() bool {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return len(sb.snapshots) >= sb.capacity
}

// IsEmpty returns true if buffer has no snapshots
func (sb *SnapshotBuffer) IsEmpty() bool {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return len(sb.snapshots) == 0
}

// Clear removes all snapshots and resets the statistics
func (sb *SnapshotBuffer) Clear() {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	sb.snapshots = make([]models.Snapshot, 0, sb.capacity)
	sb.stats = BufferStats{}
}

// Capacity returns the maximum capacity of the buffer
func (sb *SnapshotBuffer) Capacity() int {
	// No lock needed, capacity doesn't change
	return sb.capacity
}

// Stats returns a copy of current buffer statistics
func (sb *SnapshotBuffer) Stats() BufferStats {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return sb.stats
}

// String returns a human-readable representation of buffer state
func (sb *SnapshotBuffer) String() string {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	mode := "drop-newest"
	if sb.dropOldest {
		mode = "drop-oldest"
	}

	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		len(sb.snapshots),
		sb.capacity,
		sb.stats.TotalDropped,
		mode,
	)
}
