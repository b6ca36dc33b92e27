// Package stats keeps an observer's view of the engine statistics up to date
// by periodically pulling snapshots from the engine.
package stats

import (
	"fmt"
	"time"
)

// Snapshot is one consistent read of the engine statistics
type Snapshot struct {
	// Cumulative counters
	Processed  uint64
	Dropped    uint64
	Delayed    uint64
	Duplicated uint64
	Tampered   uint64
	OutOfOrder uint64
	// Packets currently pending in the engine queue
	QueueSize uint64
	// Running is the run flag reported by the engine
	Running bool
	// At is the time the snapshot was applied. Zero if never applied.
	At time.Time
}

// Reset returns a snapshot with all counters and the queue size set to zero.
// The run flag is kept.
func (s Snapshot) Reset(at time.Time) Snapshot {
	return Snapshot{Running: s.Running, At: at}
}

// Counters returns the counters indexed by the names used by the engine
func (s Snapshot) Counters() map[string]uint64 {
	return map[string]uint64{
		"processed":    s.Processed,
		"dropped":      s.Dropped,
		"delayed":      s.Delayed,
		"duplicated":   s.Duplicated,
		"tampered":     s.Tampered,
		"out_of_order": s.OutOfOrder,
		"queue_size":   s.QueueSize,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"processed=%d dropped=%d delayed=%d duplicated=%d tampered=%d out_of_order=%d queue_size=%d running=%t",
		s.Processed,
		s.Dropped,
		s.Delayed,
		s.Duplicated,
		s.Tampered,
		s.OutOfOrder,
		s.QueueSize,
		s.Running,
	)
}
