package host

import (
	"log"
	"sync/atomic"
	"time"

	"rollback-duel/internal/sim"
)

// LiveTick marks a pending action that should be latched at the host's
// current tick rather than corrected into the past.
const LiveTick int64 = -1

// Pending is an action waiting for the next host tick.
type Pending struct {
	Action     sim.Action
	Tick       int64 // tick the sender meant it for, LiveTick for "now"
	ReceivedAt time.Time
}

// ActionQueue decouples network handlers from the tick loop. Enqueue never
// blocks: when the buffer is full the action is dropped and counted, since a
// stalled handler would hurt more than a lost input the client will resend.
type ActionQueue struct {
	actions chan Pending

	// Metrics
	enqueued    atomic.Uint64
	drained     atomic.Uint64
	dropped     atomic.Uint64
	avgWaitTime atomic.Int64 // nanoseconds, exponential moving average
}

// NewActionQueue creates a queue holding up to size pending actions.
func NewActionQueue(size int) *ActionQueue {
	if size <= 0 {
		size = 1024
	}
	return &ActionQueue{actions: make(chan Pending, size)}
}

// Enqueue adds an action (non-blocking).
// Returns true if enqueued, false if the queue is full and the action was dropped.
func (q *ActionQueue) Enqueue(p Pending) bool {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}

	select {
	case q.actions <- p:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		queueDropped.Inc()
		if q.dropped.Load()%100 == 1 {
			log.Printf("⚠️ ActionQueue full, dropped action from %s (total dropped: %d)",
				p.Action.PlayerID, q.dropped.Load())
		}
		return false
	}
}

// Drain removes everything currently queued, oldest first, appending to buf.
// It never waits for new actions.
func (q *ActionQueue) Drain(buf []Pending) []Pending {
	for {
		select {
		case p := <-q.actions:
			q.updateAvgWaitTime(time.Since(p.ReceivedAt))
			q.drained.Add(1)
			buf = append(buf, p)
		default:
			return buf
		}
	}
}

// updateAvgWaitTime updates exponential moving average
func (q *ActionQueue) updateAvgWaitTime(wait time.Duration) {
	current := q.avgWaitTime.Load()
	q.avgWaitTime.Store((current*9 + wait.Nanoseconds()) / 10)
}

// Stats returns current queue statistics
func (q *ActionQueue) Stats() QueueStats {
	return QueueStats{
		Enqueued:       q.enqueued.Load(),
		Drained:        q.drained.Load(),
		Dropped:        q.dropped.Load(),
		Pending:        uint64(len(q.actions)),
		BufferSize:     uint64(cap(q.actions)),
		AvgWaitTimeMs:  float64(q.avgWaitTime.Load()) / 1e6,
		BufferUsagePct: float64(len(q.actions)) / float64(cap(q.actions)) * 100,
	}
}

// QueueStats holds queue metrics
type QueueStats struct {
	Enqueued       uint64  `json:"enqueued"`
	Drained        uint64  `json:"drained"`
	Dropped        uint64  `json:"dropped"`
	Pending        uint64  `json:"pending"`
	BufferSize     uint64  `json:"buffer_size"`
	AvgWaitTimeMs  float64 `json:"avg_wait_time_ms"`
	BufferUsagePct float64 `json:"buffer_usage_pct"`
}
