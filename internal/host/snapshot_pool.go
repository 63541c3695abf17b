package host

import (
	"sync/atomic"
	"time"

	"rollback-duel/internal/match"
)

// Published is an immutable snapshot handed to readers.
type Published struct {
	Sequence  uint64    `json:"sequence"`    // Monotonic sequence for ordering
	Timestamp time.Time `json:"publishedAt"` // When the snapshot was published
	match.HostSnapshot
}

// SnapshotPool hands the latest host snapshot from the tick goroutine to any
// number of readers without locking. A published value is never written
// again; the producer swaps in a new pointer each tick.
type SnapshotPool struct {
	latest   atomic.Pointer[Published]
	sequence atomic.Uint64
}

// NewSnapshotPool creates an empty pool.
func NewSnapshotPool() *SnapshotPool {
	return &SnapshotPool{}
}

// Publish makes snap the latest snapshot. The caller must not mutate snap
// (or the maps inside it) afterwards.
func (p *SnapshotPool) Publish(snap match.HostSnapshot) *Published {
	pub := &Published{
		Sequence:     p.sequence.Add(1),
		Timestamp:    time.Now(),
		HostSnapshot: snap,
	}
	p.latest.Store(pub)
	return pub
}

// Latest returns the most recent snapshot, or nil before the first publish.
// Readers must treat the result as read-only.
func (p *SnapshotPool) Latest() *Published {
	return p.latest.Load()
}
