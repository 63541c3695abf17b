package host

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"rollback-duel/internal/match"
)

const (
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
)

// LoggedEvent is a match event as stored and written by the EventLog.
type LoggedEvent struct {
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"` // Unix nano
	MatchID   string `json:"matchId"`
	match.Event
}

// EventLogConfig sizes and limits the event log.
type EventLogConfig struct {
	Size  int     // events kept in memory
	Rate  float64 // events per second accepted
	Burst int
	Path  string // JSON-lines file, empty keeps events in memory only
}

// EventLog is a bounded, rate-limited record of match events with an
// optional append-only JSON-lines sink written in batches.
type EventLog struct {
	mu      sync.Mutex
	ring    []LoggedEvent
	head    int // next write position
	count   int
	seq     uint64
	pending []LoggedEvent // not yet flushed to the sink

	limiter *rate.Limiter

	file     *os.File
	writer   *bufio.Writer
	stopChan chan struct{}
	stopOnce sync.Once
	writerWg sync.WaitGroup
	running  atomic.Bool

	dropped atomic.Uint64
	total   atomic.Uint64
}

// NewEventLog creates an event log. Zero values in cfg fall back to defaults.
func NewEventLog(cfg EventLogConfig) *EventLog {
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	return &EventLog{
		ring:     make([]LoggedEvent, cfg.Size),
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		stopChan: make(chan struct{}),
	}
}

// Start opens the sink, if any, and begins the async writer goroutine.
func (el *EventLog) Start(path string) error {
	if el.running.Load() {
		return nil
	}

	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		el.file = file
		el.writer = bufio.NewWriter(file)
	}

	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()
	return nil
}

// Stop flushes pending events and closes the sink.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.mu.Lock()
		defer el.mu.Unlock()
		if el.file != nil {
			el.file.Close()
			el.file = nil
		}
		el.writer = nil
	})
}

// Record stores an event. It returns false when the rate limit rejected it.
// Recording works whether or not the writer was started.
func (el *EventLog) Record(matchID string, ev match.Event) bool {
	if !el.limiter.Allow() {
		el.dropped.Add(1)
		eventLogDropped.Inc()
		return false
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	el.seq++
	entry := LoggedEvent{
		Sequence:  el.seq,
		Timestamp: time.Now().UnixNano(),
		MatchID:   matchID,
		Event:     *ev.Clone(),
	}
	el.ring[el.head] = entry
	el.head = (el.head + 1) % len(el.ring)
	if el.count < len(el.ring) {
		el.count++
	}
	if el.writer != nil && len(el.pending) < cap(el.ring) {
		el.pending = append(el.pending, entry)
	}

	el.total.Add(1)
	eventLogTotal.Inc()
	return true
}

// Recent returns up to n of the newest events, oldest first.
func (el *EventLog) Recent(n int) []LoggedEvent {
	el.mu.Lock()
	defer el.mu.Unlock()

	if n <= 0 || n > el.count {
		n = el.count
	}
	out := make([]LoggedEvent, 0, n)
	start := (el.head - n + len(el.ring)) % len(el.ring)
	for i := 0; i < n; i++ {
		out = append(out, el.ring[(start+i)%len(el.ring)])
	}
	return out
}

// writerLoop batches and writes events to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			el.flush()
			return
		case <-ticker.C:
			el.flush()
		}
	}
}

// flush writes pending events as newline-delimited JSON
func (el *EventLog) flush() {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.writer == nil || len(el.pending) == 0 {
		return
	}

	enc := json.NewEncoder(el.writer)
	for i, entry := range el.pending {
		if i > 0 && i%BatchFlushSize == 0 {
			el.writer.Flush()
		}
		if err := enc.Encode(entry); err != nil {
			continue
		}
	}
	el.writer.Flush()
	el.pending = el.pending[:0]
}

// EventLogStats holds event log metrics
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Stored  int    `json:"stored"`
	Running bool   `json:"running"`
}

// Stats returns metrics for monitoring
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	stored := el.count
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.total.Load(),
		Dropped: el.dropped.Load(),
		Stored:  stored,
		Running: el.running.Load(),
	}
}
