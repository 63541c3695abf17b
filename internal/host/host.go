// Package host runs the authoritative match loop: it drains queued actions,
// applies late ones through rollback, steps the match at a fixed rate and
// publishes the resulting snapshots and events.
package host

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollback-duel/internal/config"
	"rollback-duel/internal/match"
	"rollback-duel/internal/sim"
)

var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrWrongArena    = errors.New("action for another arena")
	ErrQueueFull     = errors.New("action queue full")
)

// Relayed is an accepted action together with the host tick it was applied
// at, as forwarded to peers so they can reconcile their predictions.
type Relayed struct {
	Action sim.Action `json:"action"`
	Tick   int64      `json:"tick"`
}

// Stats is a point-in-time view of the host for diagnostics.
type Stats struct {
	MatchID   string        `json:"matchId"`
	Tick      int64         `json:"tick"`
	Phase     match.Phase   `json:"phase"`
	Running   bool          `json:"running"`
	DroppedMs float64       `json:"droppedMs"` // frame time lost to the MaxFrameMs clamp
	Queue     QueueStats    `json:"queue"`
	EventLog  EventLogStats `json:"eventLog"`
}

// Host owns one match and is its only tick driver.
type Host struct {
	cfg config.HostConfig

	mu       sync.Mutex // guards ctrl and the tick bookkeeping
	ctrl     *match.Controller
	lastTick time.Time
	ticks    uint64
	batch    []sim.Action
	drained  []Pending

	queue  *ActionQueue
	pool   *SnapshotPool
	events *EventLog

	subMu        sync.RWMutex
	snapshotSubs []func(*Published)
	actionSubs   []func(Relayed)

	runMu    sync.Mutex
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	loopWg   sync.WaitGroup
}

// New creates a host for one match. A fresh match id is generated when mc
// has none.
func New(hc config.HostConfig, tuning sim.Tuning, mc match.Config) *Host {
	if hc.TickRate <= 0 {
		hc.TickRate = config.DefaultHost().TickRate
	}
	if hc.PublishEvery <= 0 {
		hc.PublishEvery = 1
	}
	if mc.MatchID == "" {
		mc.MatchID = uuid.NewString()
	}

	s := sim.New(hc.Seed, hc.PlayerA, hc.PlayerB, sim.WithTuning(tuning))
	ctrl := match.NewController(sim.NewTimeline(s), mc)

	h := &Host{
		cfg:   hc,
		ctrl:  ctrl,
		queue: NewActionQueue(hc.QueueSize),
		pool:  NewSnapshotPool(),
		events: NewEventLog(EventLogConfig{
			Size:  hc.EventLogSize,
			Rate:  hc.EventRate,
			Burst: hc.EventBurst,
		}),
	}
	h.pool.Publish(ctrl.Snapshot())
	return h
}

// MatchID returns the match identifier.
func (h *Host) MatchID() string { return h.ctrl.MatchID() }

// ArenaID returns the arena this host serves.
func (h *Host) ArenaID() string { return h.cfg.ArenaID }

// Players returns the two player ids.
func (h *Host) Players() [2]string {
	return [2]string{h.cfg.PlayerA, h.cfg.PlayerB}
}

// TickRate returns the outer loop frequency.
func (h *Host) TickRate() int { return h.cfg.TickRate }

// Events returns the match event log.
func (h *Host) Events() *EventLog { return h.events }

// RecentEvents returns up to n of the newest match events, oldest first.
func (h *Host) RecentEvents(n int) []LoggedEvent { return h.events.Recent(n) }

// Start begins the game loop
func (h *Host) Start() error {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running {
		return nil
	}

	if err := h.events.Start(h.cfg.EventLogPath); err != nil {
		return err
	}

	h.running = true
	h.stopChan = make(chan struct{})
	h.ticker = time.NewTicker(time.Second / time.Duration(h.cfg.TickRate))

	h.loopWg.Add(1)
	go h.loop(h.ticker, h.stopChan)

	log.Printf("🎮 Match %s started at %d TPS (%s vs %s)", h.MatchID(), h.cfg.TickRate, h.cfg.PlayerA, h.cfg.PlayerB)
	return nil
}

// Stop stops the game loop and waits for it to exit
func (h *Host) Stop() {
	h.runMu.Lock()
	if !h.running {
		h.runMu.Unlock()
		return
	}
	h.running = false
	h.ticker.Stop()
	close(h.stopChan)
	h.runMu.Unlock()

	h.loopWg.Wait()
	h.events.Stop()
	log.Println("🛑 Match loop stopped")
}

func (h *Host) loop(ticker *time.Ticker, stop <-chan struct{}) {
	defer h.loopWg.Done()
	for {
		select {
		case now := <-ticker.C:
			h.tick(now)
		case <-stop:
			return
		}
	}
}

// Submit queues a live action for the next tick.
func (h *Host) Submit(a sim.Action) error {
	return h.SubmitAt(a, LiveTick)
}

// SubmitAt queues an action meant for a specific tick. Ticks in the past are
// corrected through rollback; LiveTick or future ticks are latched on arrival.
func (h *Host) SubmitAt(a sim.Action, tick int64) error {
	if a.ArenaID != "" && a.ArenaID != h.cfg.ArenaID {
		return fmt.Errorf("%w: %q", ErrWrongArena, a.ArenaID)
	}
	if a.PlayerID != h.cfg.PlayerA && a.PlayerID != h.cfg.PlayerB {
		return fmt.Errorf("%w: %q", ErrUnknownPlayer, a.PlayerID)
	}
	if !h.queue.Enqueue(Pending{Action: a, Tick: tick}) {
		return ErrQueueFull
	}
	return nil
}

// OnSnapshot registers a callback invoked with each published snapshot.
// Callbacks run on the tick goroutine and must not block.
func (h *Host) OnSnapshot(fn func(*Published)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.snapshotSubs = append(h.snapshotSubs, fn)
}

// OnAction registers a callback invoked with every applied action.
func (h *Host) OnAction(fn func(Relayed)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.actionSubs = append(h.actionSubs, fn)
}

// Snapshot returns the latest published snapshot. Treat it as read-only.
func (h *Host) Snapshot() *Published {
	return h.pool.Latest()
}

// Stats returns diagnostics for the API.
func (h *Host) Stats() Stats {
	snap := h.pool.Latest()
	h.runMu.Lock()
	running := h.running
	h.runMu.Unlock()

	h.mu.Lock()
	dropped := h.ctrl.Timeline().Sim().DroppedMs()
	h.mu.Unlock()

	return Stats{
		MatchID:   h.MatchID(),
		Tick:      snap.Tick,
		Phase:     snap.Phase,
		Running:   running,
		DroppedMs: dropped,
		Queue:     h.queue.Stats(),
		EventLog:  h.events.Stats(),
	}
}

// Step runs one host tick synchronously with the given elapsed time. The
// ticker loop uses wall-clock time; tests and tools drive it directly.
func (h *Host) Step(dtMs float64) *Published {
	return h.step(dtMs)
}

func (h *Host) tick(now time.Time) {
	h.mu.Lock()
	dtMs := 1000.0 / float64(h.cfg.TickRate)
	if !h.lastTick.IsZero() {
		dtMs = float64(now.Sub(h.lastTick).Microseconds()) / 1000
	}
	h.lastTick = now
	h.mu.Unlock()

	h.step(dtMs)
}

func (h *Host) step(dtMs float64) *Published {
	start := time.Now()

	h.mu.Lock()
	h.drained = h.queue.Drain(h.drained[:0])
	h.batch = h.batch[:0]
	var relayed []Relayed

	headBefore := h.ctrl.Timeline().Sim().Tick()
	for _, p := range h.drained {
		if p.Tick == LiveTick || p.Tick >= headBefore {
			h.batch = append(h.batch, p.Action)
			continue
		}
		if r, ok := h.correct(p); ok {
			relayed = append(relayed, r)
		}
	}

	head := h.ctrl.Timeline().Sim().Tick()
	live := h.ctrl.Phase() == match.PhasePlay || h.ctrl.Phase() == match.PhaseLobby
	if live {
		for _, a := range h.batch {
			relayed = append(relayed, Relayed{Action: a, Tick: head})
		}
		actionsApplied.Add(float64(len(h.batch)))
	}

	droppedBefore := h.ctrl.Timeline().Sim().DroppedMs()
	snap := h.ctrl.Step(h.batch, dtMs)
	if dropped := h.ctrl.Timeline().Sim().DroppedMs() - droppedBefore; dropped > 0 {
		frameTimeDropped.Add(dropped)
		log.Printf("⚠️ Tick took %.0fms, %.0fms of match time skipped", dtMs, dropped)
	}
	h.ticks++
	publish := h.ticks%uint64(h.cfg.PublishEvery) == 0 || snap.LastEvent != nil
	h.mu.Unlock()

	if ev := snap.LastEvent; ev != nil {
		h.handleEvent(snap.MatchID, ev)
	}
	currentPhase.Set(float64(snap.Phase))

	pub := h.pool.Publish(snap)
	recordTick(time.Since(start), int(snap.Tick-head))

	if elapsed := time.Since(start); h.cfg.SlowTickLogMs > 0 && float64(elapsed.Microseconds())/1000 > h.cfg.SlowTickLogMs {
		log.Printf("⚠️ Slow tick %d: %.2fms", snap.Tick, float64(elapsed.Microseconds())/1000)
	}

	h.subMu.RLock()
	defer h.subMu.RUnlock()
	for _, r := range relayed {
		for _, fn := range h.actionSubs {
			fn(r)
		}
	}
	if publish {
		for _, fn := range h.snapshotSubs {
			fn(pub)
		}
	}
	return pub
}

// correct applies one late action. Called with h.mu held.
func (h *Host) correct(p Pending) (Relayed, bool) {
	res, err := h.ctrl.Correct(p.Action, p.Tick)
	switch {
	case errors.Is(err, match.ErrNotPlaying):
		correctionsRejected.WithLabelValues("not_playing").Inc()
		return Relayed{}, false
	case errors.Is(err, match.ErrBeforeRound):
		correctionsRejected.WithLabelValues("previous_round").Inc()
		return Relayed{}, false
	case res.Skipped:
		rollbacksSkipped.Inc()
		log.Printf("⏪ Rollback to tick %d skipped for %s: beyond history (head %d)", p.Tick, p.Action.PlayerID, res.From)
		return Relayed{}, false
	}

	if res.Rewound() {
		rollbacks.Inc()
		rollbackDepth.Observe(float64(res.From - res.To))
	}
	actionsApplied.Inc()
	return Relayed{Action: p.Action, Tick: p.Tick}, true
}

func (h *Host) handleEvent(matchID string, ev *match.Event) {
	h.events.Record(matchID, *ev)

	switch ev.Type {
	case match.EventTypeKO:
		knockouts.Inc()
		ko := ev.KO
		if ko.Double {
			log.Printf("💀 Double KO at tick %d! Stocks: %v", ev.Tick, ko.Stocks)
		} else {
			log.Printf("💀 %s knocked out by %s at tick %d! Stocks: %v", ko.Loser, ko.Winner, ev.Tick, ko.Stocks)
		}
		for _, id := range ko.Eliminated {
			log.Printf("🏁 %s has no stocks left", id)
		}
	case match.EventTypePhase:
		log.Printf("🔔 Match %s entered %s at tick %d", matchID, ev.Phase, ev.Tick)
	}
}
