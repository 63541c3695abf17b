package host

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"rollback-duel/internal/config"
	"rollback-duel/internal/match"
	"rollback-duel/internal/sim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestHost(t *testing.T, damage int) *Host {
	t.Helper()
	hc := config.DefaultHost()
	hc.PlayerA, hc.PlayerB = "p1", "p2"
	hc.SlowTickLogMs = 0

	tun := sim.DefaultTuning()
	tun.SpawnAX, tun.SpawnBX = 400, 450
	tun.AttackDamage = damage

	return New(hc, tun, match.Config{KOTicks: 5, ResetTicks: 5, Stocks: 3})
}

func press(id string, seq uint64, b ...sim.Button) sim.Action {
	return sim.Action{ArenaID: "arena-1", PlayerID: id, Seq: seq, Flags: sim.Press(b...)}
}

// TestNewHostAssignsMatchID verifies every host gets a unique match id
func TestNewHostAssignsMatchID(t *testing.T) {
	a, b := newTestHost(t, 10), newTestHost(t, 10)
	if a.MatchID() == "" || a.MatchID() == b.MatchID() {
		t.Errorf("match ids should be unique, got %q and %q", a.MatchID(), b.MatchID())
	}
	if snap := a.Snapshot(); snap == nil || snap.Phase != match.PhaseLobby {
		t.Errorf("initial snapshot should be in lobby, got %+v", snap)
	}
}

// TestHostStartStop verifies the loop ticks and shuts down cleanly
func TestHostStartStop(t *testing.T) {
	h := newTestHost(t, 10)
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Snapshot().Tick == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	h.Stop()
	h.Stop() // Should not panic on double stop

	if h.Snapshot().Tick == 0 {
		t.Error("loop never advanced the match")
	}
	if h.Stats().Running {
		t.Error("host still reports running")
	}
}

// TestSubmitValidation verifies actions are checked before queueing
func TestSubmitValidation(t *testing.T) {
	hc := config.DefaultHost()
	hc.QueueSize = 1
	h := New(hc, sim.DefaultTuning(), match.DefaultConfig())

	tests := []struct {
		name   string
		action sim.Action
		want   error
	}{
		{"unknown player", sim.Action{PlayerID: "mallory"}, ErrUnknownPlayer},
		{"wrong arena", sim.Action{ArenaID: "elsewhere", PlayerID: "p1"}, ErrWrongArena},
		{"accepted", sim.Action{PlayerID: "p1", Seq: 1}, nil},
		{"queue full", sim.Action{PlayerID: "p2", Seq: 1}, ErrQueueFull},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.Submit(tc.action)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if dropped := h.Stats().Queue.Dropped; dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

// TestStepAppliesAndRelaysActions verifies queued actions reach the match
func TestStepAppliesAndRelaysActions(t *testing.T) {
	h := newTestHost(t, 10)

	var relayed []Relayed
	h.OnAction(func(r Relayed) { relayed = append(relayed, r) })

	if err := h.Submit(press("p2", 1, sim.ButtonRight)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.Step(sim.FixedStepMs)
	pub := h.Step(sim.FixedStepMs)

	if pub.Players["p2"].VX <= 0 {
		t.Errorf("p2 should be moving right, got %+v", pub.Players["p2"])
	}
	if len(relayed) != 1 || relayed[0].Tick != 0 || relayed[0].Action.PlayerID != "p2" {
		t.Errorf("unexpected relays %+v", relayed)
	}
}

// TestLateActionRollsBack verifies a past-tick action is resimulated
func TestLateActionRollsBack(t *testing.T) {
	h := newTestHost(t, 10)
	for i := 0; i < 30; i++ {
		h.Step(sim.FixedStepMs)
	}

	if err := h.SubmitAt(press("p1", 1, sim.ButtonJump), 10); err != nil {
		t.Fatalf("submit: %v", err)
	}
	pub := h.Step(sim.FixedStepMs)

	p1 := pub.Players["p1"]
	if p1.Grounded || p1.Y <= 0 {
		t.Errorf("p1 should be airborne after the late jump, got %+v", p1)
	}
	if pub.Tick != 31 {
		t.Errorf("tick = %d, want 31", pub.Tick)
	}
}

// TestLateActionKeepsHeldInput verifies a rollback during a short tick keeps
// the input latched at the head
func TestLateActionKeepsHeldInput(t *testing.T) {
	h := newTestHost(t, 10)
	for i := 0; i < 10; i++ {
		h.Step(sim.FixedStepMs)
	}

	if err := h.Submit(press("p2", 1, sim.ButtonRight)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.Step(sim.FixedStepMs / 2)

	if err := h.SubmitAt(press("p1", 1, sim.ButtonJump), 5); err != nil {
		t.Fatalf("submit late: %v", err)
	}
	h.Step(sim.FixedStepMs / 2)
	pub := h.Step(sim.FixedStepMs)

	tun := h.ctrl.Timeline().Sim().Tuning()
	if p2 := pub.Players["p2"]; p2.VX <= 0 || p2.X <= tun.SpawnBX {
		t.Errorf("p2 should still be running right, got %+v", p2)
	}
	if p1 := pub.Players["p1"]; p1.Grounded {
		t.Errorf("p1 should be airborne after the late jump, got %+v", p1)
	}
}

// TestDroppedFrameTimeCounted verifies oversized frames are reported
func TestDroppedFrameTimeCounted(t *testing.T) {
	h := newTestHost(t, 10)
	tun := h.ctrl.Timeline().Sim().Tuning()

	h.Step(tun.MaxFrameMs + 250)
	if got := h.Stats().DroppedMs; got != 250 {
		t.Errorf("dropped = %v ms, want 250", got)
	}
}

// TestKOEventRecorded verifies events reach the log and subscribers
func TestKOEventRecorded(t *testing.T) {
	h := newTestHost(t, 100)

	var mu sync.Mutex
	var published []*Published
	h.OnSnapshot(func(p *Published) {
		mu.Lock()
		published = append(published, p)
		mu.Unlock()
	})

	if err := h.Submit(press("p1", 1, sim.ButtonAttack)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	pub := h.Step(sim.FixedStepMs)

	if pub.LastEvent == nil || pub.LastEvent.Type != match.EventTypeKO {
		t.Fatalf("expected ko event, got %+v", pub.LastEvent)
	}

	recent := h.Events().Recent(10)
	if len(recent) != 1 || recent[0].Type != match.EventTypeKO || recent[0].MatchID != h.MatchID() {
		t.Errorf("unexpected log %+v", recent)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0] != pub {
		t.Errorf("subscriber saw %d snapshots", len(published))
	}
}

// TestEventLogRateLimit verifies bursts beyond the limit are dropped
func TestEventLogRateLimit(t *testing.T) {
	el := NewEventLog(EventLogConfig{Size: 4, Rate: 0.001, Burst: 2})
	ev := match.Event{Type: match.EventTypePhase, Phase: match.PhasePlay}

	got := []bool{el.Record("m", ev), el.Record("m", ev), el.Record("m", ev)}
	if !got[0] || !got[1] || got[2] {
		t.Errorf("records = %v, want [true true false]", got)
	}
	if s := el.Stats(); s.Total != 2 || s.Dropped != 1 {
		t.Errorf("stats = %+v", s)
	}
}

// TestEventLogRingKeepsNewest verifies the ring overwrites the oldest entries
func TestEventLogRingKeepsNewest(t *testing.T) {
	el := NewEventLog(EventLogConfig{Size: 3, Rate: 1000, Burst: 1000})
	for tick := int64(1); tick <= 5; tick++ {
		el.Record("m", match.Event{Type: match.EventTypePhase, Tick: tick})
	}

	recent := el.Recent(0)
	if len(recent) != 3 || recent[0].Tick != 3 || recent[2].Tick != 5 {
		t.Errorf("recent = %+v", recent)
	}
	if last := el.Recent(1); len(last) != 1 || last[0].Tick != 5 {
		t.Errorf("last = %+v", last)
	}
}

// TestEventLogSink verifies events are flushed as JSON lines
func TestEventLogSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog(EventLogConfig{})
	if err := el.Start(path); err != nil {
		t.Fatalf("start: %v", err)
	}

	el.Record("m1", match.Event{
		Type:  match.EventTypeKO,
		Tick:  42,
		Phase: match.PhaseKO,
		KO:    &match.KOPayload{Loser: "p2", Winner: "p1", Stocks: map[string]int{"p1": 3, "p2": 2}},
	})
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
		var decoded struct {
			MatchID string `json:"matchId"`
			Type    string `json:"type"`
			Tick    int64  `json:"tick"`
			KO      struct {
				Loser string `json:"loser"`
			} `json:"ko"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if decoded.MatchID != "m1" || decoded.Type != "ko" || decoded.Tick != 42 || decoded.KO.Loser != "p2" {
			t.Errorf("unexpected line %s", scanner.Bytes())
		}
	}
	if lines != 1 {
		t.Errorf("lines = %d, want 1", lines)
	}
}

// TestQueueDrainOrder verifies actions come out in arrival order
func TestQueueDrainOrder(t *testing.T) {
	q := NewActionQueue(8)
	for seq := uint64(1); seq <= 3; seq++ {
		q.Enqueue(Pending{Action: sim.Action{PlayerID: "p1", Seq: seq}, Tick: LiveTick})
	}

	got := q.Drain(nil)
	if len(got) != 3 {
		t.Fatalf("drained %d, want 3", len(got))
	}
	for i, p := range got {
		if p.Action.Seq != uint64(i+1) {
			t.Errorf("position %d has seq %d", i, p.Action.Seq)
		}
	}
	if s := q.Stats(); s.Pending != 0 || s.Drained != 3 {
		t.Errorf("stats = %+v", s)
	}
}
