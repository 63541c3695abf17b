package match

import (
	"encoding/json"
	"errors"
	"testing"

	"rollback-duel/internal/sim"
)

func newTestController(damage int, cfg Config) *Controller {
	tun := sim.DefaultTuning()
	tun.SpawnAX = 400
	tun.SpawnBX = 450
	tun.AttackDamage = damage
	return NewController(sim.NewTimeline(sim.New(1, "a", "b", sim.WithTuning(tun))), cfg)
}

func attack(id string, seq uint64, down bool) sim.Action {
	return sim.Action{PlayerID: id, Seq: seq, Flags: sim.InputFlags{}.With(sim.ButtonAttack, down)}
}

// TestLobbyToPlay verifies the first step starts the match
func TestLobbyToPlay(t *testing.T) {
	c := newTestController(10, DefaultConfig())
	if c.Phase() != PhaseLobby {
		t.Fatalf("initial phase = %s, want lobby", c.Phase())
	}

	snap := c.Step(nil, sim.FixedStepMs)
	if snap.Phase != PhasePlay {
		t.Errorf("phase = %s, want play", snap.Phase)
	}
	if snap.LastEvent == nil || snap.LastEvent.Type != EventTypePhase || snap.LastEvent.Phase != PhasePlay {
		t.Fatalf("expected phase:play event, got %+v", snap.LastEvent)
	}

	if next := c.Step(nil, sim.FixedStepMs); next.LastEvent != nil {
		t.Errorf("event should be edge-triggered, got %+v", next.LastEvent)
	}
}

// TestKOLifecycle verifies play → ko → reset → play with one KO event
func TestKOLifecycle(t *testing.T) {
	cfg := Config{MatchID: "m1", KOTicks: 10, ResetTicks: 5, Stocks: 2}
	c := newTestController(50, cfg)

	var koEvents []*Event
	var seq uint64
	for i := 0; i < 40 && c.Phase() != PhaseKO; i++ {
		seq++
		snap := c.Step([]sim.Action{attack("a", seq, i%2 == 0)}, sim.FixedStepMs)
		if snap.LastEvent != nil && snap.LastEvent.Type == EventTypeKO {
			koEvents = append(koEvents, snap.LastEvent)
		}
	}
	if len(koEvents) != 1 {
		t.Fatalf("ko events = %d, want 1", len(koEvents))
	}

	ko := koEvents[0].KO
	if ko.Loser != "b" || ko.Winner != "a" || ko.Double {
		t.Errorf("unexpected ko payload %+v", ko)
	}
	if ko.Stocks["b"] != 1 || ko.Stocks["a"] != 2 {
		t.Errorf("stocks = %v", ko.Stocks)
	}
	if len(ko.Eliminated) != 0 {
		t.Errorf("nobody should be eliminated yet: %v", ko.Eliminated)
	}

	// Live inputs are withheld while knocked out.
	koTick := c.Timeline().Sim().Tick()
	var events []*Event
	var steps int
	for c.Phase() != PhasePlay && steps < 100 {
		seq++
		snap := c.Step([]sim.Action{{PlayerID: "a", Seq: seq, Flags: sim.Press(sim.ButtonRight)}}, sim.FixedStepMs)
		steps++
		if snap.LastEvent != nil {
			events = append(events, snap.LastEvent)
		}
		if snap.Phase == PhaseKO && snap.Players["a"].VX != 0 {
			t.Fatal("input reached the simulation during ko")
		}
	}

	if len(events) != 2 || events[0].Phase != PhaseReset || events[1].Phase != PhasePlay {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].Tick != koTick+cfg.KOTicks {
		t.Errorf("reset at tick %d, want %d", events[0].Tick, koTick+cfg.KOTicks)
	}
	if steps != int(cfg.KOTicks+cfg.ResetTicks) {
		t.Errorf("steps until play = %d, want %d", steps, cfg.KOTicks+cfg.ResetTicks)
	}

	snap := c.Snapshot()
	tun := c.Timeline().Sim().Tuning()
	for id, x := range map[string]float64{"a": tun.SpawnAX, "b": tun.SpawnBX} {
		p := snap.Players[id]
		if p.HP != tun.MaxHP || p.X != x || p.VX != 0 {
			t.Errorf("%s not at spawn after reset: %+v", id, p)
		}
	}
	if snap.Stocks["b"] != 1 {
		t.Errorf("stocks after reset = %v", snap.Stocks)
	}
}

// TestDoubleKO verifies a simultaneous KO is one event with no winner
func TestDoubleKO(t *testing.T) {
	c := newTestController(100, Config{KOTicks: 5, ResetTicks: 5, Stocks: 3})

	snap := c.Step([]sim.Action{attack("a", 1, true), attack("b", 1, true)}, sim.FixedStepMs)
	ev := snap.LastEvent
	if ev == nil || ev.Type != EventTypeKO {
		t.Fatalf("expected ko event, got %+v", ev)
	}
	if !ev.KO.Double || ev.KO.Winner != "" || len(ev.KO.Losers) != 2 {
		t.Errorf("unexpected payload %+v", ev.KO)
	}
	if snap.Stocks["a"] != 2 || snap.Stocks["b"] != 2 {
		t.Errorf("both stocks should drop: %v", snap.Stocks)
	}
}

// TestKOStopsLongFrame verifies a frame spanning several steps ends play on
// the step the KO lands and keeps the rest of the frame time for ko
func TestKOStopsLongFrame(t *testing.T) {
	c := newTestController(100, Config{KOTicks: 10, ResetTicks: 5, Stocks: 3})
	c.Step(nil, sim.FixedStepMs)

	hit := []sim.Action{
		attack("a", 1, true),
		{PlayerID: "a", Seq: 2, Flags: sim.Press(sim.ButtonRight)},
	}
	snap := c.Step(hit, 6*sim.FixedStepMs)

	ev := snap.LastEvent
	if ev == nil || ev.Type != EventTypeKO {
		t.Fatalf("expected ko event, got %+v", ev)
	}
	if ev.Tick != 2 || snap.Tick != 2 {
		t.Errorf("ko reported at tick %d (snapshot %d), want 2", ev.Tick, snap.Tick)
	}
	if ev.KO.Double || ev.KO.Winner != "a" {
		t.Errorf("unexpected payload %+v", ev.KO)
	}
	if latched := c.Timeline().Sim().State().Controls[0].Latched; latched != 0 {
		t.Errorf("inputs should be released at the ko, latched = %s", latched)
	}

	// The unspent five steps run in ko on the next call.
	if next := c.Step(nil, 0); next.Tick != 7 || next.Phase != PhaseKO {
		t.Errorf("after leftover time: tick %d phase %s, want 7 ko", next.Tick, next.Phase)
	}
}

// TestStocksFloorAtZero verifies elimination is reported and stocks never go negative
func TestStocksFloorAtZero(t *testing.T) {
	c := newTestController(100, Config{KOTicks: 2, ResetTicks: 2, Stocks: 1})

	var seq uint64
	var kos []*KOPayload
	for i := 0; i < 200 && len(kos) < 2; i++ {
		seq++
		snap := c.Step([]sim.Action{attack("a", seq, i%2 == 0)}, sim.FixedStepMs)
		if snap.LastEvent != nil && snap.LastEvent.KO != nil {
			kos = append(kos, snap.LastEvent.KO)
		}
	}
	if len(kos) != 2 {
		t.Fatalf("ko count = %d, want 2", len(kos))
	}
	for i, ko := range kos {
		if ko.Stocks["b"] != 0 {
			t.Errorf("ko %d: b stocks = %d, want 0", i, ko.Stocks["b"])
		}
		if len(ko.Eliminated) != 1 || ko.Eliminated[0] != "b" {
			t.Errorf("ko %d: eliminated = %v", i, ko.Eliminated)
		}
	}
}

// TestCorrectOnlyInRound verifies late actions are scoped to the current round
func TestCorrectOnlyInRound(t *testing.T) {
	c := newTestController(100, Config{KOTicks: 3, ResetTicks: 3, Stocks: 3})
	c.Step(nil, sim.FixedStepMs)
	c.Step(nil, sim.FixedStepMs)

	jump := sim.Action{PlayerID: "b", Seq: 1, Flags: sim.Press(sim.ButtonJump)}
	if _, err := c.Correct(jump, 1); err != nil {
		t.Fatalf("correction in play failed: %v", err)
	}
	if c.Timeline().Sim().Tick() != 2 {
		t.Errorf("tick after correction = %d, want 2", c.Timeline().Sim().Tick())
	}

	c.Step([]sim.Action{attack("a", 1, true)}, sim.FixedStepMs)
	if c.Phase() != PhaseKO {
		t.Fatalf("phase = %s, want ko", c.Phase())
	}
	if _, err := c.Correct(jump, 2); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("err = %v, want ErrNotPlaying", err)
	}

	for c.Phase() != PhasePlay {
		c.Step(nil, sim.FixedStepMs)
	}
	before := c.Timeline().Sim().State()
	if _, err := c.Correct(jump, 2); !errors.Is(err, ErrBeforeRound) {
		t.Errorf("err = %v, want ErrBeforeRound", err)
	}
	if c.Timeline().Sim().State() != before {
		t.Error("rejected correction changed state")
	}
}

// TestHostSnapshotJSON verifies the published shape
func TestHostSnapshotJSON(t *testing.T) {
	c := newTestController(10, Config{MatchID: "m1"})
	snap := c.Step(nil, sim.FixedStepMs)

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		MatchID   string         `json:"matchId"`
		Tick      int64          `json:"tick"`
		Phase     string         `json:"phase"`
		Stocks    map[string]int `json:"stocks"`
		LastEvent *struct {
			Type  string `json:"type"`
			Phase string `json:"phase"`
		} `json:"lastEvent"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.MatchID != "m1" || decoded.Tick != 1 || decoded.Phase != "play" || decoded.Stocks["a"] != 3 {
		t.Errorf("unexpected payload %s", data)
	}
	if decoded.LastEvent == nil || decoded.LastEvent.Type != "phase" || decoded.LastEvent.Phase != "play" {
		t.Errorf("unexpected event in %s", data)
	}

	var back HostSnapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Phase != PhasePlay || back.LastEvent.Type != EventTypePhase {
		t.Errorf("round trip lost enums: %+v", back)
	}
}
