package sim

import (
	"encoding/json"
	"math"
	"testing"
)

func closeRangeTuning() Tuning {
	t := DefaultTuning()
	t.SpawnAX = 400
	t.SpawnBX = 450
	return t
}

func press(id string, seq uint64, b ...Button) Action {
	return Action{PlayerID: id, Seq: seq, Flags: Press(b...)}
}

func release(id string, seq uint64, b ...Button) Action {
	return Action{PlayerID: id, Seq: seq, Flags: Release(b...)}
}

// TestNewSpawnsMirrored verifies the initial state of a match
func TestNewSpawnsMirrored(t *testing.T) {
	s := New(1, "a", "b")
	tun := s.Tuning()
	snap := s.Snapshot()

	if snap.Tick != 0 || snap.TMs != 0 {
		t.Fatalf("expected tick 0 at t=0, got tick %d t=%v", snap.Tick, snap.TMs)
	}

	a, b := snap.Players["a"], snap.Players["b"]
	if a.X != tun.SpawnAX || b.X != tun.SpawnBX {
		t.Errorf("spawn X mismatch: a=%v b=%v", a.X, b.X)
	}
	if a.Facing != 1 || b.Facing != -1 {
		t.Errorf("players should face each other: a=%d b=%d", a.Facing, b.Facing)
	}
	for id, p := range snap.Players {
		if p.HP != tun.MaxHP || !p.Grounded || p.NextAttackAtMs != 0 {
			t.Errorf("%s should spawn idle with full HP: %+v", id, p)
		}
	}
}

// TestSnapshotIsIndependent verifies callers cannot mutate the simulation
func TestSnapshotIsIndependent(t *testing.T) {
	s := New(1, "a", "b")
	snap := s.Snapshot()
	p := snap.Players["a"]
	p.HP = 1
	snap.Players["a"] = p
	delete(snap.Players, "b")

	again := s.Snapshot()
	if again.Players["a"].HP != s.Tuning().MaxHP {
		t.Error("snapshot mutation leaked into the simulation")
	}
	if _, ok := again.Players["b"]; !ok {
		t.Error("deleting from a snapshot removed a player")
	}

	clone := again.Clone()
	delete(clone.Players, "a")
	if _, ok := again.Players["a"]; !ok {
		t.Error("Clone shares its map with the original")
	}
}

// TestApplyActionsAccumulator verifies fixed steps and carried remainder
func TestApplyActionsAccumulator(t *testing.T) {
	tests := []struct {
		name  string
		dts   []float64
		steps []int
	}{
		{"exact frame", []float64{FixedStepMs}, []int{1}},
		{"remainder carried", []float64{FixedStepMs * 2.5, FixedStepMs * 0.5}, []int{2, 1}},
		{"sub-step frames", []float64{5, 5, 5, 5}, []int{0, 0, 0, 1}},
		{"negative ignored", []float64{-100}, []int{0}},
		{"NaN ignored", []float64{math.NaN()}, []int{0}},
		{"huge frame clamped", []float64{1e9}, []int{180}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(1, "a", "b")
			for i, dt := range tc.dts {
				if got := s.ApplyActions(nil, dt); got != tc.steps[i] {
					t.Errorf("frame %d: steps = %d, want %d", i, got, tc.steps[i])
				}
			}
		})
	}
}

// TestDroppedFrameTime verifies time cut by the frame clamp is counted
func TestDroppedFrameTime(t *testing.T) {
	s := New(1, "a", "b")
	s.ApplyActions(nil, FixedStepMs)
	if s.DroppedMs() != 0 {
		t.Errorf("dropped = %v after a normal frame", s.DroppedMs())
	}

	s.ApplyActions(nil, s.Tuning().MaxFrameMs+500)
	s.ApplyActions(nil, s.Tuning().MaxFrameMs+100)
	if got := s.DroppedMs(); got != 600 {
		t.Errorf("dropped = %v, want 600", got)
	}
}

// TestApplyActionsUntilStops verifies stepping halts when stop reports true
// and the unspent time runs on the next call
func TestApplyActionsUntilStops(t *testing.T) {
	s := New(1, "a", "b")
	stop := func() bool { return s.Tick() == 2 }

	if got := s.ApplyActionsUntil(nil, 5*FixedStepMs, stop); got != 2 || s.Tick() != 2 {
		t.Fatalf("steps = %d tick = %d, want 2 and 2", got, s.Tick())
	}
	if got := s.ApplyActions(nil, 0); got != 3 || s.Tick() != 5 {
		t.Errorf("leftover steps = %d tick = %d, want 3 and 5", got, s.Tick())
	}
}

// TestSnapshotTimeFromTick verifies tMs is derived from the tick count
func TestSnapshotTimeFromTick(t *testing.T) {
	s := New(1, "a", "b")
	s.StepTicks(nil, 600)
	snap := s.Snapshot()
	if snap.Tick != 600 {
		t.Fatalf("tick = %d, want 600", snap.Tick)
	}
	if math.Abs(snap.TMs-10000) > 1e-6 {
		t.Errorf("tMs = %v, want 10000", snap.TMs)
	}
}

// TestInputOverlay verifies partial updates leave unspecified buttons alone
func TestInputOverlay(t *testing.T) {
	var f InputFlags
	if err := json.Unmarshal([]byte(`{"left":true,"attack":false}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := f.Overlay(ButtonRight | ButtonJump | ButtonAttack)
	want := ButtonLeft | ButtonRight | ButtonJump
	if got != want {
		t.Errorf("overlay = %s, want %s", got, want)
	}
	if f.Overlay(got) != got {
		t.Error("overlay is not idempotent")
	}

	data, err := json.Marshal(Press(ButtonJump))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"jump":true}` {
		t.Errorf("marshal = %s", data)
	}
}

// TestButtonPhaseEdges verifies press edges are seen exactly once
func TestButtonPhaseEdges(t *testing.T) {
	downs := []bool{true, true, false, false, true}
	want := []ButtonPhase{ButtonJustPressed, ButtonHeld, ButtonJustReleased, ButtonIdle, ButtonJustPressed}

	p := ButtonIdle
	for i, d := range downs {
		p = p.Next(d)
		if p != want[i] {
			t.Errorf("step %d: phase = %s, want %s", i, p, want[i])
		}
	}
}

// TestStaleSequenceDropped verifies older actions never override newer ones
func TestStaleSequenceDropped(t *testing.T) {
	s := New(1, "a", "b")
	s.ApplyActions([]Action{press("a", 5, ButtonRight)}, 0)
	s.ApplyActions([]Action{release("a", 3, ButtonRight)}, 0)

	if got := s.State().Controls[0].Latched; got != ButtonRight {
		t.Errorf("latched = %s, want right", got)
	}

	// Same batch, out of order: highest seq wins.
	s.ApplyActions([]Action{release("a", 7, ButtonRight), press("a", 6, ButtonLeft, ButtonRight)}, 0)
	if got := s.State().Controls[0].Latched; got != ButtonLeft {
		t.Errorf("latched = %s, want left", got)
	}
}

// TestUnknownPlayerIgnored verifies actions for strangers are dropped
func TestUnknownPlayerIgnored(t *testing.T) {
	s := New(1, "a", "b")
	before := s.State()
	s.ApplyActions([]Action{press("mallory", 1, ButtonRight)}, 0)
	if s.State() != before {
		t.Error("action for unknown player changed state")
	}
}

// TestArenaBounds verifies players stay inside the arena against the wall
func TestArenaBounds(t *testing.T) {
	s := New(1, "a", "b")
	s.StepTicks([]Action{press("a", 1, ButtonRight, ButtonJump), press("b", 1, ButtonLeft)}, 600)

	tun := s.Tuning()
	a := s.Snapshot().Players["a"]
	b := s.Snapshot().Players["b"]

	if a.X != tun.ArenaWidth || a.VX != 0 {
		t.Errorf("a should rest against the right wall, got x=%v vx=%v", a.X, a.VX)
	}
	if b.X != 0 || b.VX != 0 {
		t.Errorf("b should rest against the left wall, got x=%v vx=%v", b.X, b.VX)
	}
	if a.Y != 0 || !a.Grounded {
		t.Errorf("holding jump should not keep a airborne, got y=%v", a.Y)
	}
}

// TestRunSpeedCapped verifies horizontal speed never exceeds the cap
func TestRunSpeedCapped(t *testing.T) {
	s := New(1, "a", "b")
	s.StepTicks([]Action{press("a", 1, ButtonLeft)}, 20)
	if vx := s.Snapshot().Players["a"].VX; vx != -s.Tuning().MaxRunSpeed {
		t.Errorf("vx = %v, want %v", vx, -s.Tuning().MaxRunSpeed)
	}

	s.StepTicks([]Action{release("a", 2, ButtonLeft)}, 60)
	if vx := s.Snapshot().Players["a"].VX; vx != 0 {
		t.Errorf("friction should stop the player, vx = %v", vx)
	}
}

// TestJumpArc verifies a jump leaves the floor and lands again
func TestJumpArc(t *testing.T) {
	s := New(1, "a", "b")
	s.StepTicks([]Action{press("a", 1, ButtonJump)}, 1)

	a := s.Snapshot().Players["a"]
	if a.Grounded || a.Y <= 0 || a.VY <= 0 {
		t.Fatalf("expected a rising player after jump, got %+v", a)
	}

	landed := false
	for i := 0; i < 120; i++ {
		s.StepTicks(nil, 1)
		if s.Snapshot().Players["a"].Grounded {
			landed = true
			break
		}
	}
	if !landed {
		t.Error("player never landed")
	}
}

// TestAttackHitsOncePerPress verifies holding attack cannot hit repeatedly
func TestAttackHitsOncePerPress(t *testing.T) {
	s := New(1, "a", "b", WithTuning(closeRangeTuning()))
	s.StepTicks([]Action{press("a", 1, ButtonAttack)}, 60)

	if hp := s.Snapshot().Players["b"].HP; hp != 90 {
		t.Errorf("b HP = %d, want 90", hp)
	}
	if hp := s.Snapshot().Players["a"].HP; hp != 100 {
		t.Errorf("a HP = %d, want 100", hp)
	}
}

// TestAttackCooldown verifies mashing is limited by the cooldown
func TestAttackCooldown(t *testing.T) {
	s := New(1, "a", "b", WithTuning(closeRangeTuning()))
	for i := 0; i < 60; i++ {
		seq := uint64(i + 1)
		if i%2 == 0 {
			s.StepTicks([]Action{press("a", seq, ButtonAttack)}, 1)
		} else {
			s.StepTicks([]Action{release("a", seq, ButtonAttack)}, 1)
		}
	}

	// Presses at ticks 0, 24 and 48 clear the 400ms cooldown.
	if hp := s.Snapshot().Players["b"].HP; hp != 70 {
		t.Errorf("b HP = %d, want 70", hp)
	}
}

// TestAttackOutOfRange verifies distant players cannot be hit
func TestAttackOutOfRange(t *testing.T) {
	s := New(1, "a", "b")
	s.StepTicks([]Action{press("a", 1, ButtonAttack)}, 10)
	if hp := s.Snapshot().Players["b"].HP; hp != 100 {
		t.Errorf("b HP = %d, want 100", hp)
	}
}

// TestHPFloorsAtZero verifies damage never drives HP negative
func TestHPFloorsAtZero(t *testing.T) {
	tun := closeRangeTuning()
	tun.AttackDamage = 150
	s := New(1, "a", "b", WithTuning(tun))
	s.StepTicks([]Action{press("a", 1, ButtonAttack)}, 1)
	if hp := s.Snapshot().Players["b"].HP; hp != 0 {
		t.Errorf("b HP = %d, want 0", hp)
	}
}

// TestInvalidTuningIgnored verifies a broken tuning falls back to defaults
func TestInvalidTuningIgnored(t *testing.T) {
	bad := DefaultTuning()
	bad.FixedStepMs = 0
	if bad.Validate() == nil {
		t.Fatal("expected validation error")
	}
	s := New(1, "a", "b", WithTuning(bad))
	if s.Tuning() != DefaultTuning() {
		t.Error("invalid tuning was applied")
	}
}

// TestResetPlayers verifies a reset restores spawns but keeps the tick
func TestResetPlayers(t *testing.T) {
	s := New(1, "a", "b", WithTuning(closeRangeTuning()))
	s.StepTicks([]Action{press("a", 1, ButtonAttack, ButtonRight)}, 30)
	s.ResetPlayers()

	snap := s.Snapshot()
	if snap.Tick != 30 {
		t.Errorf("tick = %d, want 30", snap.Tick)
	}
	if snap.Players["b"].HP != 100 || snap.Players["a"].X != 400 {
		t.Errorf("players not reset: %+v", snap.Players)
	}
	if s.State().Controls[0].Latched != 0 {
		t.Error("latched inputs should be released")
	}
}
