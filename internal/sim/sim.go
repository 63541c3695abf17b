package sim

import (
	"math"
	"sort"
)

// Sim is a two-player duel stepped in fixed increments.
// A Sim must be driven by a single goroutine; it has no locking of its own.
type Sim struct {
	ids    [2]string
	seed   int64
	tuning Tuning

	state       State
	history     *History
	accumulator float64
	droppedMs   float64

	rewindSkipped bool
}

// Option customises a Sim at construction.
type Option func(*Sim)

// WithTuning replaces the default tuning. Invalid tunings are ignored so a
// bad configuration can never produce an unusable simulation.
func WithTuning(t Tuning) Option {
	return func(s *Sim) {
		if t.Validate() == nil {
			s.tuning = t
		}
	}
}

// WithRetention overrides how many milliseconds of history are kept.
func WithRetention(ms float64) Option {
	return func(s *Sim) {
		if ms > 0 && !math.IsInf(ms, 0) {
			s.tuning.RetentionMs = ms
		}
	}
}

// New spawns playerA and playerB at mirrored positions facing each other,
// idle, at full health and with no cooldown. The two ids keep their slots for
// the lifetime of the match.
func New(seed int64, playerA, playerB string, opts ...Option) *Sim {
	s := &Sim{
		ids:    [2]string{playerA, playerB},
		seed:   seed,
		tuning: DefaultTuning(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.state = State{
		Players: [2]PlayerState{
			spawnState(s.tuning, s.tuning.SpawnAX, 1),
			spawnState(s.tuning, s.tuning.SpawnBX, -1),
		},
	}
	s.history = NewHistory(s.tuning.historyCapacity())
	s.history.Push(s.state)
	return s
}

// Players returns the two player ids in step order.
func (s *Sim) Players() [2]string { return s.ids }

// Seed returns the seed the match was created with.
func (s *Sim) Seed() int64 { return s.seed }

// Tuning returns the parameters the simulation runs with.
func (s *Sim) Tuning() Tuning { return s.tuning }

// Tick returns the current tick.
func (s *Sim) Tick() int64 { return s.state.Tick }

// Index returns the slot of a player id, or -1 for unknown ids.
func (s *Sim) Index(id string) int {
	for i, known := range s.ids {
		if known == id {
			return i
		}
	}
	return -1
}

// State returns a copy of the full internal state.
func (s *Sim) State() State { return s.state }

// Snapshot returns an independent copy of the visible state.
func (s *Sim) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:    s.state.Tick,
		TMs:     s.tuning.timeAt(s.state.Tick),
		Players: make(map[string]PlayerState, len(s.ids)),
	}
	for i, id := range s.ids {
		snap.Players[id] = s.state.Players[i]
	}
	return snap
}

// ApplyActions overlays the actions onto the latched inputs, adds dtMs to the
// accumulator and runs as many fixed steps as it allows. The remainder is
// carried to the next call. It returns the number of steps executed.
func (s *Sim) ApplyActions(actions []Action, dtMs float64) int {
	return s.ApplyActionsUntil(actions, dtMs, nil)
}

// ApplyActionsUntil is ApplyActions that checks stop after every fixed step
// and returns early once it reports true. Unspent time stays in the
// accumulator for the next call. A nil stop never stops.
func (s *Sim) ApplyActionsUntil(actions []Action, dtMs float64, stop func() bool) int {
	s.latch(actions)

	if !(dtMs > 0) { // also rejects NaN
		dtMs = 0
	}
	if dtMs > s.tuning.MaxFrameMs {
		s.droppedMs += dtMs - s.tuning.MaxFrameMs
		dtMs = s.tuning.MaxFrameMs
	}
	s.accumulator += dtMs

	steps := 0
	for s.accumulator+accumulatorEpsilon >= s.tuning.FixedStepMs {
		s.accumulator -= s.tuning.FixedStepMs
		s.step()
		steps++
		if stop != nil && stop() {
			break
		}
	}
	if s.accumulator < 0 {
		s.accumulator = 0
	}
	return steps
}

// DroppedMs returns the total frame time discarded because single frames
// exceeded MaxFrameMs. That time was never simulated.
func (s *Sim) DroppedMs() float64 { return s.droppedMs }

// StepTicks overlays the actions and runs exactly n fixed steps without
// touching the accumulator. Resimulation uses it to replay history tick by tick.
func (s *Sim) StepTicks(actions []Action, n int) {
	s.latch(actions)
	for i := 0; i < n; i++ {
		s.step()
	}
}

// latch merges actions into the latched input of their player, in ascending
// Seq per player. Unknown players and sequence numbers older than the last
// applied one are dropped; re-applying the latest one is harmless.
func (s *Sim) latch(actions []Action) {
	if len(actions) == 0 {
		return
	}

	type indexed struct {
		slot   int
		action Action
	}
	ordered := make([]indexed, 0, len(actions))
	for _, a := range actions {
		if slot := s.Index(a.PlayerID); slot >= 0 {
			ordered = append(ordered, indexed{slot: slot, action: a})
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].slot != ordered[j].slot {
			return ordered[i].slot < ordered[j].slot
		}
		return ordered[i].action.Seq < ordered[j].action.Seq
	})

	for _, o := range ordered {
		c := &s.state.Controls[o.slot]
		if c.HasSeq && o.action.Seq < c.LastSeq {
			continue
		}
		c.Latched = o.action.Flags.Overlay(c.Latched)
		c.LastSeq = o.action.Seq
		c.HasSeq = true
	}
}

// step advances the match by one fixed step. Players are always processed in
// slot order so the result never depends on container iteration order.
func (s *Sim) step() {
	nowMs := s.tuning.timeAt(s.state.Tick)
	dt := s.tuning.FixedStepMs / 1000

	for i := range s.state.Players {
		p := &s.state.Players[i]
		c := &s.state.Controls[i]

		c.Jump = c.Jump.Next(c.Latched&ButtonJump != 0)
		c.Attack = c.Attack.Next(c.Latched&ButtonAttack != 0)

		s.startAttack(p, c, nowMs)
		s.moveHorizontal(p, c, dt)
		s.jump(p, c)
		s.applyGravity(p, dt)
		s.integrate(p, dt)
	}

	s.resolveAttacks(nowMs)

	s.state.Tick++
	s.history.Push(s.state)
}

// ResetPlayers puts both fighters back at their spawn points with full health
// and no attack in progress. Input latches are released; sequence tracking and
// attack ids are kept so ordering and instance ids stay monotonic.
func (s *Sim) ResetPlayers() {
	spawns := [2]PlayerState{
		spawnState(s.tuning, s.tuning.SpawnAX, 1),
		spawnState(s.tuning, s.tuning.SpawnBX, -1),
	}
	for i := range s.state.Players {
		s.state.Players[i] = spawns[i]
		c := &s.state.Controls[i]
		c.Latched = 0
		c.Jump = ButtonIdle
		c.Attack = ButtonIdle
		c.AttackLanded = false
	}
	s.history.ReplaceNewest(s.state)
}

// Freeze zeroes the velocity of a player. Unknown ids are ignored.
func (s *Sim) Freeze(id string) {
	if slot := s.Index(id); slot >= 0 {
		s.state.Players[slot].VX = 0
		s.state.Players[slot].VY = 0
		s.history.ReplaceNewest(s.state)
	}
}

// ReleaseInputs clears the latched input of both players.
func (s *Sim) ReleaseInputs() {
	for i := range s.state.Controls {
		s.state.Controls[i].Latched = 0
	}
	s.history.ReplaceNewest(s.state)
}

// Restore replaces the whole state, for instance with an authoritative state
// received from a host. History restarts from the restored state.
func (s *Sim) Restore(st State) {
	s.state = st
	s.accumulator = 0
	s.history.Reset()
	s.history.Push(st)
}
