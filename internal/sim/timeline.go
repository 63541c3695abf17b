package sim

import "sort"

// InputLog keeps the action batches applied to a Sim, keyed by the tick at
// which each batch was latched. Entries stay sorted by tick.
type InputLog struct {
	entries []logEntry
}

type logEntry struct {
	tick    int64
	actions []Action
}

// Add records actions as applied at tick.
func (l *InputLog) Add(tick int64, actions ...Action) {
	if len(actions) == 0 {
		return
	}
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].tick >= tick })
	if i < len(l.entries) && l.entries[i].tick == tick {
		l.entries[i].actions = append(l.entries[i].actions, actions...)
		return
	}
	batch := append([]Action(nil), actions...)
	l.entries = append(l.entries, logEntry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = logEntry{tick: tick, actions: batch}
}

// At returns the actions latched at tick.
func (l *InputLog) At(tick int64) []Action {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].tick >= tick })
	if i < len(l.entries) && l.entries[i].tick == tick {
		return l.entries[i].actions
	}
	return nil
}

// TrimBefore drops entries older than tick.
func (l *InputLog) TrimBefore(tick int64) {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].tick >= tick })
	if i == 0 {
		return
	}
	l.entries = append(l.entries[:0], l.entries[i:]...)
}

// Len returns the number of ticks with logged actions.
func (l *InputLog) Len() int { return len(l.entries) }

// Timeline drives a Sim while remembering its inputs, so that a late or
// corrected action can be inserted in the past and the match replayed up to
// where it was.
type Timeline struct {
	sim *Sim
	log InputLog
}

// NewTimeline wraps s. All further stepping of s should go through the
// Timeline, otherwise replays will miss inputs.
func NewTimeline(s *Sim) *Timeline {
	return &Timeline{sim: s}
}

// Sim returns the wrapped simulation.
func (t *Timeline) Sim() *Sim { return t.sim }

// Advance logs the actions at the current tick and applies them.
func (t *Timeline) Advance(actions []Action, dtMs float64) int {
	return t.AdvanceUntil(actions, dtMs, nil)
}

// AdvanceUntil is Advance that stops after the first fixed step for which
// stop reports true. Frame time not yet simulated stays in the accumulator.
func (t *Timeline) AdvanceUntil(actions []Action, dtMs float64, stop func() bool) int {
	t.log.Add(t.sim.Tick(), actions...)
	n := t.sim.ApplyActionsUntil(actions, dtMs, stop)
	t.log.TrimBefore(t.sim.OldestTick())
	return n
}

// Correct inserts a late action at tick, rewinds there and replays every
// logged batch, in per-player Seq order, back up to the previous head tick.
// Actions latched at the head itself, which no step has consumed yet, are
// latched again after the replay.
// An action for the current tick or later is simply latched now. When the
// tick is older than the retained history nothing changes and the result is
// marked Skipped.
func (t *Timeline) Correct(action Action, tick int64) RewindResult {
	head := t.sim.Tick()
	if tick >= head {
		t.log.Add(head, action)
		t.sim.latch([]Action{action})
		return RewindResult{From: head, To: head}
	}

	res := t.sim.RewindTo(tick)
	if res.Skipped {
		return res
	}

	t.log.Add(tick, action)
	for tk := res.To; tk < head; tk++ {
		t.sim.StepTicks(t.log.At(tk), 1)
	}
	t.sim.latch(t.log.At(head))
	return res
}

// Restore replaces the simulation state, for instance with one rebuilt from an
// authoritative snapshot. Logged inputs no longer apply and are dropped.
func (t *Timeline) Restore(st State) {
	t.sim.Restore(st)
	t.log = InputLog{}
}
