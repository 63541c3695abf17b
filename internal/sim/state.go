package sim

// PlayerState is the physical and combat state of one fighter.
// It is only mutated inside a fixed step.
type PlayerState struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	Facing   int     `json:"facing"` // -1 left, 1 right
	HP       int     `json:"hp"`
	Grounded bool    `json:"grounded"`

	AttackActiveUntilMs float64 `json:"attackActiveUntilMs"`
	NextAttackAtMs      float64 `json:"nextAttackAtMs"`
}

// Control is the transient per-player state that is not visible in a
// Snapshot but must be restored exactly for resimulation to be deterministic.
type Control struct {
	Latched Button // current held buttons after overlaying every action so far

	Jump   ButtonPhase
	Attack ButtonPhase

	AttackID     uint64 // id of the latest attack instance, 0 before the first attack
	AttackLanded bool   // hit token: the current instance already dealt damage

	LastSeq uint64 // highest action sequence applied
	HasSeq  bool
}

// State is the complete internal state of a match at a tick. It is a plain
// value with no maps or pointers: assigning it copies everything, which is
// what the history ring relies on.
type State struct {
	Tick     int64
	Players  [2]PlayerState
	Controls [2]Control
}

// Snapshot is the externally visible state at a tick. Snapshots handed out by
// the simulation are independent copies.
type Snapshot struct {
	Tick    int64                  `json:"tick"`
	TMs     float64                `json:"tMs"`
	Players map[string]PlayerState `json:"players"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Tick: s.Tick, TMs: s.TMs}
	if s.Players != nil {
		out.Players = make(map[string]PlayerState, len(s.Players))
		for id, p := range s.Players {
			out.Players[id] = p
		}
	}
	return out
}

// spawnState returns a fighter at x on the floor, idle and at full health.
func spawnState(t Tuning, x float64, facing int) PlayerState {
	return PlayerState{
		X:        x,
		Y:        0,
		Facing:   facing,
		HP:       t.MaxHP,
		Grounded: true,
	}
}
