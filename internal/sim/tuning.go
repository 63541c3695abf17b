// Package sim is the deterministic fixed-step duel simulation.
// It owns physics integration, input latching, attack resolution and the
// rolling history used to rewind and resimulate late inputs.
//
// Nothing in this package performs I/O, blocks or panics on bad input, so the
// same stepper serves the host loop, the client predictor and tests.
package sim

import (
	"errors"
	"fmt"
	"math"
)

// FixedStepMs is the simulated time advanced by one tick (60 ticks per second).
const FixedStepMs = 1000.0 / 60.0

const (
	// accumulatorEpsilon absorbs float jitter in dtMs so 16.6667 counts as one step.
	accumulatorEpsilon = 1e-6

	// timeEpsilon is used when comparing millisecond timestamps derived from ticks.
	timeEpsilon = 1e-6
)

// Tuning holds every balance and geometry parameter of a match.
// Units: pixels, milliseconds for timers, pixels/second for velocities and
// pixels/second² for accelerations. Y grows upward from the floor at 0.
type Tuning struct {
	FixedStepMs float64

	ArenaWidth  float64 // X is clamped to [0, ArenaWidth]
	ArenaHeight float64 // Y is clamped to [0, ArenaHeight] (floor, ceiling)

	SpawnAX float64 // player A spawns here facing right
	SpawnBX float64 // player B spawns here facing left

	BodyWidth  float64
	BodyHeight float64

	RunAccel       float64
	MaxRunSpeed    float64
	GroundFriction float64
	AirFriction    float64
	JumpVelocity   float64
	Gravity        float64

	AttackRange      float64 // reach beyond the front edge of the body
	AttackHeight     float64 // height of the attack window measured from the feet
	AttackDamage     int
	AttackActiveMs   float64
	AttackCooldownMs float64

	MaxHP int

	RetentionMs float64 // how much history is kept for rewinds
	MaxFrameMs  float64 // dtMs above this is clamped to avoid a catch-up spiral
}

// DefaultTuning returns the standard match parameters.
func DefaultTuning() Tuning {
	return Tuning{
		FixedStepMs: FixedStepMs,

		ArenaWidth:  960,
		ArenaHeight: 540,

		SpawnAX: 320,
		SpawnBX: 640,

		BodyWidth:  48,
		BodyHeight: 96,

		RunAccel:       2400,
		MaxRunSpeed:    320,
		GroundFriction: 2400,
		AirFriction:    600,
		JumpVelocity:   780,
		Gravity:        2200,

		AttackRange:      56,
		AttackHeight:     72,
		AttackDamage:     10,
		AttackActiveMs:   100,
		AttackCooldownMs: 400,

		MaxHP: 100,

		RetentionMs: 3000,
		MaxFrameMs:  3000,
	}
}

// ErrInvalidTuning is returned by Validate for unusable parameter sets.
var ErrInvalidTuning = errors.New("invalid tuning")

// Validate reports parameters that would make the stepper misbehave.
func (t Tuning) Validate() error {
	positive := map[string]float64{
		"FixedStepMs":  t.FixedStepMs,
		"ArenaWidth":   t.ArenaWidth,
		"ArenaHeight":  t.ArenaHeight,
		"BodyWidth":    t.BodyWidth,
		"BodyHeight":   t.BodyHeight,
		"RetentionMs":  t.RetentionMs,
		"MaxFrameMs":   t.MaxFrameMs,
		"MaxRunSpeed":  t.MaxRunSpeed,
		"AttackHeight": t.AttackHeight,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidTuning, name, v)
		}
	}
	if t.MaxHP <= 0 {
		return fmt.Errorf("%w: MaxHP must be positive, got %d", ErrInvalidTuning, t.MaxHP)
	}
	if t.AttackDamage < 0 {
		return fmt.Errorf("%w: AttackDamage must not be negative", ErrInvalidTuning)
	}
	if t.SpawnAX < 0 || t.SpawnAX > t.ArenaWidth || t.SpawnBX < 0 || t.SpawnBX > t.ArenaWidth {
		return fmt.Errorf("%w: spawn points must lie inside the arena", ErrInvalidTuning)
	}
	return nil
}

// historyCapacity is the number of states needed to cover RetentionMs, plus
// the state the window starts from.
func (t Tuning) historyCapacity() int {
	return int(math.Ceil(t.RetentionMs/t.FixedStepMs-timeEpsilon)) + 1
}

// timeAt converts a tick count to milliseconds. It is always recomputed from
// the tick so rounding never accumulates.
func (t Tuning) timeAt(tick int64) float64 {
	return float64(tick) * t.FixedStepMs
}
