// Package interp smooths authoritative samples of remote fighters into
// continuous motion by rendering slightly in the past and blending between
// the two most recent samples. It never extrapolates.
package interp

import (
	"math"
	"sync"

	"rollback-duel/internal/sim"
)

// DefaultDelayMs is how far behind the newest data frames are rendered.
const DefaultDelayMs = 100

// Sample is one authoritative observation of an entity.
type Sample struct {
	X      float64
	Y      float64
	Facing int
	HP     int
	HasHP  bool

	// UpdatedAtMs is the sender's timestamp, used when HasUpdatedAt is set.
	// Without it the arrival time stands in.
	UpdatedAtMs  float64
	HasUpdatedAt bool
}

// FromPlayer builds an untimed sample from a simulated player state.
func FromPlayer(p sim.PlayerState) Sample {
	return Sample{
		X:      p.X,
		Y:      p.Y,
		Facing: p.Facing,
		HP:     p.HP,
		HasHP:  true,
	}
}

// At returns s stamped with the sender's timestamp ms.
func (s Sample) At(ms float64) Sample {
	s.UpdatedAtMs, s.HasUpdatedAt = ms, true
	return s
}

// Frame is what should be rendered for an entity at a given time.
type Frame struct {
	X            float64
	Y            float64
	Facing       int
	HP           int
	HasHP        bool
	Interpolated bool
}

type timedSample struct {
	Sample
	atMs float64
}

type entity struct {
	samples [2]timedSample // [0] older, [1] newer; valid entries fill from the back
	count   int
	bypass  bool
}

func (e *entity) newest() timedSample { return e.samples[1] }
func (e *entity) oldest() timedSample { return e.samples[2-e.count] }

// Interpolator holds per-entity sample pairs. It is safe to ingest from a
// network goroutine while a render goroutine interpolates.
type Interpolator struct {
	mu       sync.Mutex
	delayMs  float64
	entities map[string]*entity
}

// New creates an interpolator that renders delayMs behind the newest data.
// Negative or NaN delays fall back to DefaultDelayMs.
func New(delayMs float64) *Interpolator {
	if !(delayMs >= 0) || math.IsInf(delayMs, 0) {
		delayMs = DefaultDelayMs
	}
	return &Interpolator{
		delayMs:  delayMs,
		entities: make(map[string]*entity),
	}
}

// DelayMs returns the render delay.
func (in *Interpolator) DelayMs() float64 { return in.delayMs }

// Ingest records a sample for id. Only the two newest samples are kept;
// a sample older than the newest one already held is dropped. It reports
// whether the sample was kept.
func (in *Interpolator) Ingest(id string, s Sample, arrivalMs float64) bool {
	at := arrivalMs
	if s.HasUpdatedAt {
		at = s.UpdatedAtMs
	}
	if math.IsNaN(at) || math.IsInf(at, 0) {
		return false
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	e := in.entities[id]
	if e == nil {
		e = &entity{}
		in.entities[id] = e
	}

	ts := timedSample{Sample: s, atMs: at}
	switch {
	case e.count == 0:
		e.samples[1] = ts
		e.count = 1
	case at < e.newest().atMs:
		return false
	case at == e.newest().atMs:
		e.samples[1] = ts
	default:
		e.samples[0] = e.samples[1]
		e.samples[1] = ts
		e.count = 2
	}
	return true
}

// Interpolate returns the frame to render for id at nowMs. The boolean is
// false when nothing has been ingested for id.
func (in *Interpolator) Interpolate(id string, nowMs float64) (Frame, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	e := in.entities[id]
	if e == nil || e.count == 0 {
		return Frame{}, false
	}

	newer := e.newest()
	if e.count == 1 || e.bypass {
		return verbatim(newer), true
	}

	older := e.oldest()
	target := nowMs - in.delayMs
	switch {
	case older.atMs == newer.atMs:
		return verbatim(newer), true
	case target <= older.atMs:
		return verbatim(older), true
	case target >= newer.atMs:
		return verbatim(newer), true
	}

	t := (target - older.atMs) / (newer.atMs - older.atMs)
	f := Frame{
		X:            lerp(older.X, newer.X, t),
		Y:            lerp(older.Y, newer.Y, t),
		Facing:       older.Facing,
		Interpolated: true,
	}
	if t >= 0.5 {
		f.Facing = newer.Facing
	}
	switch {
	case newer.HasHP:
		f.HP, f.HasHP = newer.HP, true
	case older.HasHP:
		f.HP, f.HasHP = older.HP, true
	}
	return f, true
}

// SetBypass makes id render its newest sample live instead of interpolated.
// Used for the locally simulated player.
func (in *Interpolator) SetBypass(id string, bypass bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	e := in.entities[id]
	if e == nil {
		e = &entity{}
		in.entities[id] = e
	}
	e.bypass = bypass
}

// Clear forgets the samples of one entity. Its bypass flag is kept.
func (in *Interpolator) Clear(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if e := in.entities[id]; e != nil {
		e.samples = [2]timedSample{}
		e.count = 0
	}
}

// ClearAll forgets every entity, bypass flags included.
func (in *Interpolator) ClearAll() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.entities = make(map[string]*entity)
}

func verbatim(s timedSample) Frame {
	return Frame{X: s.X, Y: s.Y, Facing: s.Facing, HP: s.HP, HasHP: s.HasHP}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
