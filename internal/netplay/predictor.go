// Package netplay is the client side of a match: it predicts the local
// player ahead of the host, reconciles relayed remote inputs by rollback and
// smooths authoritative remote positions for rendering.
package netplay

import (
	"errors"
	"fmt"
	"sync"

	"rollback-duel/internal/interp"
	"rollback-duel/internal/match"
	"rollback-duel/internal/sim"
)

// ErrNotAPlayer is returned when the local id is not one of the two players.
var ErrNotAPlayer = errors.New("local player is not in the match")

// Config describes the match a Predictor joins.
type Config struct {
	ArenaID       string
	LocalID       string
	PlayerA       string
	PlayerB       string
	Seed          int64
	Tuning        sim.Tuning
	InterpDelayMs float64
}

// View is what a client renders for one frame.
type View struct {
	Tick     int64
	Phase    match.Phase
	Stocks   map[string]int
	Local    interp.Frame
	Remote   interp.Frame
	RemoteOK bool
}

// Stats counts reconciliation work.
type Stats struct {
	Rollbacks     uint64
	SkippedRemote uint64
	Resyncs       uint64
}

// Predictor runs its own Timeline with the same stepper as the host. Local
// inputs are applied at once; remote inputs arrive late, stamped with the
// host tick, and are folded in through Correct.
type Predictor struct {
	mu sync.Mutex

	cfg    Config
	local  string
	remote string
	tl     *sim.Timeline
	interp *interp.Interpolator
	seq    uint64

	phase  match.Phase
	stocks map[string]int
	stats  Stats
}

// New creates a predictor for cfg.LocalID.
func New(cfg Config) (*Predictor, error) {
	var remote string
	switch cfg.LocalID {
	case cfg.PlayerA:
		remote = cfg.PlayerB
	case cfg.PlayerB:
		remote = cfg.PlayerA
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotAPlayer, cfg.LocalID)
	}
	if cfg.Tuning == (sim.Tuning{}) {
		cfg.Tuning = sim.DefaultTuning()
	}

	s := sim.New(cfg.Seed, cfg.PlayerA, cfg.PlayerB, sim.WithTuning(cfg.Tuning))
	in := interp.New(cfg.InterpDelayMs)
	in.SetBypass(cfg.LocalID, true)

	return &Predictor{
		cfg:    cfg,
		local:  cfg.LocalID,
		remote: remote,
		tl:     sim.NewTimeline(s),
		interp: in,
	}, nil
}

// LocalID returns the id of the locally controlled player.
func (p *Predictor) LocalID() string { return p.local }

// Tick returns the local simulation tick.
func (p *Predictor) Tick() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tl.Sim().Tick()
}

// Input applies a local input immediately and returns the action to send to
// the host, with the tick it was applied at.
func (p *Predictor) Input(flags sim.InputFlags, clientTimeMs int64) (sim.Action, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	a := sim.Action{
		ArenaID:      p.cfg.ArenaID,
		PlayerID:     p.local,
		Seq:          p.seq,
		Flags:        flags,
		ClientTimeMs: clientTimeMs,
	}
	tick := p.tl.Sim().Tick()
	p.tl.Correct(a, tick)
	return a, tick
}

// Advance steps the local prediction by dtMs of frame time and records the
// predicted local position for rendering.
func (p *Predictor) Advance(dtMs, nowMs float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.tl.Advance(nil, dtMs)
	p.ingestLocal(nowMs)
	return n
}

// ApplyRemote reconciles an input the host applied for the other player.
// Echoes of our own inputs are ignored: they are already in the timeline.
func (p *Predictor) ApplyRemote(a sim.Action, hostTick int64) sim.RewindResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a.PlayerID != p.remote {
		head := p.tl.Sim().Tick()
		return sim.RewindResult{From: head, To: head}
	}

	res := p.tl.Correct(a, hostTick)
	switch {
	case res.Skipped:
		p.stats.SkippedRemote++
	case res.Rewound():
		p.stats.Rollbacks++
	}
	return res
}

// ApplyAuthoritative consumes a host snapshot. The remote player is fed to
// the interpolator; phase changes and large drift resync the whole local
// simulation to the host.
func (p *Predictor) ApplyAuthoritative(snap match.HostSnapshot, nowMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.phase = snap.Phase
	p.stocks = snap.Stocks

	s := p.tl.Sim()
	drift := s.Tick() - snap.Tick
	if drift < 0 {
		drift = -drift
	}
	horizon := int64(s.Tuning().RetentionMs / s.Tuning().FixedStepMs)
	if snap.LastEvent != nil || snap.Phase != match.PhasePlay || drift > horizon {
		p.resync(snap)
	}

	if rp, ok := snap.Players[p.remote]; ok {
		p.interp.Ingest(p.remote, interp.FromPlayer(rp), nowMs)
	}
}

// resync rebuilds the local state from the host's view. Controls are kept so
// sequence numbers and held buttons carry over.
func (p *Predictor) resync(snap match.HostSnapshot) {
	s := p.tl.Sim()
	st := s.State()
	st.Tick = snap.Tick
	for i, id := range s.Players() {
		if ps, ok := snap.Players[id]; ok {
			st.Players[i] = ps
		}
	}
	p.tl.Restore(st)
	p.interp.Clear(p.remote)
	p.stats.Resyncs++
}

// View returns what to render at nowMs.
func (p *Predictor) View(nowMs float64) View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		Tick:   p.tl.Sim().Tick(),
		Phase:  p.phase,
		Stocks: p.stocks,
	}
	v.Local, _ = p.interp.Interpolate(p.local, nowMs)
	v.Remote, v.RemoteOK = p.interp.Interpolate(p.remote, nowMs)
	return v
}

// Stats returns reconciliation counters.
func (p *Predictor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Predictor) ingestLocal(nowMs float64) {
	if lp, ok := p.tl.Sim().Snapshot().Players[p.local]; ok {
		p.interp.Ingest(p.local, interp.FromPlayer(lp), nowMs)
	}
}
