// Package match wraps the duel simulation with the match lifecycle:
// lobby, play, knockout and reset phases, stock counting and events.
package match

import (
	"errors"
	"fmt"

	"rollback-duel/internal/sim"
)

// Config controls phase timers and stock count. Durations are in ticks so
// they stay exact across rewinds and variable frame times.
type Config struct {
	MatchID    string
	KOTicks    int64 // time spent in ko before players are reset
	ResetTicks int64 // time spent in reset before play resumes
	Stocks     int
}

// DefaultConfig returns 1.5s of ko, 1s of reset and 3 stocks.
func DefaultConfig() Config {
	return Config{
		KOTicks:    90,
		ResetTicks: 60,
		Stocks:     3,
	}
}

var (
	// ErrNotPlaying is returned when a correction arrives outside of play.
	ErrNotPlaying = errors.New("match is not in play")
	// ErrBeforeRound is returned for corrections older than the current play segment.
	ErrBeforeRound = errors.New("correction predates the current round")
)

// Controller drives a Timeline through the match phases. Like the Sim it
// wraps, it belongs to a single tick driver and has no locking.
type Controller struct {
	cfg      Config
	timeline *sim.Timeline

	phase      Phase
	phaseStart int64 // tick the current phase was entered
	roundStart int64 // tick the current play segment began

	stocks [2]int
	prevHP [2]int
}

// NewController creates a controller in the lobby phase.
func NewController(tl *sim.Timeline, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.KOTicks < 0 {
		cfg.KOTicks = def.KOTicks
	}
	if cfg.ResetTicks < 0 {
		cfg.ResetTicks = def.ResetTicks
	}
	if cfg.Stocks <= 0 {
		cfg.Stocks = def.Stocks
	}

	c := &Controller{
		cfg:      cfg,
		timeline: tl,
		phase:    PhaseLobby,
		stocks:   [2]int{cfg.Stocks, cfg.Stocks},
	}
	c.captureHP()
	return c
}

// MatchID returns the identifier the controller was configured with.
func (c *Controller) MatchID() string { return c.cfg.MatchID }

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.phase }

// Timeline returns the wrapped timeline.
func (c *Controller) Timeline() *sim.Timeline { return c.timeline }

// Stocks returns a copy of the remaining stocks per player.
func (c *Controller) Stocks() map[string]int {
	ids := c.timeline.Sim().Players()
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = c.stocks[i]
	}
	return out
}

// Snapshot returns the current state without an event attached.
func (c *Controller) Snapshot() HostSnapshot {
	return c.snapshot(nil)
}

// Step advances the match by one outer tick. Actions only reach the
// simulation during play; in ko and reset the clock keeps running with no
// input so phase timers stay tick-accurate. Play stops on the fixed step a KO
// lands; the remaining frame time is spent in ko on the next Step.
func (c *Controller) Step(actions []sim.Action, dtMs float64) HostSnapshot {
	s := c.timeline.Sim()
	var ev *Event

	switch c.phase {
	case PhaseLobby:
		c.enter(PhasePlay)
		c.roundStart = s.Tick()
		ev = phaseEvent(s.Tick(), PhasePlay)
		c.timeline.AdvanceUntil(actions, dtMs, c.knockedOut)
		if ko := c.detectKO(); ko != nil {
			ev = ko
		}

	case PhasePlay:
		c.timeline.AdvanceUntil(actions, dtMs, c.knockedOut)
		ev = c.detectKO()

	case PhaseKO:
		c.timeline.Advance(nil, dtMs)
		if s.Tick()-c.phaseStart >= c.cfg.KOTicks {
			s.ResetPlayers()
			c.enter(PhaseReset)
			ev = phaseEvent(s.Tick(), PhaseReset)
		}

	case PhaseReset:
		c.timeline.Advance(nil, dtMs)
		if s.Tick()-c.phaseStart >= c.cfg.ResetTicks {
			c.enter(PhasePlay)
			c.roundStart = s.Tick()
			ev = phaseEvent(s.Tick(), PhasePlay)
		}
	}

	c.captureHP()
	return c.snapshot(ev)
}

// Correct forwards a late action stamped with the tick it was meant for.
// Only actions for the current round are accepted: rewinding across a
// knockout or reset would replay a different round.
func (c *Controller) Correct(action sim.Action, tick int64) (sim.RewindResult, error) {
	head := c.timeline.Sim().Tick()
	if c.phase != PhasePlay {
		return sim.RewindResult{From: head, To: head}, ErrNotPlaying
	}
	if tick < c.roundStart {
		return sim.RewindResult{From: head, To: head}, fmt.Errorf("%w: tick %d < %d", ErrBeforeRound, tick, c.roundStart)
	}
	return c.timeline.Correct(action, tick), nil
}

func (c *Controller) enter(p Phase) {
	c.phase = p
	c.phaseStart = c.timeline.Sim().Tick()
}

// knockedOut reports whether a player alive at the previous outer step has
// dropped to zero HP. Used as the per-step stop condition during play.
func (c *Controller) knockedOut() bool {
	st := c.timeline.Sim().State()
	for i, p := range st.Players {
		if c.prevHP[i] > 0 && p.HP <= 0 {
			return true
		}
	}
	return false
}

// detectKO compares HP against the values captured after the previous step.
// Only a transition from alive to dead counts, so a KO fires exactly once.
func (c *Controller) detectKO() *Event {
	s := c.timeline.Sim()
	st := s.State()
	ids := s.Players()

	var losers []int
	for i, p := range st.Players {
		if c.prevHP[i] > 0 && p.HP <= 0 {
			losers = append(losers, i)
		}
	}
	if len(losers) == 0 {
		return nil
	}

	ko := &KOPayload{Double: len(losers) == 2}
	for _, i := range losers {
		if c.stocks[i] > 0 {
			c.stocks[i]--
		}
		s.Freeze(ids[i])
		ko.Losers = append(ko.Losers, ids[i])
	}
	s.ReleaseInputs()

	ko.Loser = ids[losers[0]]
	if !ko.Double {
		ko.Winner = ids[1-losers[0]]
	}
	ko.Stocks = c.Stocks()
	for i, id := range ids {
		if c.stocks[i] == 0 {
			ko.Eliminated = append(ko.Eliminated, id)
		}
	}

	c.enter(PhaseKO)
	return &Event{Type: EventTypeKO, Tick: s.Tick(), Phase: PhaseKO, KO: ko}
}

func (c *Controller) captureHP() {
	st := c.timeline.Sim().State()
	for i, p := range st.Players {
		c.prevHP[i] = p.HP
	}
}

func (c *Controller) snapshot(ev *Event) HostSnapshot {
	return HostSnapshot{
		Snapshot:  c.timeline.Sim().Snapshot(),
		MatchID:   c.cfg.MatchID,
		Phase:     c.phase,
		Stocks:    c.Stocks(),
		LastEvent: ev,
	}
}
