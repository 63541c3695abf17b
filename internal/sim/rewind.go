package sim

// RewindResult describes what RewindTo did.
type RewindResult struct {
	From    int64 // tick before the call
	To      int64 // tick after the call
	Skipped bool  // the request predated the retained history and was ignored
}

// Rewound reports whether the tick actually moved back.
func (r RewindResult) Rewound() bool { return r.To < r.From }

// RewindTo restores the newest retained state at or before tick and discards
// every later state so the caller can resimulate from there.
//
// A tick at or past the current one is a no-op. A tick older than the
// retention horizon is also a no-op, reported through Skipped and
// RewindSkipped: a very late correction degrades into a visible desync
// instead of corrupting the match.
func (s *Sim) RewindTo(tick int64) RewindResult {
	res := RewindResult{From: s.state.Tick, To: s.state.Tick}
	if tick >= s.state.Tick {
		s.rewindSkipped = false
		return res
	}

	oldest, ok := s.history.Oldest()
	if !ok || tick < oldest.Tick {
		s.rewindSkipped = true
		res.Skipped = true
		return res
	}

	st, ok := s.history.AtOrBefore(tick)
	if !ok {
		s.rewindSkipped = true
		res.Skipped = true
		return res
	}

	s.history.TruncateAfter(st.Tick)
	s.state = st
	s.rewindSkipped = false
	res.To = st.Tick
	return res
}

// RewindSkipped reports whether the most recent RewindTo was refused because
// it reached past the retained history.
func (s *Sim) RewindSkipped() bool { return s.rewindSkipped }

// OldestTick returns the earliest tick RewindTo can restore.
func (s *Sim) OldestTick() int64 {
	if st, ok := s.history.Oldest(); ok {
		return st.Tick
	}
	return s.state.Tick
}
