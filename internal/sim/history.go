package sim

// History is a fixed-capacity ring of past states, oldest overwritten first.
// States are stored by value so an entry can never alias live state.
type History struct {
	entries []State
	start   int // index of the oldest entry
	count   int
}

// NewHistory creates a ring that holds up to capacity states.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{entries: make([]State, capacity)}
}

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.entries) }

// Len returns how many states are retained.
func (h *History) Len() int { return h.count }

// Push records a state, evicting the oldest one when full.
func (h *History) Push(st State) {
	if h.count < len(h.entries) {
		h.entries[(h.start+h.count)%len(h.entries)] = st
		h.count++
		return
	}
	h.entries[h.start] = st
	h.start = (h.start + 1) % len(h.entries)
}

// ReplaceNewest overwrites the most recent entry, or pushes when empty.
// Used when state is edited outside a step so the head stays in sync.
func (h *History) ReplaceNewest(st State) {
	if h.count == 0 {
		h.Push(st)
		return
	}
	h.entries[h.index(h.count-1)] = st
}

// Oldest returns the oldest retained state.
func (h *History) Oldest() (State, bool) {
	if h.count == 0 {
		return State{}, false
	}
	return h.entries[h.start], true
}

// Newest returns the most recently recorded state.
func (h *History) Newest() (State, bool) {
	if h.count == 0 {
		return State{}, false
	}
	return h.entries[h.index(h.count-1)], true
}

// AtOrBefore returns the newest retained state whose tick is <= tick.
func (h *History) AtOrBefore(tick int64) (State, bool) {
	for i := h.count - 1; i >= 0; i-- {
		st := h.entries[h.index(i)]
		if st.Tick <= tick {
			return st, true
		}
	}
	return State{}, false
}

// TruncateAfter discards every entry newer than tick.
func (h *History) TruncateAfter(tick int64) {
	for h.count > 0 && h.entries[h.index(h.count-1)].Tick > tick {
		h.entries[h.index(h.count-1)] = State{}
		h.count--
	}
}

// Reset empties the ring.
func (h *History) Reset() {
	for i := range h.entries {
		h.entries[i] = State{}
	}
	h.start, h.count = 0, 0
}

func (h *History) index(i int) int {
	return (h.start + i) % len(h.entries)
}
