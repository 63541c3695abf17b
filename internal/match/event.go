package match

import (
	"fmt"

	"rollback-duel/internal/sim"
)

// EventType enum for match event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypePhase             // phase change
	EventTypeKO                // a player's HP reached zero
)

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypePhase:
		return "phase"
	case EventTypeKO:
		return "ko"
	default:
		return "unknown"
	}
}

// MarshalText encodes the event type by name
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes an event type name
func (t *EventType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "phase":
		*t = EventTypePhase
	case "ko":
		*t = EventTypeKO
	default:
		return fmt.Errorf("unknown event type %q", text)
	}
	return nil
}

// Event is an edge-triggered match event. It is attached to the HostSnapshot
// of the step it happened on and to no other.
type Event struct {
	Type  EventType  `json:"type"`
	Tick  int64      `json:"tick"`
	Phase Phase      `json:"phase"` // phase entered on this step
	KO    *KOPayload `json:"ko,omitempty"`
}

// KOPayload contains knockout details
type KOPayload struct {
	Loser      string         `json:"loser"`
	Winner     string         `json:"winner,omitempty"` // empty on a double KO
	Losers     []string       `json:"losers"`
	Double     bool           `json:"double,omitempty"`
	Stocks     map[string]int `json:"stocks"` // after the decrement
	Eliminated []string       `json:"eliminated,omitempty"`
}

func phaseEvent(tick int64, p Phase) *Event {
	return &Event{Type: EventTypePhase, Tick: tick, Phase: p}
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	if e.KO != nil {
		ko := *e.KO
		ko.Losers = append([]string(nil), e.KO.Losers...)
		ko.Eliminated = append([]string(nil), e.KO.Eliminated...)
		ko.Stocks = copyStocks(e.KO.Stocks)
		out.KO = &ko
	}
	return &out
}

// HostSnapshot is what a match publishes after every step.
type HostSnapshot struct {
	sim.Snapshot
	MatchID   string         `json:"matchId"`
	Phase     Phase          `json:"phase"`
	Stocks    map[string]int `json:"stocks"`
	LastEvent *Event         `json:"lastEvent,omitempty"`
}

// Clone returns a deep copy of h.
func (h HostSnapshot) Clone() HostSnapshot {
	out := h
	out.Snapshot = h.Snapshot.Clone()
	out.Stocks = copyStocks(h.Stocks)
	out.LastEvent = h.LastEvent.Clone()
	return out
}

func copyStocks(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
