package match

import "fmt"

// Phase is the lifecycle stage of a match. There is no terminal phase:
// ending a match when stocks run out is up to the caller.
type Phase uint8

const (
	PhaseLobby Phase = iota
	PhasePlay
	PhaseKO
	PhaseReset
)

// String returns the wire name of the phase
func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhasePlay:
		return "play"
	case PhaseKO:
		return "ko"
	case PhaseReset:
		return "reset"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "lobby":
		*p = PhaseLobby
	case "play":
		*p = PhasePlay
	case "ko":
		*p = PhaseKO
	case "reset":
		*p = PhaseReset
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}
