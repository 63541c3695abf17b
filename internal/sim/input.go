package sim

import (
	"encoding/json"
	"strings"
)

// Button is a bit set of the four duel inputs.
type Button uint8

const (
	ButtonLeft Button = 1 << iota
	ButtonRight
	ButtonJump
	ButtonAttack
)

// String lists the buttons in the set, e.g. "left|attack".
func (b Button) String() string {
	if b == 0 {
		return "none"
	}
	var parts []string
	for _, n := range buttonNames {
		if b&n.button != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

var buttonNames = []struct {
	button Button
	name   string
}{
	{ButtonLeft, "left"},
	{ButtonRight, "right"},
	{ButtonJump, "jump"},
	{ButtonAttack, "attack"},
}

// InputFlags is a partial input update. Only buttons present in Set are
// changed when the flags are overlaid onto a player's latched input; the rest
// keep their previous value.
type InputFlags struct {
	Set  Button // buttons this update specifies
	Down Button // pressed state for the buttons in Set
}

// Press builds flags that mark every given button as held.
func Press(buttons ...Button) InputFlags {
	var f InputFlags
	for _, b := range buttons {
		f = f.With(b, true)
	}
	return f
}

// Release builds flags that mark every given button as released.
func Release(buttons ...Button) InputFlags {
	var f InputFlags
	for _, b := range buttons {
		f = f.With(b, false)
	}
	return f
}

// With returns a copy of f that specifies b as down or up.
func (f InputFlags) With(b Button, down bool) InputFlags {
	f.Set |= b
	if down {
		f.Down |= b
	} else {
		f.Down &^= b
	}
	return f
}

// Overlay applies f on top of latched. Applying the same flags twice yields
// the same result, so replayed or duplicated actions are harmless.
func (f InputFlags) Overlay(latched Button) Button {
	return latched&^f.Set | f.Down&f.Set
}

type wireFlags struct {
	Left   *bool `json:"left,omitempty"`
	Right  *bool `json:"right,omitempty"`
	Jump   *bool `json:"jump,omitempty"`
	Attack *bool `json:"attack,omitempty"`
}

func (w *wireFlags) field(b Button) **bool {
	switch b {
	case ButtonLeft:
		return &w.Left
	case ButtonRight:
		return &w.Right
	case ButtonJump:
		return &w.Jump
	default:
		return &w.Attack
	}
}

// MarshalJSON encodes only the specified buttons, e.g. {"left":true}.
func (f InputFlags) MarshalJSON() ([]byte, error) {
	var w wireFlags
	for _, n := range buttonNames {
		if f.Set&n.button != 0 {
			down := f.Down&n.button != 0
			*w.field(n.button) = &down
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts any subset of left/right/jump/attack booleans.
func (f *InputFlags) UnmarshalJSON(data []byte) error {
	var w wireFlags
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = InputFlags{}
	for _, n := range buttonNames {
		if v := *w.field(n.button); v != nil {
			*f = f.With(n.button, *v)
		}
	}
	return nil
}

// ButtonPhase is the per-step edge state of a button. It is evaluated once
// per fixed step, so a press is seen as JustPressed for exactly one step.
type ButtonPhase uint8

const (
	ButtonIdle ButtonPhase = iota
	ButtonJustPressed
	ButtonHeld
	ButtonJustReleased
)

// Next advances the phase given whether the button is down this step.
func (p ButtonPhase) Next(down bool) ButtonPhase {
	wasDown := p == ButtonJustPressed || p == ButtonHeld
	switch {
	case down && wasDown:
		return ButtonHeld
	case down:
		return ButtonJustPressed
	case wasDown:
		return ButtonJustReleased
	default:
		return ButtonIdle
	}
}

// Rising reports a released→pressed transition on this step.
func (p ButtonPhase) Rising() bool { return p == ButtonJustPressed }

func (p ButtonPhase) String() string {
	switch p {
	case ButtonJustPressed:
		return "just_pressed"
	case ButtonHeld:
		return "held"
	case ButtonJustReleased:
		return "just_released"
	default:
		return "idle"
	}
}

// Action is one input update sent by a player. Seq is strictly increasing per
// player; actions are applied in Seq order no matter how they arrive.
type Action struct {
	ArenaID      string     `json:"arenaId"`
	PlayerID     string     `json:"playerId"`
	Seq          uint64     `json:"seq"`
	Flags        InputFlags `json:"flags"`
	ClientTimeMs int64      `json:"clientTimeMs"`
}
