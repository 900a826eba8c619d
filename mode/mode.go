// Package mode implements the operating mode toggle driven by the physical
// trigger line.
//
// The trigger is debounced over a complete press-and-release gesture: a
// press arms the trigger, the following release toggles the mode. Contact
// bounce inside a gesture therefore cannot produce extra toggles, and the
// mode never changes while the trigger is held.
package mode

import (
	"fmt"
	"strings"
)

// Mode is the operating mode announced to the upstream host.
type Mode uint8

// Operating modes.
const (
	Covert  Mode = iota // Keyboard passthrough only
	Visible             // Passthrough plus command console
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Covert:
		return "covert"
	case Visible:
		return "visible"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == Visible {
		return Covert
	}
	return Visible
}

// ParseMode parses a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "covert":
		return Covert, nil
	case "visible":
		return Visible, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// TriggerState tracks a press awaiting its release.
type TriggerState uint8

// Trigger states.
const (
	Idle  TriggerState = iota // No press observed
	Armed                     // Press observed, release pending
)

// String returns the trigger state name.
func (s TriggerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	default:
		return fmt.Sprintf("TriggerState(%d)", uint8(s))
	}
}

// State is the complete debounce state owned by a monitor.
type State struct {
	Trigger TriggerState
	Mode    Mode
}

// Step advances s by one sample of the trigger line and reports whether the
// mode was toggled.
//
//	Idle  + asserted   -> Armed
//	Armed + deasserted -> Idle, mode toggled
//
// Every other combination leaves s unchanged.
func Step(s State, asserted bool) (State, bool) {
	switch {
	case s.Trigger == Idle && asserted:
		s.Trigger = Armed
		return s, false
	case s.Trigger == Armed && !asserted:
		s.Trigger = Idle
		s.Mode = s.Mode.Toggle()
		return s, true
	default:
		return s, false
	}
}
