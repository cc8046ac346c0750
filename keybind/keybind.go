// Package keybind matches key chords against capture actions.
package keybind

import (
	"fmt"
	"strings"
)

// KeyBinding is a chord bound to an action: a key code and the exact set of
// modifiers that must be held.
type KeyBinding struct {
	KeyCode uint16 `json:"keyCode"`
	KeyChar string `json:"keyChar"` // Display label, e.g. "F" or "SPACE".
	Shift   bool   `json:"shift"`
	Command bool   `json:"command"`
	Option  bool   `json:"option"`
	Control bool   `json:"control"`
}

// Event is a key press.
type Event struct {
	KeyCode uint16 `json:"keyCode"`
	Shift   bool   `json:"shift"`
	Command bool   `json:"command"`
	Option  bool   `json:"option"`
	Control bool   `json:"control"`
}

// Matches returns whether ev has the binding's key code and exactly its
// modifiers. Holding an additional modifier does not match.
func (b KeyBinding) Matches(ev Event) bool {
	return b.KeyCode == ev.KeyCode &&
		b.Shift == ev.Shift &&
		b.Command == ev.Command &&
		b.Option == ev.Option &&
		b.Control == ev.Control
}

// SameChord returns whether b and o are triggered by the same events. The
// display label is ignored.
func (b KeyBinding) SameChord(o KeyBinding) bool {
	return b.Matches(o.Event())
}

// Event returns the key press triggering b.
func (b KeyBinding) Event() Event {
	return Event{KeyCode: b.KeyCode, Shift: b.Shift, Command: b.Command, Option: b.Option, Control: b.Control}
}

// String returns the display form, modifiers in the order ⌃⌥⇧⌘ followed by
// the upper-cased label, e.g. "⇧F".
func (b KeyBinding) String() string {
	var s strings.Builder
	if b.Control {
		s.WriteString("⌃")
	}
	if b.Option {
		s.WriteString("⌥")
	}
	if b.Shift {
		s.WriteString("⇧")
	}
	if b.Command {
		s.WriteString("⌘")
	}
	s.WriteString(upper(b.KeyChar))
	return s.String()
}

// FromEvent returns the binding for ev, labelled with KeyLabel.
func FromEvent(ev Event) KeyBinding {
	return KeyBinding{
		KeyCode: ev.KeyCode,
		KeyChar: KeyLabel(ev.KeyCode),
		Shift:   ev.Shift,
		Command: ev.Command,
		Option:  ev.Option,
		Control: ev.Control,
	}
}

// ParseEvent parses a chord written as modifiers and a key label joined by
// "+", e.g. "shift+f" or "ctrl+alt+SPACE". Modifier names: shift, cmd,
// command, alt, option, ctrl, control.
func ParseEvent(s string) (Event, error) {
	var ev Event
	parts := strings.Split(s, "+")
	key := parts[len(parts)-1]
	for _, m := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "shift":
			ev.Shift = true
		case "cmd", "command", "super", "meta":
			ev.Command = true
		case "alt", "option":
			ev.Option = true
		case "ctrl", "control":
			ev.Control = true
		default:
			return Event{}, fmt.Errorf("unknown modifier %q", m)
		}
	}
	code, ok := KeyCode(strings.TrimSpace(key))
	if !ok {
		return Event{}, fmt.Errorf("unknown key %q", key)
	}
	ev.KeyCode = code
	return ev, nil
}

func upper(s string) string {
	return strings.ToUpper(s)
}
