package keybind

// Action is what a key press triggers.
type Action int

const (
	None Action = iota
	QuickPhoto
	QuickVideo
	Photo
	Video
)

func (a Action) String() string {
	switch a {
	case QuickPhoto:
		return "quick-photo"
	case QuickVideo:
		return "quick-video"
	case Photo:
		return "photo"
	case Video:
		return "video"
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Actions lists the bindable actions in dispatch order.
var Actions = []Action{QuickPhoto, QuickVideo, Photo, Video}

// Default bindings: F takes a photo, V toggles recording, with shift the quick
// variants.
var (
	DefaultPhoto      = KeyBinding{KeyCode: KeyF, KeyChar: "F"}
	DefaultVideo      = KeyBinding{KeyCode: KeyV, KeyChar: "V"}
	DefaultQuickPhoto = KeyBinding{KeyCode: KeyF, KeyChar: "F", Shift: true}
	DefaultQuickVideo = KeyBinding{KeyCode: KeyV, KeyChar: "V", Shift: true}
)

// Set holds the four bindings.
type Set struct {
	Photo      KeyBinding `json:"photo"`
	Video      KeyBinding `json:"video"`
	QuickPhoto KeyBinding `json:"quickPhoto"`
	QuickVideo KeyBinding `json:"quickVideo"`
}

// DefaultSet returns the default bindings.
func DefaultSet() Set {
	return Set{
		Photo:      DefaultPhoto,
		Video:      DefaultVideo,
		QuickPhoto: DefaultQuickPhoto,
		QuickVideo: DefaultQuickVideo,
	}
}

// Binding returns the binding of a.
func (s Set) Binding(a Action) (KeyBinding, bool) {
	switch a {
	case QuickPhoto:
		return s.QuickPhoto, true
	case QuickVideo:
		return s.QuickVideo, true
	case Photo:
		return s.Photo, true
	case Video:
		return s.Video, true
	}
	return KeyBinding{}, false
}

// Dispatch returns the action bound to ev. The quick bindings are checked
// first, so a chord shared with a dialog binding triggers the quick action.
// See Conflicts.
func (s Set) Dispatch(ev Event) Action {
	for _, a := range Actions {
		b, _ := s.Binding(a)
		if b.Matches(ev) {
			return a
		}
	}
	return None
}

// Conflict is a chord bound to two actions. Shadowed never triggers.
type Conflict struct {
	Chord    KeyBinding `json:"chord"`
	Winner   Action     `json:"winner"`
	Shadowed Action     `json:"shadowed"`
}

// Conflicts returns the pairs of actions sharing a chord, in dispatch order.
func (s Set) Conflicts() []Conflict {
	var r []Conflict
	for i, a := range Actions {
		ba, _ := s.Binding(a)
		for _, b := range Actions[i+1:] {
			bb, _ := s.Binding(b)
			if ba.SameChord(bb) {
				r = append(r, Conflict{Chord: ba, Winner: a, Shadowed: b})
			}
		}
	}
	return r
}
