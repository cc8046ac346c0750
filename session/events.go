package session

import (
	"sync"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
)

// EventKind is the kind of a session Event.
type EventKind int

const (
	StateChanged EventKind = iota
	DeviceChanged
	RecordingStarted
	RecordingFinished
	ErrorOccurred
)

func (k EventKind) String() string {
	switch k {
	case StateChanged:
		return "state-changed"
	case DeviceChanged:
		return "device-changed"
	case RecordingStarted:
		return "recording-started"
	case RecordingFinished:
		return "recording-finished"
	case ErrorOccurred:
		return "error"
	}
	return "unknown"
}

// Event is published to subscribers on every observable change.
type Event struct {
	Kind EventKind

	State  State          // StateChanged
	Device *camera.Device // DeviceChanged, nil when unbound

	// RecordingStarted and RecordingFinished. Path is the temporary file, Err
	// is set when the recording is unusable.
	Path     string
	Duration time.Duration

	Err error // RecordingFinished, ErrorOccurred
}

// hub fans events out to subscribers. Sends never block, a subscriber that
// does not keep up loses events.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func (h *hub) subscribe(size int) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[int]chan Event{}
	}
	id := h.next
	h.next++
	c := make(chan Event, size)
	h.subs[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.subs {
		select {
		case c <- ev:
		default:
		}
	}
}
