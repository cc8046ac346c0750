package camera

import (
	"image"
)

// Source is a stream of preview frames from an opened device.
type Source interface {
	// Events returns a channel from which Events can be read, each containing an image.
	Events() chan Event

	// Close shuts down the source. No further Events will be sent.
	Close() error
}

// Event is a single image (or error) coming from a Source.
type Event struct {
	// If set, an error occurred.
	Err error

	// Image read from the device. If Err is set, Image is not valid.
	Image image.Image
}

// Backend enumerates devices and opens them as frame sources.
type Backend interface {
	// Name identifies the backend, e.g. "imagesnap" or "gstreamer".
	Name() string

	// ListDevices returns the currently connected capture devices, in the
	// order the platform reports them. An empty list is not an error.
	ListDevices() ([]Device, error)

	// Open starts delivering frames of dev. Callers must Close the source.
	Open(dev Device) (Source, error)
}
