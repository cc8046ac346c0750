// Package camera describes capture devices and the frame streams they produce,
// and defines the collaborators the capture session depends on: device
// backends, authorization and connect/disconnect notifications.
package camera

import (
	"fmt"
	"strings"
)

// DeviceClass tells built-in cameras apart from external capture hardware.
type DeviceClass int

const (
	ClassBuiltIn DeviceClass = iota
	ClassExternal
)

func (c DeviceClass) String() string {
	switch c {
	case ClassBuiltIn:
		return "builtin"
	case ClassExternal:
		return "external"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c DeviceClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *DeviceClass) UnmarshalText(b []byte) error {
	switch string(b) {
	case "builtin":
		*c = ClassBuiltIn
	case "external":
		*c = ClassExternal
	default:
		return fmt.Errorf("unknown device class %q", b)
	}
	return nil
}

// DeviceCap describes a capability of a device.
type DeviceCap struct {
	Type      string // "video/x-raw", "image/jpeg" or "nvarguscamerasrc"
	Width     int
	Height    int
	Framerate int
}

// Device is a camera or capture card capable of delivering images.
type Device struct {
	ID    string
	Name  string
	Class DeviceClass
	Caps  []DeviceCap
}

// ClassFromBus derives the device class from a bus description as reported by
// v4l2 ("usb-0000:00:14.0-1", "platform:bcm2835") or udev ("usb", "pci").
func ClassFromBus(bus string) DeviceClass {
	bus = strings.ToLower(strings.TrimSpace(bus))
	if strings.HasPrefix(bus, "usb") || strings.HasPrefix(bus, "thunderbolt") {
		return ClassExternal
	}
	return ClassBuiltIn
}
