package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/cvrt-gmbh/mucapture/camera"

	"go.uber.org/zap"
)

// Binder is the part of a Session the Registry drives.
type Binder interface {
	Bind(ctx context.Context, dev *camera.Device) error
	Device() *camera.Device
	Stalled() bool
}

// Preferences provides the ID of the device the user chose last.
type Preferences interface {
	PreferredDeviceID() string
}

// Registry keeps the connected devices and the selected one.
type Registry struct {
	backend camera.Backend
	binder  Binder
	prefs   Preferences
	log     *zap.Logger

	// Serializes Discover and Select.
	selMu sync.Mutex

	mu       sync.Mutex
	devices  []camera.Device
	selected *camera.Device
}

// NewRegistry returns a registry listing devices through backend and binding
// the selected one with binder.
func NewRegistry(backend camera.Backend, binder Binder, prefs Preferences, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		backend: backend,
		binder:  binder,
		prefs:   prefs,
		log:     log.Named("registry"),
	}
}

// AutoSelect picks the device to use from devs: the preferred device if
// connected, else the first external device, else the first device.
func AutoSelect(devs []camera.Device, preferredID string) (camera.Device, bool) {
	if preferredID != "" {
		for _, d := range devs {
			if d.ID == preferredID {
				return d, true
			}
		}
	}
	for _, d := range devs {
		if d.Class == camera.ClassExternal {
			return d, true
		}
	}
	if len(devs) > 0 {
		return devs[0], true
	}
	return camera.Device{}, false
}

// Devices returns the devices found by the last Discover.
func (r *Registry) Devices() []camera.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]camera.Device(nil), r.devices...)
}

// Selected returns the selected device, or nil.
func (r *Registry) Selected() *camera.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return nil
	}
	d := *r.selected
	return &d
}

// Discover lists the devices and applies AutoSelect. The bound device is kept
// when AutoSelect picks it again, unless the session stalled on it. Without
// devices, the session is unbound.
func (r *Registry) Discover(ctx context.Context) ([]camera.Device, error) {
	r.selMu.Lock()
	defer r.selMu.Unlock()

	devs, err := r.backend.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	r.mu.Lock()
	r.devices = devs
	r.mu.Unlock()
	r.log.Debug("devices discovered", zap.Int("count", len(devs)))

	preferred := ""
	if r.prefs != nil {
		preferred = r.prefs.PreferredDeviceID()
	}
	dev, ok := AutoSelect(devs, preferred)
	if !ok {
		if r.binder.Device() != nil {
			r.setSelected(nil)
			if err := r.binder.Bind(ctx, nil); err != nil {
				return devs, err
			}
		}
		return devs, nil
	}
	if cur := r.binder.Device(); cur != nil && cur.ID == dev.ID && !r.binder.Stalled() {
		r.setSelected(&dev)
		return devs, nil
	}
	return devs, r.selectLocked(ctx, dev)
}

// Select binds dev, replacing the current device. The open error is also
// reported to the session's error state.
func (r *Registry) Select(ctx context.Context, dev camera.Device) error {
	r.selMu.Lock()
	defer r.selMu.Unlock()
	return r.selectLocked(ctx, dev)
}

// SelectID selects the discovered device with id.
func (r *Registry) SelectID(ctx context.Context, id string) (camera.Device, error) {
	for _, d := range r.Devices() {
		if d.ID == id {
			return d, r.Select(ctx, d)
		}
	}
	return camera.Device{}, fmt.Errorf("device %q not found", id)
}

func (r *Registry) selectLocked(ctx context.Context, dev camera.Device) error {
	r.log.Info("selecting device", zap.String("id", dev.ID), zap.String("name", dev.Name))
	r.setSelected(&dev)
	return r.binder.Bind(ctx, &dev)
}

func (r *Registry) setSelected(dev *camera.Device) {
	r.mu.Lock()
	r.selected = dev
	r.mu.Unlock()
}

// Run re-discovers devices on every notification until ctx is done or notes
// is closed.
func (r *Registry) Run(ctx context.Context, notes <-chan camera.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			r.log.Info("device notification", zap.Stringer("kind", n.Kind), zap.String("device", n.DeviceID))
			if _, err := r.Discover(ctx); err != nil {
				r.log.Warn("discovering devices", zap.Error(err))
			}
		}
	}
}
