package session

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
)

func TestAutoSelect(t *testing.T) {
	devFaceTime := camera.Device{ID: "ft", Name: "FaceTime HD Camera", Class: camera.ClassBuiltIn}
	devCard := camera.Device{ID: "card", Name: "Cam Link 4K", Class: camera.ClassExternal}
	devDesk := camera.Device{ID: "desk", Name: "Desk View Camera", Class: camera.ClassBuiltIn}

	tests := []struct {
		name      string
		devs      []camera.Device
		preferred string
		expected  string
	}{
		{"empty", nil, "", ""},
		{"only built-in", []camera.Device{devFaceTime, devDesk}, "", "ft"},
		{"external first", []camera.Device{devFaceTime, devCard}, "", "card"},
		{"preferred built-in", []camera.Device{devFaceTime, devCard}, "ft", "ft"},
		{"preferred missing", []camera.Device{devDesk, devCard}, "ft", "card"},
	}
	for _, tc := range tests {
		d, ok := AutoSelect(tc.devs, tc.preferred)
		if ok != (tc.expected != "") || d.ID != tc.expected {
			t.Fatalf("%s: got %q (%v), expected %q", tc.name, d.ID, ok, tc.expected)
		}
	}
}

type fakeBinder struct {
	mu      sync.Mutex
	dev     *camera.Device
	binds   []string
	stalled bool
}

func (b *fakeBinder) Bind(ctx context.Context, dev *camera.Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := ""
	if dev != nil {
		d := *dev
		b.dev = &d
		id = d.ID
	} else {
		b.dev = nil
	}
	b.binds = append(b.binds, id)
	return nil
}

func (b *fakeBinder) Device() *camera.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev
}

func (b *fakeBinder) Stalled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stalled
}

func (b *fakeBinder) bound() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.binds...)
}

type prefs string

func (p prefs) PreferredDeviceID() string { return string(p) }

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{devices: []camera.Device{devBuiltIn, devExternal}}
	binder := &fakeBinder{}
	r := NewRegistry(backend, binder, prefs(""), nil)

	devs, err := r.Discover(ctx)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(devs) != 2 || !reflect.DeepEqual(r.Devices(), devs) {
		t.Fatalf("devices %v", devs)
	}
	if sel := r.Selected(); sel == nil || sel.ID != devExternal.ID {
		t.Fatalf("selected %v, expected external device", sel)
	}

	// Same result, the bound device stays.
	r.Discover(ctx)
	if b := binder.bound(); !reflect.DeepEqual(b, []string{"a"}) {
		t.Fatalf("binds %v", b)
	}

	// Manual selection.
	if _, err := r.SelectID(ctx, devBuiltIn.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := r.SelectID(ctx, "missing"); err == nil {
		t.Fatalf("selecting unknown device succeeded")
	}

	// The external device vanishes.
	backend.mu.Lock()
	backend.devices = []camera.Device{devBuiltIn}
	backend.mu.Unlock()
	r.Discover(ctx)
	if sel := r.Selected(); sel == nil || sel.ID != devBuiltIn.ID {
		t.Fatalf("selected %v, expected built-in device", sel)
	}

	// All devices gone.
	backend.mu.Lock()
	backend.devices = nil
	backend.mu.Unlock()
	r.Discover(ctx)
	if r.Selected() != nil || binder.Device() != nil {
		t.Fatalf("device still selected without devices")
	}
	expected := []string{"a", "b", ""}
	if b := binder.bound(); !reflect.DeepEqual(b, expected) {
		t.Fatalf("binds %v, expected %v", b, expected)
	}
}

func TestDiscoverRetriesStalled(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{devices: []camera.Device{devExternal}}
	binder := &fakeBinder{}
	r := NewRegistry(backend, binder, nil, nil)

	r.Discover(ctx)
	binder.mu.Lock()
	binder.stalled = true
	binder.mu.Unlock()
	r.Discover(ctx)
	expected := []string{"a", "a"}
	if b := binder.bound(); !reflect.DeepEqual(b, expected) {
		t.Fatalf("binds %v, expected %v", b, expected)
	}
}

func TestDiscoverPreferred(t *testing.T) {
	backend := &fakeBackend{devices: []camera.Device{devExternal, devBuiltIn}}
	binder := &fakeBinder{}
	r := NewRegistry(backend, binder, prefs(devBuiltIn.ID), nil)
	r.Discover(context.Background())
	if sel := r.Selected(); sel == nil || sel.ID != devBuiltIn.ID {
		t.Fatalf("selected %v, expected preferred device", sel)
	}
}

func TestRun(t *testing.T) {
	backend := &fakeBackend{}
	binder := &fakeBinder{}
	r := NewRegistry(backend, binder, nil, nil)

	notes := make(chan camera.Notification)
	done := make(chan error)
	go func() {
		done <- r.Run(context.Background(), notes)
	}()

	backend.mu.Lock()
	backend.devices = []camera.Device{devExternal}
	backend.mu.Unlock()
	notes <- camera.Notification{Kind: camera.Connected, DeviceID: devExternal.ID}

	waitFor(t, "device bound", func() bool {
		return binder.Device() != nil
	})
	close(notes)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
}
