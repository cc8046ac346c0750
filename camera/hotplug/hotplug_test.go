package hotplug

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
)

func next(t *testing.T, c <-chan camera.Notification) camera.Notification {
	t.Helper()
	select {
	case n := <-c:
		return n
	case <-time.After(5 * time.Second):
		t.Fatalf("no notification")
	}
	panic("unreachable")
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, false)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "media0"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	node := filepath.Join(dir, "video3")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	n := next(t, w.Notifications())
	if n.Kind != camera.Connected || n.DeviceID != node {
		t.Fatalf("got %v %s, expected connected %s", n.Kind, n.DeviceID, node)
	}

	if err := os.Remove(node); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for {
		n = next(t, w.Notifications())
		if n.Kind == camera.Disconnected {
			break
		}
	}
	if n.DeviceID != node {
		t.Fatalf("disconnected %s, expected %s", n.DeviceID, node)
	}
}

type fakeLister struct {
	sync.Mutex
	devs []camera.Device
}

func (l *fakeLister) ListDevices() ([]camera.Device, error) {
	l.Lock()
	defer l.Unlock()
	return append([]camera.Device(nil), l.devs...), nil
}

func (l *fakeLister) set(ids ...string) {
	l.Lock()
	defer l.Unlock()
	l.devs = nil
	for _, id := range ids {
		l.devs = append(l.devs, camera.Device{ID: id})
	}
}

func TestPoller(t *testing.T) {
	l := &fakeLister{}
	l.set("a", "b")
	p := NewPoller(l, 10*time.Millisecond, false)
	defer p.Close()

	time.Sleep(30 * time.Millisecond)
	l.set("b", "c")

	got := []camera.Notification{next(t, p.Notifications()), next(t, p.Notifications())}
	exp := []camera.Notification{
		{Kind: camera.Disconnected, DeviceID: "a"},
		{Kind: camera.Connected, DeviceID: "c"},
	}
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("notifications, got %v, expected %v", got, exp)
	}
}

func TestDiff(t *testing.T) {
	prev := map[string]bool{"a": true, "b": true}
	if l := diff(prev, prev); len(l) != 0 {
		t.Fatalf("unchanged set, got %v", l)
	}
	l := diff(prev, map[string]bool{"d": true, "c": true})
	exp := []camera.Notification{
		{Kind: camera.Disconnected, DeviceID: "a"},
		{Kind: camera.Disconnected, DeviceID: "b"},
		{Kind: camera.Connected, DeviceID: "c"},
		{Kind: camera.Connected, DeviceID: "d"},
	}
	if !reflect.DeepEqual(l, exp) {
		t.Fatalf("diff, got %v, expected %v", l, exp)
	}
}
