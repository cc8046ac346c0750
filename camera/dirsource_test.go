package camera

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFrame(t *testing.T, dir, name string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	// Write outside the watched directory and move it in, so the frame is
	// complete when the create event arrives.
	tmp := filepath.Join(t.TempDir(), name)
	f, err := os.Create(tmp)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	closed := false
	s, err := NewDirSource(dir, DirSourceOpts{OnClose: func() { closed = true }})
	if err != nil {
		t.Fatalf("new dir source: %v", err)
	}

	writeFrame(t, dir, "frame00001.jpg", color.White)
	select {
	case ev := <-s.Events():
		if ev.Err != nil {
			t.Fatalf("event error: %v", ev.Err)
		}
		if ev.Image.Bounds().Dx() != 8 {
			t.Fatalf("unexpected frame size %v", ev.Image.Bounds())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no frame received")
	}

	// Consumed frames are removed from the directory.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := os.ReadDir(dir)
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("frame file not removed: %v", entries)
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Close()
	if !closed {
		t.Fatalf("OnClose not called")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("directory not removed after close: %v", err)
	}
}

func TestClassFromBus(t *testing.T) {
	tests := []struct {
		bus  string
		want DeviceClass
	}{
		{"usb-0000:00:14.0-1", ClassExternal},
		{"USB", ClassExternal},
		{"platform:bcm2835-isp", ClassBuiltIn},
		{"pci", ClassBuiltIn},
		{"", ClassBuiltIn},
	}
	for _, tc := range tests {
		if got := ClassFromBus(tc.bus); got != tc.want {
			t.Errorf("ClassFromBus(%q) = %v, want %v", tc.bus, got, tc.want)
		}
	}
}
