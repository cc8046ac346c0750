package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/naming"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 128, 255})
		}
	}
	return img
}

func TestEncodePhoto(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePhoto(&buf, testImage(), naming.JPEG); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Fatalf("bounds %v", img.Bounds())
	}

	buf.Reset()
	if err := EncodePhoto(&buf, testImage(), naming.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("decode png: %v", err)
	}

	if err := EncodePhoto(&buf, nil, naming.TIFF); !errors.Is(err, mucapture.ErrEncodingFailed) {
		t.Fatalf("nil image, got %v, expected ErrEncodingFailed", err)
	}
}

func TestSavePhoto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "x.tiff")
	if err := SavePhoto(OSFS{}, testImage(), naming.TIFF, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte("II*\x00")) && !bytes.HasPrefix(buf, []byte("MM\x00*")) {
		t.Fatalf("not a tiff file")
	}
}

func TestSavePhotoWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := SavePhoto(OSFS{}, testImage(), naming.JPEG, filepath.Join(blocker, "x.jpg"))
	if !errors.Is(err, mucapture.ErrWriteFailed) {
		t.Fatalf("got %v, expected ErrWriteFailed", err)
	}
}

type remuxFS struct {
	OSFS
	calls int
	err   error
}

func (f *remuxFS) Remux(ctx context.Context, src, dst string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return copyFile(src, dst)
}

func TestRelocate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys := &remuxFS{}

	src := filepath.Join(dir, "temp_recording_1.mov")
	os.WriteFile(src, []byte("video"), 0o644)
	dst := filepath.Join(dir, "out", "clip.mov")
	if err := Relocate(ctx, fsys, src, dst); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if fsys.calls != 0 {
		t.Fatalf("same container was remuxed")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still exists")
	}
	if buf, _ := os.ReadFile(dst); string(buf) != "video" {
		t.Fatalf("destination content %q", buf)
	}

	src = filepath.Join(dir, "temp_recording_2.mov")
	os.WriteFile(src, []byte("video2"), 0o644)
	dst = filepath.Join(dir, "out", "clip.mp4")
	if err := Relocate(ctx, fsys, src, dst); err != nil {
		t.Fatalf("relocate with remux: %v", err)
	}
	if fsys.calls != 1 {
		t.Fatalf("remux calls %d, expected 1", fsys.calls)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still exists after remux")
	}
}

func TestRelocateRemuxFailure(t *testing.T) {
	dir := t.TempDir()
	fsys := &remuxFS{err: errors.New("no ffmpeg")}
	src := filepath.Join(dir, "temp.mov")
	os.WriteFile(src, []byte("video"), 0o644)
	err := Relocate(context.Background(), fsys, src, filepath.Join(dir, "clip.mp4"))
	if !errors.Is(err, mucapture.ErrWriteFailed) {
		t.Fatalf("got %v, expected ErrWriteFailed", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source removed after failed remux: %v", err)
	}
}
