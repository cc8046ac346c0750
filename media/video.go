package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	mucapture "github.com/cvrt-gmbh/mucapture"

	"github.com/xfrr/goffmpeg/transcoder"
)

// Remuxer rewrites a video into another container without re-encoding.
type Remuxer interface {
	Remux(ctx context.Context, src, dst string) error
}

// FFmpeg remuxes with ffmpeg, copying the streams.
type FFmpeg struct{}

var _ Remuxer = FFmpeg{}

// Remux writes the streams of src to dst, the container follows the
// extension of dst.
func (FFmpeg) Remux(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(src, dst); err != nil {
		return fmt.Errorf("initializing transcoder: %v", err)
	}
	trans.MediaFile().SetVideoCodec("copy")
	trans.MediaFile().SetAudioCodec("copy")
	trans.MediaFile().SetOutputFormat(container(dst))

	// Stream copy is fast, the context is only checked before starting.
	done := trans.Run(false)
	if err := <-done; err != nil {
		return fmt.Errorf("remuxing: %v", err)
	}
	return nil
}

func container(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Relocate moves the recording src to dst, creating the directory first. If
// the extensions differ the streams are copied into the container of dst and
// src is removed. The Remuxer is fsys if it implements Remuxer, FFmpeg
// otherwise.
func Relocate(ctx context.Context, fsys FS, src, dst string) error {
	if err := fsys.MkdirAll(filepath.Dir(dst)); err != nil {
		return fmt.Errorf("%w: making directory: %v", mucapture.ErrWriteFailed, err)
	}
	if container(src) == container(dst) {
		if err := fsys.Move(src, dst); err != nil {
			return fmt.Errorf("%w: moving recording: %v", mucapture.ErrWriteFailed, err)
		}
		return nil
	}

	r, ok := fsys.(Remuxer)
	if !ok {
		r = FFmpeg{}
	}
	if err := r.Remux(ctx, src, dst); err != nil {
		fsys.Remove(dst)
		return fmt.Errorf("%w: %v", mucapture.ErrWriteFailed, err)
	}
	if err := fsys.Remove(src); err != nil {
		return fmt.Errorf("%w: removing recording: %v", mucapture.ErrWriteFailed, err)
	}
	return nil
}
