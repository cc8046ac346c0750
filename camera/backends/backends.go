// Package backends selects a camera backend by name.
package backends

import (
	"fmt"
	"runtime"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/camera/ffmpeg"
	"github.com/cvrt-gmbh/mucapture/camera/gocv"
	"github.com/cvrt-gmbh/mucapture/camera/gstreamer"
	"github.com/cvrt-gmbh/mucapture/camera/imagesnap"
)

// Names lists the known backends.
var Names = []string{"imagesnap", "ffmpeg", "gstreamer", "gocv"}

// Options are passed to the selected backend where it supports them.
type Options struct {
	Verbose   bool
	Interval  time.Duration
	VideoSize string // ffmpeg only.
}

// Default returns the backend used when none is configured: imagesnap on
// macOS, gstreamer elsewhere.
func Default() string {
	if runtime.GOOS == "darwin" {
		return "imagesnap"
	}
	return "gstreamer"
}

// New returns the backend called name. An empty name selects Default.
func New(name string, opts Options) (camera.Backend, error) {
	if name == "" {
		name = Default()
	}
	switch name {
	case "imagesnap":
		return &imagesnap.Backend{Opts: imagesnap.SourceOpts{Verbose: opts.Verbose, Interval: opts.Interval}}, nil
	case "ffmpeg":
		return &ffmpeg.Backend{Opts: ffmpeg.SourceOpts{Verbose: opts.Verbose, Interval: opts.Interval, VideoSize: opts.VideoSize}}, nil
	case "gstreamer":
		return &gstreamer.Backend{Opts: gstreamer.SourceOpts{Verbose: opts.Verbose, Interval: opts.Interval}}, nil
	case "gocv":
		return &gocv.Backend{Verbose: opts.Verbose}, nil
	}
	return nil, fmt.Errorf("unknown backend %q, expected one of %v", name, Names)
}
