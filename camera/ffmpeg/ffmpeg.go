// Package ffmpeg implements a camera backend with ffmpeg, listing devices with
// v4l2-ctl.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"

	"github.com/fsnotify/fsnotify"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y ffmpeg v4l-utils")

// SourceOpts has options for a new ffmpeg source.
type SourceOpts struct {
	Verbose   bool
	Interval  time.Duration // How often to take a preview image.
	VideoSize string        // Capture size, e.g. "1280x720". Defaults to 640x480.
}

// ListDevices returns a list of devices that can be used for capturing.
func ListDevices() ([]camera.Device, error) {
	cmd := exec.Command("v4l2-ctl", "--list-devices")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using v4l2-ctl: %v", err)
	}
	return parseV4L2Devices(string(buf)), nil
}

// parseV4L2Devices parses the output of v4l2-ctl --list-devices. Only the
// first node of each card is used, further nodes are metadata or codec
// interfaces of the same hardware.
func parseV4L2Devices(s string) []camera.Device {
	var curDevice, curBus string
	var seen bool
	devices := []camera.Device{}
	for _, line := range strings.Split(s, "\n") {
		if !strings.HasPrefix(line, "\t") {
			curDevice = strings.TrimSuffix(strings.TrimSpace(line), ":")
			curBus = ""
			seen = false
			if i := strings.LastIndex(curDevice, " ("); i >= 0 && strings.HasSuffix(curDevice, ")") {
				curBus = curDevice[i+2 : len(curDevice)-1]
				curDevice = curDevice[:i]
			}
			continue
		}
		if curDevice == "" || seen || strings.HasPrefix(curDevice, "bcm2835-") {
			continue
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/dev/video") {
			continue
		}
		seen = true
		devices = append(devices, camera.Device{
			Name:  fmt.Sprintf("%s (%s)", curDevice, line),
			ID:    line,
			Class: camera.ClassFromBus(curBus),
		})
	}
	return devices
}

// Backend opens devices with ffmpeg.
type Backend struct {
	Opts SourceOpts
}

// Check that Backend implements interface Backend.
var _ camera.Backend = (*Backend)(nil)

// Name returns "ffmpeg".
func (b *Backend) Name() string {
	return "ffmpeg"
}

// ListDevices returns the devices reported by v4l2-ctl.
func (b *Backend) ListDevices() ([]camera.Device, error) {
	return ListDevices()
}

// Open starts ffmpeg for dev.
func (b *Backend) Open(dev camera.Device) (camera.Source, error) {
	return NewSource(dev.ID, b.Opts)
}

// NewSource starts ffmpeg capturing deviceID. Ffmpeg writes images to a
// temporary directory. These files are read and sent over the channel returned
// by Events.
//
// Callers must call Close to clean up.
func NewSource(deviceID string, opts SourceOpts) (camera.Source, error) {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.VideoSize == "" {
		opts.VideoSize = "640x480"
	}

	tempDir, err := mucapture.TempDirIn("")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %v", err)
	}
	if opts.Verbose {
		log.Printf("ffmpeg source, writing images to tempdir %s", tempDir)
	}

	args := []string{
		"-framerate", fmt.Sprintf("%d", int(time.Second/opts.Interval)),
		"-video_size", opts.VideoSize,
		"-c:v", "mjpeg",
		"-i", deviceID,
		"-f", "image2",
		"-c:v", "copy",
		"-bsf:v", "mjpeg2jpeg",
		"-qscale:v", "2",
		"frame%d.jpg",
	}
	if opts.Verbose {
		log.Printf("starting ffmpeg with args %s", args)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Dir = tempDir
	if opts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	src, err := camera.NewDirSource(tempDir, camera.DirSourceOpts{
		Verbose:  opts.Verbose,
		Interval: opts.Interval,
		Op:       fsnotify.Write,
		OnClose:  cancel,
	})
	if err != nil {
		cancel()
		os.RemoveAll(tempDir)
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		src.Close()
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("starting command ffmpeg: %w: %v", mucapture.ErrDeviceOpenFailed, err)
	}
	go cmd.Wait()

	return src, nil
}
