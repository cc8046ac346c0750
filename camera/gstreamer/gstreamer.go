// Package gstreamer implements a camera backend with the gstreamer tools.
package gstreamer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y gstreamer1.0-tools gstreamer1.0-plugins-good gstreamer1.0-plugins-base gstreamer1.0-plugins-base-apps")

// SourceOpts has options for a new gstreamer source.
type SourceOpts struct {
	Verbose  bool
	Interval time.Duration // How often to take a preview image.
}

type device struct {
	ID          string
	Name        string
	DeviceClass string
	Bus         string
	RawCaps     []string
	Caps        []camera.DeviceCap
	inCapMode   bool
}

var widthRegexp = regexp.MustCompile("width=([0-9]+)[^0-9]")
var heightRegexp = regexp.MustCompile("height=([0-9]+)[^0-9]")
var framerateRegexp = regexp.MustCompile("framerate=([0-9]+)[^0-9]")

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// ListDevices returns a list of devices that can be used for capturing.
func ListDevices() ([]camera.Device, error) {
	cmd := exec.Command("gst-device-monitor-1.0", "Video/Source")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using gst-device-monitor-1.0: %v", err)
	}
	return parseDeviceMonitor(string(buf))
}

// parseDeviceMonitor parses gst-device-monitor-1.0 output. Devices without a
// raw video cap are skipped, caps are sorted by closeness to 640x480.
func parseDeviceMonitor(s string) ([]camera.Device, error) {
	var r []device
	var d *device
	b := bufio.NewScanner(strings.NewReader(s))
	for b.Scan() {
		s := strings.TrimSpace(b.Text())
		if s == "" {
			continue
		}
		if s == "Device found:" {
			if d != nil {
				r = append(r, *d)
			}
			d = &device{RawCaps: []string{}, Caps: []camera.DeviceCap{}}
			continue
		}

		if d == nil {
			continue
		}

		switch {
		case strings.HasPrefix(s, "name  :"):
			d.Name = strings.TrimSpace(strings.SplitN(s, ":", 2)[1])
		case strings.HasPrefix(s, "class :"):
			d.DeviceClass = strings.TrimSpace(strings.SplitN(s, ":", 2)[1])
		case strings.HasPrefix(s, "caps  :"):
			d.RawCaps = append(d.RawCaps, strings.TrimSpace(strings.SplitN(s, ":", 2)[1]))
			d.inCapMode = true
		case strings.HasPrefix(s, "properties:"):
			d.inCapMode = false
		case d.inCapMode:
			d.RawCaps = append(d.RawCaps, s)
		case strings.HasPrefix(s, "device.path =") || strings.HasPrefix(s, "api.v4l2.path ="):
			d.ID = propValue(s)
		case strings.HasPrefix(s, "device.bus =") || strings.HasPrefix(s, "api.v4l2.cap.bus_info ="):
			if d.Bus == "" {
				d.Bus = propValue(s)
			}
		}
	}
	if err := b.Err(); err != nil {
		return nil, err
	}

	if d != nil && d.ID != "" {
		r = append(r, *d)
	}

	devs := []camera.Device{}
	for _, d := range r {
		if d.DeviceClass != "Video/Source" || d.ID == "" {
			continue
		}
		for _, rc := range d.RawCaps {
			if c, ok := parseRawCap(rc); ok {
				d.Caps = append(d.Caps, c)
			}
		}
		if len(d.Caps) == 0 {
			continue
		}

		distance := func(a camera.DeviceCap) int {
			return abs(a.Width-640)*abs(a.Height-480) + abs(a.Width-640) + abs(a.Height-480)
		}

		sort.SliceStable(d.Caps, func(i, j int) bool {
			return distance(d.Caps[i]) < distance(d.Caps[j])
		})

		devs = append(devs, camera.Device{
			ID:    d.ID,
			Name:  d.Name,
			Class: camera.ClassFromBus(d.Bus),
			Caps:  d.Caps,
		})
	}
	return devs, nil
}

// parseRawCap parses a "video/x-raw" caps line. Caps without a size and
// framerate are not usable for a preview pipeline.
func parseRawCap(s string) (camera.DeviceCap, bool) {
	if !strings.HasPrefix(s, "video/x-raw") {
		return camera.DeviceCap{}, false
	}
	var vals [3]int
	for i, re := range []*regexp.Regexp{widthRegexp, heightRegexp, framerateRegexp} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return camera.DeviceCap{}, false
		}
		v, err := strconv.ParseInt(m[1], 10, 32)
		if err != nil || v == 0 {
			return camera.DeviceCap{}, false
		}
		vals[i] = int(v)
	}
	return camera.DeviceCap{Type: "video/x-raw", Width: vals[0], Height: vals[1], Framerate: vals[2]}, true
}

func propValue(s string) string {
	v := strings.TrimSpace(strings.SplitN(s, "=", 2)[1])
	return strings.Trim(v, `"`)
}

// Backend opens devices with gst-launch-1.0.
type Backend struct {
	Opts SourceOpts
}

// Check that Backend implements interface Backend.
var _ camera.Backend = (*Backend)(nil)

// Name returns "gstreamer".
func (b *Backend) Name() string {
	return "gstreamer"
}

// ListDevices returns the devices reported by gst-device-monitor-1.0.
func (b *Backend) ListDevices() ([]camera.Device, error) {
	return ListDevices()
}

// Open starts a gstreamer pipeline for dev, using its preferred cap.
func (b *Backend) Open(dev camera.Device) (camera.Source, error) {
	return NewSource(dev, b.Opts)
}

// NewSource starts a gst-launch-1.0 pipeline for dev. Gstreamer writes images
// to a temporary directory. These files are read and sent over the channel
// returned by Events.
//
// Callers must call Close to clean up.
func NewSource(dev camera.Device, opts SourceOpts) (camera.Source, error) {
	if len(dev.Caps) == 0 {
		return nil, fmt.Errorf("device %q has no usable caps: %w", dev.ID, mucapture.ErrDeviceOpenFailed)
	}

	tempDir, err := mucapture.TempDirIn("")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %v", err)
	}
	if opts.Verbose {
		log.Printf("gstreamer source, writing images to tempdir %s", tempDir)
	}

	args := []string{
		"v4l2src",
		"device=" + dev.ID,
		"!",
		fmt.Sprintf("video/x-raw,width=%d,height=%d", dev.Caps[0].Width, dev.Caps[0].Height),
		"!",
		"videoconvert",
		"!",
		"jpegenc",
		"!",
		"multifilesink",
		"location=" + tempDir + "/frame%05d.jpg",
	}

	if opts.Verbose {
		log.Printf("starting gstreamer as gst-launch-1.0 %s", strings.Join(args, " "))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "gst-launch-1.0", args...)
	cmd.Dir = tempDir
	if opts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	src, err := camera.NewDirSource(tempDir, camera.DirSourceOpts{
		Verbose:  opts.Verbose,
		Interval: opts.Interval,
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
		return nil, fmt.Errorf("starting gstreamer with gst-launch-1.0: %w: %v", mucapture.ErrDeviceOpenFailed, err)
	}
	go cmd.Wait()

	return src, nil
}
