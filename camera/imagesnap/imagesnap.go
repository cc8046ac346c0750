// Package imagesnap implements a camera backend with the imagesnap command
// for macOS.
package imagesnap

import (
	"context"
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

// ListDevices returns all image capturing devices available to imagesnap.
// An empty list means no device is connected.
func ListDevices() ([]camera.Device, error) {
	cmd := exec.Command("imagesnap", "-l")
	buf, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing devices with imagesnap -l: %v", err)
	}
	return parseDevices(string(buf)), nil
}

func parseDevices(s string) []camera.Device {
	devs := []camera.Device{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		var name string
		if strings.HasPrefix(line, "=> ") {
			// Newer format, example: "=> FaceTime HD Camera (Built-in)"
			name = line[len("=> "):]
		} else if strings.HasPrefix(line, "<") {
			// Older format, example: "<AVCaptureDALDevice: 0x7fa2c7852fd0 [FaceTime HD Camera (Built-in)][0x8020000005ac8514]>"
			t := strings.Split(line, "[")
			if len(t) < 2 {
				continue
			}
			name = strings.Split(t[1], "]")[0]
		} else {
			continue
		}
		devs = append(devs, camera.Device{Name: name, ID: name, Class: classify(name)})
	}
	return devs
}

// classify guesses the class from the name, imagesnap does not report the
// transport.
func classify(name string) camera.DeviceClass {
	for _, s := range []string{"Built-in", "FaceTime", "(Display)"} {
		if strings.Contains(name, s) {
			return camera.ClassBuiltIn
		}
	}
	return camera.ClassExternal
}

// SourceOpts has options for a new imagesnap source.
type SourceOpts struct {
	Verbose  bool
	Interval time.Duration // How often to take a preview image.
}

// Backend opens devices with imagesnap.
type Backend struct {
	Opts SourceOpts
}

// Check that Backend implements interface Backend.
var _ camera.Backend = (*Backend)(nil)

// Name returns "imagesnap".
func (b *Backend) Name() string {
	return "imagesnap"
}

// ListDevices returns the devices available to imagesnap.
func (b *Backend) ListDevices() ([]camera.Device, error) {
	return ListDevices()
}

// Open starts imagesnap for dev.
func (b *Backend) Open(dev camera.Device) (camera.Source, error) {
	return NewSource(dev.ID, b.Opts)
}

// NewSource starts imagesnap, making it write images of deviceID to a
// temporary directory. These images are read and sent on the channel returned
// by Events.
//
// Callers must call Close to clean up.
func NewSource(deviceID string, opts SourceOpts) (camera.Source, error) {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}

	tempDir, err := mucapture.TempDirIn("")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %v", err)
	}
	if opts.Verbose {
		log.Printf("imagesnap source, tempdir for images: %s", tempDir)
	}

	args := []string{
		"-d", deviceID,
		"-t", fmt.Sprintf("%.2f", opts.Interval.Seconds()),
	}
	if opts.Verbose {
		log.Printf("starting imagesnap with args %s", args)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "imagesnap", args...)
	cmd.Dir = tempDir
	if opts.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	// Watch before starting, the first image is written right away.
	src, err := camera.NewDirSource(tempDir, camera.DirSourceOpts{
		Verbose: opts.Verbose,
		Op:      fsnotify.Create,
		OnClose: cancel,
	})
	if err != nil {
		cancel()
		os.RemoveAll(tempDir)
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		src.Close()
		return nil, fmt.Errorf("starting imagesnap: %w: %v", mucapture.ErrDeviceOpenFailed, err)
	}
	go cmd.Wait()

	return src, nil
}
