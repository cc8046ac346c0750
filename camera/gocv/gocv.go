// Package gocv implements an in-process camera backend with OpenCV.
package gocv

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"

	"gocv.io/x/gocv"
)

// Backend lists and opens devices through OpenCV's VideoCapture.
type Backend struct {
	Verbose bool

	// MaxProbe is the number of device indices probed on platforms without
	// /dev/video* nodes. Defaults to 4.
	MaxProbe int
}

// Check that Backend implements interface Backend.
var _ camera.Backend = (*Backend)(nil)

// Name returns "gocv".
func (b *Backend) Name() string {
	return "gocv"
}

// ListDevices returns the video4linux nodes on Linux. Elsewhere, indices are
// probed by opening them.
func (b *Backend) ListDevices() ([]camera.Device, error) {
	if runtime.GOOS == "linux" {
		nodes, err := filepath.Glob("/dev/video*")
		if err != nil {
			return nil, fmt.Errorf("listing video nodes: %v", err)
		}
		return linuxDevices(nodes, func(node string) string {
			target, _ := filepath.EvalSymlinks(filepath.Join("/sys/class/video4linux", filepath.Base(node), "device"))
			return target
		}), nil
	}

	n := b.MaxProbe
	if n <= 0 {
		n = 4
	}
	devs := []camera.Device{}
	for i := 0; i < n; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		ok := vc.IsOpened()
		vc.Close()
		if !ok {
			continue
		}
		class := camera.ClassExternal
		if i == 0 {
			class = camera.ClassBuiltIn
		}
		devs = append(devs, camera.Device{
			ID:    strconv.Itoa(i),
			Name:  fmt.Sprintf("Camera %d", i),
			Class: class,
		})
	}
	return devs, nil
}

// linuxDevices turns /dev/video* nodes into devices, sorted by index. sysfs
// returns the resolved sysfs device path of a node, used to tell USB devices
// apart.
func linuxDevices(nodes []string, sysfs func(node string) string) []camera.Device {
	type node struct {
		path  string
		index int
	}
	var l []node
	for _, p := range nodes {
		i, err := deviceIndex(p)
		if err != nil {
			continue
		}
		l = append(l, node{p, i})
	}
	sort.Slice(l, func(i, j int) bool {
		return l[i].index < l[j].index
	})

	devs := []camera.Device{}
	for _, n := range l {
		class := camera.ClassBuiltIn
		if strings.Contains(sysfs(n.path), "/usb") {
			class = camera.ClassExternal
		}
		devs = append(devs, camera.Device{
			ID:    n.path,
			Name:  fmt.Sprintf("Video device %d (%s)", n.index, n.path),
			Class: class,
		})
	}
	return devs
}

// deviceIndex returns the OpenCV index for "/dev/video2" or "2".
func deviceIndex(id string) (int, error) {
	s := strings.TrimPrefix(id, "/dev/video")
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("not a video device: %q", id)
	}
	return i, nil
}

// Open opens dev and starts reading frames.
func (b *Backend) Open(dev camera.Device) (camera.Source, error) {
	return NewSource(dev.ID, b.Verbose)
}

// Source reads frames from a VideoCapture in a goroutine. Only the latest frame
// is kept for the reader.
type Source struct {
	verbose bool
	events  chan camera.Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Check that Source implements interface Source.
var _ camera.Source = (*Source)(nil)

// NewSource opens the device with the given ID, see deviceIndex.
//
// Callers must call Close to clean up.
func NewSource(deviceID string, verbose bool) (*Source, error) {
	index, err := deviceIndex(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mucapture.ErrDeviceOpenFailed, err)
	}
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("opening video capture %d: %w: %v", index, mucapture.ErrDeviceOpenFailed, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("opening video capture %d: %w", index, mucapture.ErrDeviceOpenFailed)
	}

	s := &Source{
		verbose: verbose,
		events:  make(chan camera.Event, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop(vc)
	return s, nil
}

func (s *Source) loop(vc *gocv.VideoCapture) {
	defer close(s.done)
	defer vc.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures == 50 {
				s.deliver(camera.Event{Err: fmt.Errorf("reading frames: %w", mucapture.ErrNoSignal)})
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}
		failures = 0

		img, err := mat.ToImage()
		if err != nil {
			if s.verbose {
				log.Printf("converting frame: %v", err)
			}
			s.deliver(camera.Event{Err: fmt.Errorf("converting frame: %w: %v", mucapture.ErrEncodingFailed, err)})
			continue
		}
		s.deliver(camera.Event{Image: img})
	}
}

// deliver replaces an undelivered event with ev.
func (s *Source) deliver(ev camera.Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			if s.verbose {
				log.Printf("dropping frame, consumer still busy")
			}
		default:
		}
	}
}

// Events returns a channel on which Events can be received.
func (s *Source) Events() chan camera.Event {
	return s.events
}

// Close stops reading and releases the device.
func (s *Source) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}
