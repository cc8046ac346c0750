// Command mucsnap takes a single photo from a camera and saves it with the
// names, formats and counters of the capture daemon's settings, printing the
// path of the file.
//
// Examples:
//
//	# List available devices and quit.
//	mucsnap -listdevices
//
//	# Take a photo with the stored settings and the preferred device.
//	mucsnap
//
//	# Take a photo from an explicit device, named after "desk".
//	mucsnap -backend ffmpeg -device /dev/video2 -name desk
//
//	# Print the first frame's details instead of saving it.
//	mucsnap -dump
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/camera/backends"
	"github.com/cvrt-gmbh/mucapture/config"
	"github.com/cvrt-gmbh/mucapture/media"
	"github.com/cvrt-gmbh/mucapture/naming"
	"github.com/cvrt-gmbh/mucapture/session"
	"github.com/cvrt-gmbh/mucapture/settings"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

var (
	configPath  string
	listDevices bool
	backendName string
	deviceID    string
	baseName    string
	timeout     time.Duration
	dump        bool
	verbose     bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "config file, by default mucapture/config.yaml in the user config directory")
	flag.BoolVar(&listDevices, "listdevices", false, "if set, lists devices and exits")
	flag.StringVar(&backendName, "backend", "", "capture backend, by default the one from the config file")
	flag.StringVar(&deviceID, "device", "", "device ID to use, by default the preferred or first external device")
	flag.StringVar(&baseName, "name", "", "base name placed between prefix and suffix")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for a frame")
	flag.BoolVar(&dump, "dump", false, "print the device and frame details instead of saving")
	flag.BoolVar(&verbose, "verbose", false, "print verbose output")
}

func usage() {
	log.Println("usage: mucsnap [flags]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 0 {
		usage()
	}
	os.Exit(main0())
}

func main0() int {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			log.Printf("locating config file: %v", err)
			return 1
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	cfg.Override(config.Overrides{Backend: &backendName, Verbose: &verbose})
	if cfg.Backend == "" {
		cfg.Backend = backends.Default()
	}
	backend, err := backends.New(cfg.Backend, backends.Options{
		Verbose:   cfg.Verbose,
		Interval:  cfg.Interval,
		VideoSize: cfg.VideoSize,
	})
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	devs, err := backend.ListDevices()
	if err != nil {
		log.Printf("listing devices: %v", err)
		return 1
	}
	if listDevices {
		for _, dev := range devs {
			fmt.Printf("%s: %s (%s)\n", dev.ID, dev.Name, dev.Class)
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := cfg.OpenStore(ctx, zap.NewNop())
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer closer.Close()
	prefs, err := settings.Load(ctx, store, zap.NewNop())
	if err != nil {
		log.Printf("loading settings: %v", err)
		return 1
	}

	preferred := deviceID
	if preferred == "" {
		preferred = prefs.PreferredDeviceID()
	}
	dev, ok := session.AutoSelect(devs, preferred)
	if !ok {
		log.Printf("no capture device found")
		return 1
	}
	if deviceID != "" && dev.ID != deviceID {
		log.Printf("device %q not found", deviceID)
		return 1
	}
	if verbose {
		log.Printf("using device %s (%s)", dev.ID, dev.Name)
	}

	ev, err := firstFrame(ctx, backend, dev)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	if dump {
		spew.Dump(dev, ev.Image.Bounds(), ev.Image.ColorModel())
		return 0
	}

	engine := naming.NewEngine(prefs, prefs)
	var path string
	_, err = engine.Reserve(ctx, baseName, naming.Photo, time.Now(), func(name string, nc naming.Config) error {
		p, err := naming.Path(nc.SavePath, name)
		if err != nil {
			return err
		}
		if err := media.SavePhoto(media.OSFS{}, ev.Image, nc.ImageFormat, p); err != nil {
			return err
		}
		path = p
		return nil
	})
	if path == "" {
		log.Printf("saving photo: %v", err)
		return 1
	}
	if err != nil {
		// The photo was written, only the counter could not be stored.
		log.Printf("%v", err)
	}
	fmt.Println(path)
	return 0
}

// firstFrame opens dev and returns its first image.
func firstFrame(ctx context.Context, backend camera.Backend, dev camera.Device) (camera.Event, error) {
	src, err := backend.Open(dev)
	if err != nil {
		return camera.Event{}, fmt.Errorf("opening %s: %w", dev.ID, err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return camera.Event{}, fmt.Errorf("no frame from %s within %s", dev.ID, timeout)
			}
			return camera.Event{}, ctx.Err()
		case ev, ok := <-src.Events():
			if !ok {
				return camera.Event{}, fmt.Errorf("%s closed without a frame", dev.ID)
			}
			if ev.Err != nil {
				if verbose {
					log.Printf("frame: %v", ev.Err)
				}
				continue
			}
			return ev, nil
		}
	}
}
