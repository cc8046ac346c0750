// Command mucapture runs the capture daemon: it keeps a live preview of the
// selected camera or capture card, takes photos and recordings, names and saves
// them, and serves a local HTTP API for the front end.
//
// Examples:
//
//	# List available devices and quit.
//	mucapture -listdevices
//
//	# Run with the config file in the user config directory.
//	mucapture
//
//	# Use ffmpeg with an explicit device and keep settings in redis.
//	mucapture -backend ffmpeg -device /dev/video2 -store redis -redis 127.0.0.1:6379
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/camera/backends"
	"github.com/cvrt-gmbh/mucapture/camera/hotplug"
	"github.com/cvrt-gmbh/mucapture/camera/portal"
	"github.com/cvrt-gmbh/mucapture/capture"
	"github.com/cvrt-gmbh/mucapture/config"
	"github.com/cvrt-gmbh/mucapture/control"
	"github.com/cvrt-gmbh/mucapture/session"
	"github.com/cvrt-gmbh/mucapture/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  string
	listDevices bool
	overrides   config.Overrides
)

func init() {
	flag.StringVar(&configPath, "config", "", "config file, by default mucapture/config.yaml in the user config directory")
	flag.BoolVar(&listDevices, "listdevices", false, "if set, lists devices and exits")
	overrides.Backend = flag.String("backend", "", "capture backend: "+strings.Join(backends.Names, ", "))
	overrides.Device = flag.String("device", "", "device ID to prefer over the stored choice")
	overrides.Interval = flag.Duration("interval", 0, "preview interval of subprocess backends")
	overrides.VideoSize = flag.String("videosize", "", "ffmpeg capture size, eg 1280x720")
	overrides.TempDir = flag.String("tempdir", "", "parent directory for temporary recordings")
	overrides.Verbose = flag.Bool("verbose", false, "print verbose backend output")
	overrides.Store = flag.String("store", "", "settings store: yaml or redis")
	overrides.RedisAddr = flag.String("redis", "", "redis address for the redis settings store")
	overrides.Listen = flag.String("listen", "", "address of the HTTP API")
	overrides.LogLevel = flag.String("loglevel", "", "log level: debug, info, warn or error")
	overrides.Dev = flag.Bool("dev", false, "development logging and gin debug mode")
}

func usage() {
	log.Println("usage: mucapture [flags]")
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
	cfg.Override(overrides)
	if err := cfg.Validate(); err != nil {
		log.Printf("%v", err)
		return 1
	}
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

	if listDevices {
		devs, err := backend.ListDevices()
		if err != nil {
			log.Printf("listing devices: %v", err)
			return 1
		}
		for _, dev := range devs {
			fmt.Printf("%s: %s (%s)\n", dev.ID, dev.Name, dev.Class)
		}
		return 0
	}

	logger, err := config.BuildLogger(cfg.LogLevel, cfg.Dev)
	if err != nil {
		log.Printf("building logger: %v", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, backend, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, backend camera.Backend, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("config", configPath),
		zap.String("backend", backend.Name()),
		zap.String("store", cfg.Store))

	store, closer, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closer.Close()
	prefs, err := settings.Load(ctx, store, logger)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if cfg.Device != "" {
		if err := prefs.SetPreferredDeviceID(ctx, cfg.Device); err != nil {
			return err
		}
	}
	for _, cf := range prefs.Bindings().Conflicts() {
		logger.Warn("key binding shadowed",
			zap.Stringer("chord", cf.Chord),
			zap.Stringer("action", cf.Winner),
			zap.Stringer("shadowed", cf.Shadowed))
	}

	auth := authorizer(logger)

	tempDir, err := mucapture.TempDirIn(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sess, err := session.New(session.Options{
		Backend:    backend,
		Authorizer: auth,
		TempDir:    tempDir,
		Log:        logger,
	})
	if err != nil {
		return err
	}
	reg := session.NewRegistry(backend, sess, prefs, logger)
	ctrl, err := capture.New(capture.Options{
		Session:    sess,
		Registry:   reg,
		Authorizer: auth,
		Settings:   prefs,
		Log:        logger,
	})
	if err != nil {
		return err
	}

	var plug hotplug.Source
	if runtime.GOOS == "linux" {
		w, err := hotplug.NewWatcher("/dev", cfg.Verbose)
		if err != nil {
			logger.Warn("watching /dev failed, polling devices", zap.Error(err))
		} else {
			plug = w
		}
	}
	if plug == nil {
		plug = hotplug.NewPoller(backend, cfg.PollInterval, cfg.Verbose)
	}
	defer plug.Close()

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(logger.Named("gin")).Writer()
	router := control.New(control.Options{
		Controller: ctrl,
		Session:    sess,
		Registry:   reg,
		Settings:   prefs,
		Log:        logger,
	})

	if err := ctrl.Start(ctx); err != nil {
		// The error is kept in the session's error state for the front end.
		logger.Warn("starting session", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reg.Run(gctx, plug.Notifications()) })
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return control.Serve(gctx, cfg.Listen, router, logger) })
	g.Go(func() error { return logNotices(gctx, ctrl.Notices(), logger) })
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn("saving recording in progress", zap.Error(err))
	}
	if err := sess.Stop(shutdownCtx); err != nil {
		logger.Warn("stopping session", zap.Error(err))
	}
	if pending := ctrl.Pending(); pending != nil {
		logger.Warn("discarding unsaved capture", zap.Stringer("kind", pending.Kind))
		ctrl.Cancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

// authorizer returns the desktop portal on Linux if it is reachable. Other
// systems manage camera access outside of the daemon.
func authorizer(logger *zap.Logger) camera.Authorizer {
	if runtime.GOOS != "linux" {
		return camera.Granted{}
	}
	a, err := portal.New()
	if err != nil {
		logger.Info("desktop portal not available, assuming camera access", zap.Error(err))
		return camera.Granted{}
	}
	return a
}

func logNotices(ctx context.Context, notices <-chan capture.Notice, logger *zap.Logger) error {
	logger = logger.Named("notice")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-notices:
			switch n.Kind {
			case capture.Saved:
				logger.Info("saved", zap.Stringer("kind", n.MediaKind), zap.String("path", n.Path))
			case capture.Failed:
				logger.Warn("save failed", zap.Error(n.Err))
			default:
				logger.Debug(n.Kind.String())
			}
		}
	}
}
