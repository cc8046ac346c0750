// Package session binds a capture device to a live preview and records videos
// from it. A Registry keeps the list of devices and decides which one the
// Session is bound to.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/record"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State of a Session. Callers only observe Idle and Running, Starting and
// Stopping are held while the operation changing them is in progress.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrNotRunning is returned when recording is started without a running
// session.
var ErrNotRunning = errors.New("session not running")

// DefaultFrameRate is used for recordings when the preview rate is not known
// yet.
const DefaultFrameRate = 30

// Options for a new Session.
type Options struct {
	Backend    camera.Backend
	Authorizer camera.Authorizer // Defaults to camera.Granted.
	OpenWriter record.Opener     // Defaults to record.OpenGoCV.
	TempDir    string            // Directory for temporary recordings, required.
	Errors     *mucapture.ErrorState
	Log        *zap.Logger
}

type recording struct {
	path  string
	start time.Time
	gen   uint64

	mu     sync.Mutex
	writer record.Writer
	err    error
	frames int
	closed bool
}

// Session owns the connection to at most one device. All state changes go
// through its methods, which are safe for concurrent use. Operations changing
// the pipeline are serialized.
type Session struct {
	backend camera.Backend
	auth    camera.Authorizer
	open    record.Opener
	tempDir string
	errs    *mucapture.ErrorState
	log     *zap.Logger
	events  hub

	// Serializes Start, Stop, Bind and recording start/stop.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	wantRunning bool
	device      *camera.Device
	src         camera.Source
	gen         uint64
	stop        chan struct{}
	pumpDone    chan struct{}
	latest      image.Image
	latestAt    time.Time
	meter       *mucapture.FrameRateMeter
	rec         *recording
	lastDur     time.Duration
	authPending bool
	granted     bool // Access was granted by a request of this session.
}

// New returns an unbound, idle session.
func New(opts Options) (*Session, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("missing backend")
	}
	if opts.TempDir == "" {
		return nil, fmt.Errorf("missing temp dir")
	}
	if opts.Authorizer == nil {
		opts.Authorizer = camera.Granted{}
	}
	if opts.OpenWriter == nil {
		opts.OpenWriter = record.OpenGoCV
	}
	if opts.Errors == nil {
		opts.Errors = &mucapture.ErrorState{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	meter, err := mucapture.NewFrameRateMeter(30)
	if err != nil {
		return nil, err
	}
	return &Session{
		backend: opts.Backend,
		auth:    opts.Authorizer,
		open:    opts.OpenWriter,
		tempDir: opts.TempDir,
		errs:    opts.Errors,
		log:     opts.Log.Named("session"),
		meter:   meter,
	}, nil
}

// Subscribe returns a channel receiving all events from now on, and a function
// to unsubscribe. The channel is not closed. Events are dropped when the
// channel buffer of size is full.
func (s *Session) Subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = 32
	}
	return s.events.subscribe(size)
}

// Errors returns the error state the session reports failures to.
func (s *Session) Errors() *mucapture.ErrorState {
	return s.errs
}

func (s *Session) fail(err error) {
	hint := ""
	if errors.Is(err, mucapture.ErrAuthorizationDenied) {
		hint = s.auth.SettingsHint()
	}
	s.errs.SetWithHint(err, hint)
	s.log.Warn("session error", zap.Error(err))
	s.events.publish(Event{Kind: ErrorOccurred, Err: err})
}

// State returns Idle or Running.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running || s.state == Stopping {
		return Running
	}
	return Idle
}

// Device returns the bound device, or nil.
func (s *Session) Device() *camera.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	d := *s.device
	return &d
}

// Recording returns whether a recording is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

// RecordingDuration returns the time since the recording started, or the
// length of the last recording when none is in progress.
func (s *Session) RecordingDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return time.Since(s.rec.start)
	}
	return s.lastDur
}

// FrameRate returns the measured preview frame rate.
func (s *Session) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meter.Rate()
}

// Preview returns the latest frame and when it arrived.
func (s *Session) Preview() (image.Image, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latestAt, s.latest != nil
}

// CapturePhoto returns the latest preview frame. It fails with ErrNoSignal
// when no frame was received from the bound device.
func (s *Session) CapturePhoto() (image.Image, error) {
	img, _, ok := s.Preview()
	if !ok {
		err := fmt.Errorf("capturing photo: %w", mucapture.ErrNoSignal)
		s.fail(err)
		return nil, err
	}
	return img, nil
}

// Start opens the bound device and starts the preview. It is a no-op when
// already running. Without a bound device, the session starts as soon as one
// is bound. When authorization was not determined yet, the user is asked in
// the background and the session starts once granted.
func (s *Session) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx, true)
}

// startLocked is called with opMu held. The authorization check is skipped
// right after the user granted access.
func (s *Session) startLocked(ctx context.Context, checkAuth bool) error {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return nil
	}
	s.wantRunning = true
	dev := s.device
	if s.granted {
		checkAuth = false
	}
	s.mu.Unlock()

	status := camera.Authorized
	if checkAuth {
		var err error
		status, err = s.auth.Status(ctx)
		if err != nil {
			s.log.Warn("querying camera authorization", zap.Error(err))
			status = camera.NotDetermined
		}
	}
	switch status {
	case camera.Authorized:
	case camera.NotDetermined:
		s.requestAuthorization(ctx)
		return nil
	default:
		s.mu.Lock()
		s.wantRunning = false
		s.mu.Unlock()
		err := fmt.Errorf("starting session: %w (%s)", mucapture.ErrAuthorizationDenied, status)
		s.fail(err)
		return err
	}

	if dev == nil {
		s.log.Debug("no device bound, start deferred")
		return nil
	}
	return s.openLocked(*dev)
}

// requestAuthorization asks for camera access once, starting the session when
// granted.
func (s *Session) requestAuthorization(ctx context.Context) {
	s.mu.Lock()
	if s.authPending {
		s.mu.Unlock()
		return
	}
	s.authPending = true
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		granted, err := s.auth.Request(ctx)

		s.mu.Lock()
		s.authPending = false
		s.mu.Unlock()

		if err != nil {
			s.fail(fmt.Errorf("requesting camera access: %w", err))
			return
		}
		if !granted {
			s.mu.Lock()
			s.wantRunning = false
			s.mu.Unlock()
			s.fail(fmt.Errorf("requesting camera access: %w", mucapture.ErrAuthorizationDenied))
			return
		}
		s.log.Info("camera access granted")
		s.opMu.Lock()
		s.mu.Lock()
		s.granted = true
		want := s.wantRunning
		s.mu.Unlock()
		if want {
			err = s.startLocked(ctx, false)
		}
		s.opMu.Unlock()
		if err != nil {
			s.log.Warn("starting after authorization", zap.Error(err))
		}
	}()
}

// openLocked builds the pipeline for dev. Called with opMu held.
func (s *Session) openLocked(dev camera.Device) error {
	s.mu.Lock()
	s.state = Starting
	s.mu.Unlock()

	src, err := s.backend.Open(dev)
	if err != nil {
		s.mu.Lock()
		s.state = Idle
		s.mu.Unlock()
		if !errors.Is(err, mucapture.ErrDeviceOpenFailed) {
			err = fmt.Errorf("%w: %v", mucapture.ErrDeviceOpenFailed, err)
		}
		err = fmt.Errorf("opening %s: %w", dev.Name, err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.src = src
	s.stop = make(chan struct{})
	s.pumpDone = make(chan struct{})
	s.latest = nil
	s.latestAt = time.Time{}
	s.meter.Reset()
	s.state = Running
	stop, done := s.stop, s.pumpDone
	s.mu.Unlock()

	go s.pump(gen, src, stop, done)

	s.errs.Clear()
	s.log.Info("session running", zap.String("device", dev.ID), zap.String("backend", s.backend.Name()))
	s.events.publish(Event{Kind: StateChanged, State: Running})
	return nil
}

// pump moves frames of one pipeline generation into the session.
func (s *Session) pump(gen uint64, src camera.Source, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				s.log.Debug("frame error", zap.Error(ev.Err))
				if errors.Is(ev.Err, mucapture.ErrNoSignal) || errors.Is(ev.Err, mucapture.ErrEncodingFailed) {
					s.errs.Set(ev.Err)
				}
				continue
			}
			if ev.Image == nil {
				continue
			}
			s.frame(gen, ev.Image)
		}
	}
}

func (s *Session) frame(gen uint64, img image.Image) {
	now := time.Now()

	s.mu.Lock()
	if gen != s.gen || s.state != Running {
		s.mu.Unlock()
		return
	}
	s.latest = img
	s.latestAt = now
	s.meter.Observe(now)
	rec := s.rec
	fps := s.meter.Rate()
	s.mu.Unlock()

	if rec == nil || rec.gen != gen {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.closed || rec.err != nil {
		return
	}
	if rec.writer == nil {
		if fps <= 0 {
			fps = DefaultFrameRate
		}
		w, err := s.open(rec.path, fps, img.Bounds().Size())
		if err != nil {
			rec.err = err
			s.log.Warn("opening recording writer", zap.String("path", rec.path), zap.Error(err))
			return
		}
		rec.writer = w
		s.log.Debug("recording writer opened", zap.String("path", rec.path), zap.Float64("fps", fps), zap.Stringer("size", img.Bounds().Size()))
	}
	if err := rec.writer.WriteFrame(img); err != nil {
		rec.err = err
		s.log.Warn("writing recording frame", zap.Error(err))
		return
	}
	rec.frames++
}

// Stop stops a recording in progress, then tears down the pipeline. It is a
// no-op when idle.
func (s *Session) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.wantRunning = false
	s.mu.Unlock()
	return s.teardownLocked()
}

// teardownLocked finishes the recording and closes the pipeline. Called with
// opMu held.
func (s *Session) teardownLocked() error {
	s.finishRecordingLocked()

	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	s.gen++
	src, stop, done := s.src, s.stop, s.pumpDone
	s.src, s.stop, s.pumpDone = nil, nil, nil
	s.latest = nil
	s.latestAt = time.Time{}
	s.mu.Unlock()

	var err error
	if stop != nil {
		close(stop)
		<-done
	}
	if src != nil {
		err = src.Close()
	}

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()

	s.log.Info("session stopped")
	s.events.publish(Event{Kind: StateChanged, State: Idle})
	return err
}

// Stalled reports whether the session was asked to run on its bound device
// but is idle, e.g. because opening the device failed.
func (s *Session) Stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wantRunning && s.device != nil && s.state == Idle && !s.authPending
}

// Bind tears down the current pipeline and binds dev, or unbinds when dev is
// nil. A session that was running, or was asked to start, starts on dev.
func (s *Session) Bind(ctx context.Context, dev *camera.Device) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.teardownLocked(); err != nil {
		s.log.Warn("closing previous device", zap.Error(err))
	}

	s.mu.Lock()
	if dev != nil {
		d := *dev
		s.device = &d
	} else {
		s.device = nil
	}
	want := s.wantRunning
	s.mu.Unlock()

	if dev != nil {
		s.log.Info("device bound", zap.String("id", dev.ID), zap.String("name", dev.Name), zap.Stringer("class", dev.Class))
	} else {
		s.log.Info("device unbound")
	}
	s.events.publish(Event{Kind: DeviceChanged, Device: s.Device()})

	if dev == nil || !want {
		return nil
	}
	return s.startLocked(ctx, true)
}

// StartRecording starts recording preview frames to a temporary file. It is a
// no-op while recording. The file is created with the first frame.
func (s *Session) StartRecording(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return nil
	}
	if s.state != Running {
		return ErrNotRunning
	}
	now := time.Now()
	name := fmt.Sprintf("temp_recording_%d_%s.mov", now.Unix(), uuid.NewString())
	s.rec = &recording{
		path:  filepath.Join(s.tempDir, name),
		start: now,
		gen:   s.gen,
	}
	s.log.Info("recording started", zap.String("path", s.rec.path))
	s.events.publish(Event{Kind: RecordingStarted, Path: s.rec.path})
	return nil
}

// StopRecording finalizes the recording and publishes RecordingFinished with
// the temporary file. It has no effect when not recording.
func (s *Session) StopRecording(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.finishRecordingLocked()
	return nil
}

// finishRecordingLocked is called with opMu held.
func (s *Session) finishRecordingLocked() {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec == nil {
		return
	}

	rec.mu.Lock()
	rec.closed = true
	err := rec.err
	if rec.writer != nil {
		if cerr := rec.writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	} else if err == nil {
		err = errors.New("no frames received")
	}
	frames := rec.frames
	rec.mu.Unlock()

	d := time.Since(rec.start)
	s.mu.Lock()
	s.lastDur = d
	s.mu.Unlock()

	if err != nil {
		if !errors.Is(err, mucapture.ErrRecordingFailed) {
			err = fmt.Errorf("%w: %v", mucapture.ErrRecordingFailed, err)
		}
		os.Remove(rec.path)
		s.fail(err)
	} else {
		s.log.Info("recording finished", zap.String("path", rec.path), zap.Duration("duration", d), zap.Int("frames", frames))
	}
	s.events.publish(Event{Kind: RecordingFinished, Path: rec.path, Duration: d, Err: err})
}
