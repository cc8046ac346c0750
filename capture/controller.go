// Package capture drives a session on behalf of a user: key presses, photos
// and recordings waiting to be named, quick captures saved right away, and
// starting again once camera access was granted.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/keybind"
	"github.com/cvrt-gmbh/mucapture/media"
	"github.com/cvrt-gmbh/mucapture/naming"
	"github.com/cvrt-gmbh/mucapture/session"
	"github.com/cvrt-gmbh/mucapture/settings"

	"go.uber.org/zap"
)

// Session is the part of a session.Session the controller uses.
type Session interface {
	Start(ctx context.Context) error
	Recording() bool
	Preview() (image.Image, time.Time, bool)
	CapturePhoto() (image.Image, error)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Subscribe(size int) (<-chan session.Event, func())
	Errors() *mucapture.ErrorState
}

// Discoverer re-enumerates devices and selects one.
type Discoverer interface {
	Discover(ctx context.Context) ([]camera.Device, error)
}

var (
	_ Session    = (*session.Session)(nil)
	_ Discoverer = (*session.Registry)(nil)
)

// ErrPending is returned when a capture is started while another one waits to
// be saved.
var ErrPending = errors.New("capture waiting to be saved")

// ErrRecording is returned when a photo is taken during a recording.
var ErrRecording = errors.New("recording in progress")

// ErrNothingPending is returned by Save when nothing waits to be saved.
var ErrNothingPending = errors.New("nothing to save")

// Pending is a photo or recording waiting for the user to name it. Image is
// set for photos, TempPath and Duration for recordings.
type Pending struct {
	Kind       naming.Kind   `json:"kind"`
	CapturedAt time.Time     `json:"capturedAt"`
	Image      image.Image   `json:"-"`
	TempPath   string        `json:"tempPath,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Options for a new Controller.
type Options struct {
	Session    Session
	Registry   Discoverer
	Authorizer camera.Authorizer // Defaults to camera.Granted.
	Settings   *settings.Settings
	FS         media.FS // Defaults to media.OSFS.
	Log        *zap.Logger
}

// Controller is safe for concurrent use.
type Controller struct {
	sess     Session
	reg      Discoverer
	auth     camera.Authorizer
	settings *settings.Settings
	engine   *naming.Engine
	fs       media.FS
	log      *zap.Logger
	notices  chan Notice

	mu        sync.Mutex
	pending   *Pending
	saving    bool
	quickRec  bool
	lastAuth  camera.AuthStatus
	authKnown bool
}

// New returns a controller. Call Run to handle finished recordings.
func New(opts Options) (*Controller, error) {
	if opts.Session == nil || opts.Registry == nil || opts.Settings == nil {
		return nil, fmt.Errorf("missing session, registry or settings")
	}
	if opts.Authorizer == nil {
		opts.Authorizer = camera.Granted{}
	}
	if opts.FS == nil {
		opts.FS = media.OSFS{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Controller{
		sess:     opts.Session,
		reg:      opts.Registry,
		auth:     opts.Authorizer,
		settings: opts.Settings,
		engine:   naming.NewEngine(opts.Settings, opts.Settings),
		fs:       opts.FS,
		log:      opts.Log.Named("controller"),
		notices:  make(chan Notice, 32),
	}, nil
}

// Engine returns the naming engine used for saves.
func (c *Controller) Engine() *naming.Engine {
	return c.engine
}

// Start discovers devices and starts the session on the selected one.
func (c *Controller) Start(ctx context.Context) error {
	c.observeAuth(ctx)
	if _, err := c.reg.Discover(ctx); err != nil {
		c.sess.Errors().Set(err)
		c.log.Warn("discovering devices", zap.Error(err))
	}
	return c.sess.Start(ctx)
}

// observeAuth records the authorization status and returns the previous one.
func (c *Controller) observeAuth(ctx context.Context) (prev camera.AuthStatus, known bool, cur camera.AuthStatus) {
	cur, err := c.auth.Status(ctx)
	if err != nil {
		c.log.Debug("querying camera authorization", zap.Error(err))
		cur = camera.NotDetermined
	}
	c.mu.Lock()
	prev, known = c.lastAuth, c.authKnown
	c.lastAuth, c.authKnown = cur, true
	c.mu.Unlock()
	return prev, known, cur
}

// Reactivate is called when the user returns to the application. If camera
// access was granted in the meantime, the error is cleared, devices are
// discovered again and the session is started.
func (c *Controller) Reactivate(ctx context.Context) (bool, error) {
	prev, known, cur := c.observeAuth(ctx)
	if !known || prev == camera.Authorized || cur != camera.Authorized {
		return false, nil
	}
	c.log.Info("camera access granted, restarting", zap.Stringer("previous", prev))
	c.sess.Errors().Clear()
	if _, err := c.reg.Discover(ctx); err != nil {
		c.sess.Errors().Set(err)
		return true, err
	}
	return true, c.sess.Start(ctx)
}

// Run handles finished recordings until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	events, unsubscribe := c.sess.Subscribe(16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.Kind == session.RecordingFinished {
				c.recordingFinished(ctx, ev)
			}
		}
	}
}

// Shutdown stops a recording in progress and saves it with the generated
// name. Call it after Run returned.
func (c *Controller) Shutdown(ctx context.Context) error {
	if !c.sess.Recording() {
		return nil
	}
	events, unsubscribe := c.sess.Subscribe(16)
	defer unsubscribe()

	c.mu.Lock()
	c.quickRec = true
	c.mu.Unlock()
	if err := c.sess.StopRecording(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.Kind == session.RecordingFinished {
				c.recordingFinished(ctx, ev)
				return ev.Err
			}
		}
	}
}

// HandleKey performs the action bound to ev. It returns false when no action
// is bound or the action is not possible: photos need a preview frame and no
// recording, recordings need a frame or a recording to stop. Keys are ignored
// while a capture waits to be saved.
func (c *Controller) HandleKey(ctx context.Context, ev keybind.Event) bool {
	action := c.settings.Bindings().Dispatch(ev)
	if action == keybind.None {
		return false
	}
	c.mu.Lock()
	busy := c.pending != nil || c.saving
	c.mu.Unlock()
	if busy {
		c.log.Debug("key ignored, capture pending", zap.Stringer("action", action))
		return false
	}

	_, _, hasFrame := c.sess.Preview()
	recording := c.sess.Recording()

	var err error
	switch action {
	case keybind.QuickPhoto, keybind.Photo:
		if !hasFrame || recording {
			return false
		}
		if action == keybind.QuickPhoto {
			_, err = c.QuickPhoto(ctx)
		} else {
			_, err = c.CapturePhoto()
		}
	case keybind.QuickVideo, keybind.Video:
		if !hasFrame && !recording {
			return false
		}
		err = c.ToggleRecording(ctx, action == keybind.QuickVideo)
	}
	if err != nil {
		c.log.Warn("key action failed", zap.Stringer("action", action), zap.Error(err))
	}
	return true
}

// CapturePhoto takes the latest preview frame and holds it until Save or
// Cancel. Photos are not taken while recording.
func (c *Controller) CapturePhoto() (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, ErrPending
	}
	if c.sess.Recording() {
		return nil, ErrRecording
	}
	img, err := c.sess.CapturePhoto()
	if err != nil {
		return nil, err
	}
	c.feedback(true)
	c.pending = &Pending{Kind: naming.Photo, CapturedAt: time.Now(), Image: img}
	p := *c.pending
	c.notify(Notice{Kind: PendingChanged, Pending: &p})
	return &p, nil
}

// QuickPhoto takes the latest preview frame and saves it right away. It
// returns the path written.
func (c *Controller) QuickPhoto(ctx context.Context) (string, error) {
	if c.sess.Recording() {
		return "", ErrRecording
	}
	img, err := c.sess.CapturePhoto()
	if err != nil {
		return "", err
	}
	c.feedback(true)
	return c.save(ctx, &Pending{Kind: naming.Photo, CapturedAt: time.Now(), Image: img}, "")
}

// ToggleRecording starts a recording, or stops the one in progress. A
// recording started or stopped with quick set is saved right away, otherwise
// it is held for naming.
func (c *Controller) ToggleRecording(ctx context.Context, quick bool) error {
	if c.sess.Recording() {
		if quick {
			c.mu.Lock()
			c.quickRec = true
			c.mu.Unlock()
		}
		return c.sess.StopRecording(ctx)
	}
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return ErrPending
	}
	c.quickRec = quick
	c.mu.Unlock()

	if err := c.sess.StartRecording(ctx); err != nil {
		c.sess.Errors().Set(err)
		return err
	}
	c.feedback(false)
	return nil
}

func (c *Controller) recordingFinished(ctx context.Context, ev session.Event) {
	if ev.Err != nil {
		c.notify(Notice{Kind: Failed, Err: ev.Err})
		return
	}
	p := &Pending{Kind: naming.Video, CapturedAt: time.Now(), TempPath: ev.Path, Duration: ev.Duration}

	c.mu.Lock()
	quick := c.quickRec
	c.quickRec = false
	if !quick {
		if c.pending != nil {
			c.mu.Unlock()
			c.log.Warn("recording finished while a capture is pending, discarding", zap.String("path", ev.Path))
			c.fs.Remove(ev.Path)
			return
		}
		c.pending = p
		cp := *p
		c.mu.Unlock()
		c.notify(Notice{Kind: PendingChanged, Pending: &cp})
		return
	}
	c.mu.Unlock()

	if _, err := c.save(ctx, p, ""); err != nil {
		c.log.Warn("saving quick recording", zap.Error(err))
	}
}

// Pending returns the capture waiting to be saved, or nil.
func (c *Controller) Pending() *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	p := *c.pending
	return &p
}

// PendingName returns the file name Save would use with base. Counters are not
// changed.
func (c *Controller) PendingName(base string) (string, bool) {
	p := c.Pending()
	if p == nil {
		return "", false
	}
	return c.engine.Preview(base, p.Kind, p.CapturedAt), true
}

// Save names and writes the pending capture. On failure the capture stays
// pending.
func (c *Controller) Save(ctx context.Context, base string) (string, error) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return "", ErrNothingPending
	}
	if c.saving {
		c.mu.Unlock()
		return "", fmt.Errorf("save in progress")
	}
	p := *c.pending
	c.saving = true
	c.mu.Unlock()

	path, err := c.save(ctx, &p, base)

	c.mu.Lock()
	c.saving = false
	if err == nil {
		c.pending = nil
	}
	c.mu.Unlock()
	if err == nil {
		c.notify(Notice{Kind: PendingChanged})
	}
	return path, err
}

// Cancel drops the pending capture. A pending recording is deleted.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	p := c.pending
	if c.saving {
		c.mu.Unlock()
		return fmt.Errorf("save in progress")
	}
	c.pending = nil
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	c.notify(Notice{Kind: PendingChanged})
	if p.Kind == naming.Video && p.TempPath != "" {
		if err := c.fs.Remove(p.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing recording: %w", err)
		}
		c.log.Info("recording discarded", zap.String("path", p.TempPath))
	}
	return nil
}

func (c *Controller) save(ctx context.Context, p *Pending, base string) (string, error) {
	var path string
	_, err := c.engine.Reserve(ctx, base, p.Kind, p.CapturedAt, func(name string, cfg naming.Config) error {
		var err error
		path, err = naming.Path(cfg.SavePath, name)
		if err != nil {
			return fmt.Errorf("%w: resolving %s: %v", mucapture.ErrWriteFailed, cfg.SavePath, err)
		}
		if p.Kind == naming.Video {
			return media.Relocate(ctx, c.fs, p.TempPath, path)
		}
		return media.SavePhoto(c.fs, p.Image, cfg.ImageFormat, path)
	})
	if err != nil {
		c.sess.Errors().Set(err)
		c.notify(Notice{Kind: Failed, Err: err})
		return "", err
	}
	c.sess.Errors().Clear()
	c.log.Info("saved", zap.Stringer("kind", p.Kind), zap.String("path", path))
	c.notify(Notice{Kind: Saved, Path: path, MediaKind: p.Kind})
	return path, nil
}

// SaveDir returns the directory captures are saved to.
func (c *Controller) SaveDir() (string, error) {
	return naming.Dir(c.engine.Config().SavePath)
}

// feedback emits the flash and sound notices enabled in the settings. Flashes
// are only shown for photos.
func (c *Controller) feedback(photo bool) {
	if photo && c.settings.FlashEnabled() {
		c.notify(Notice{Kind: Flash})
	}
	if c.settings.SoundEnabled() {
		c.notify(Notice{Kind: Sound})
	}
}
