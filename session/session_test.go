package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/record"
)

type fakeSource struct {
	events chan camera.Event
	mu     sync.Mutex
	closed bool
}

func (s *fakeSource) Events() chan camera.Event {
	return s.events
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeBackend struct {
	mu      sync.Mutex
	devices []camera.Device
	opened  []*fakeSource
	openErr error
}

func (b *fakeBackend) Name() string {
	return "fake"
}

func (b *fakeBackend) ListDevices() ([]camera.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]camera.Device(nil), b.devices...), nil
}

func (b *fakeBackend) Open(dev camera.Device) (camera.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeSource{events: make(chan camera.Event, 1)}
	b.opened = append(b.opened, s)
	return s, nil
}

func (b *fakeBackend) source(i int) *fakeSource {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[i]
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

type fakeWriter struct {
	mu     sync.Mutex
	path   string
	fps    float64
	size   image.Point
	frames int
	closed bool
}

func (w *fakeWriter) WriteFrame(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames++
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

type fakeAuth struct {
	status  camera.AuthStatus
	grant   bool
	request chan struct{}
}

func (a *fakeAuth) Status(ctx context.Context) (camera.AuthStatus, error) {
	return a.status, nil
}

func (a *fakeAuth) Request(ctx context.Context) (bool, error) {
	if a.request != nil {
		<-a.request
	}
	return a.grant, nil
}

func (a *fakeAuth) SettingsHint() string {
	return "open privacy settings"
}

var (
	devExternal = camera.Device{ID: "a", Name: "Capture Card", Class: camera.ClassExternal}
	devBuiltIn  = camera.Device{ID: "b", Name: "Built-in Camera", Class: camera.ClassBuiltIn}
)

type fixture struct {
	backend *fakeBackend
	session *Session
	writers []*fakeWriter
	mu      sync.Mutex
}

func newFixture(t *testing.T, auth camera.Authorizer) *fixture {
	t.Helper()
	f := &fixture{backend: &fakeBackend{devices: []camera.Device{devExternal, devBuiltIn}}}
	open := func(path string, fps float64, size image.Point) (record.Writer, error) {
		w := &fakeWriter{path: path, fps: fps, size: size}
		f.mu.Lock()
		f.writers = append(f.writers, w)
		f.mu.Unlock()
		return w, nil
	}
	s, err := New(Options{
		Backend:    f.backend,
		Authorizer: auth,
		OpenWriter: open,
		TempDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	f.session = s
	return f
}

func (f *fixture) writer(i int) *fakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.writers) {
		return nil
	}
	return f.writers[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextEvent(t *testing.T, c <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func frame(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func (f *fixture) start(t *testing.T, dev camera.Device) *fakeSource {
	t.Helper()
	ctx := context.Background()
	if err := f.session.Bind(ctx, &dev); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := f.session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := f.session.State(); st != Running {
		t.Fatalf("state %v, expected running", st)
	}
	return f.backend.source(f.backend.openCount() - 1)
}

func TestCapturePhoto(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.session.CapturePhoto()
	if !errors.Is(err, mucapture.ErrNoSignal) {
		t.Fatalf("capture without device, got %v, expected ErrNoSignal", err)
	}
	if !errors.Is(f.session.Errors().Err(), mucapture.ErrNoSignal) {
		t.Fatalf("error state not set")
	}

	src := f.start(t, devExternal)
	if _, err := f.session.CapturePhoto(); !errors.Is(err, mucapture.ErrNoSignal) {
		t.Fatalf("capture before first frame, got %v", err)
	}

	img := frame(4, 3)
	src.events <- camera.Event{Image: img}
	waitFor(t, "preview frame", func() bool {
		_, _, ok := f.session.Preview()
		return ok
	})
	got, err := f.session.CapturePhoto()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got != img {
		t.Fatalf("captured image is not the latest frame")
	}
}

func TestStartDeferredWithoutDevice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := f.session.State(); st != Idle {
		t.Fatalf("state without device %v, expected idle", st)
	}
	dev := devBuiltIn
	if err := f.session.Bind(ctx, &dev); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if st := f.session.State(); st != Running {
		t.Fatalf("state after bind %v, expected running", st)
	}
	if err := f.session.Start(ctx); err != nil || f.backend.openCount() != 1 {
		t.Fatalf("second start reopened the device or failed: %v", err)
	}
}

func TestStopRecordingWhenNotRecording(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t, devExternal)
	events, cancel := f.session.Subscribe(8)
	defer cancel()

	if err := f.session.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	if f.session.Recording() || f.session.State() != Running || f.session.Errors().Get() != nil {
		t.Fatalf("state changed by stop recording")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRecording(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.session.StartRecording(ctx); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("recording while idle, got %v, expected ErrNotRunning", err)
	}

	src := f.start(t, devExternal)
	events, cancel := f.session.Subscribe(16)
	defer cancel()

	if err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	started := nextEvent(t, events, RecordingStarted)
	if err := f.session.StartRecording(ctx); err != nil {
		t.Fatalf("second start recording: %v", err)
	}
	if !f.session.Recording() {
		t.Fatalf("not recording")
	}

	for i := 0; i < 3; i++ {
		src.events <- camera.Event{Image: frame(8, 6)}
	}
	waitFor(t, "recorded frames", func() bool {
		w := f.writer(0)
		return w != nil && w.count() == 3
	})

	if err := f.session.StopRecording(ctx); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	fin := nextEvent(t, events, RecordingFinished)
	if fin.Err != nil {
		t.Fatalf("recording failed: %v", fin.Err)
	}
	w := f.writer(0)
	if fin.Path != started.Path || w.path != fin.Path {
		t.Fatalf("paths differ: started %s, finished %s, writer %s", started.Path, fin.Path, w.path)
	}
	if w.fps != DefaultFrameRate || w.size != image.Pt(8, 6) || !w.closed {
		t.Fatalf("writer fps %v size %v closed %v", w.fps, w.size, w.closed)
	}
	if f.session.Recording() || f.session.RecordingDuration() != fin.Duration {
		t.Fatalf("recording state after stop")
	}
	if f.session.State() != Running {
		t.Fatalf("session stopped with recording")
	}
}

func TestRecordingWithoutFrames(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.start(t, devExternal)
	events, cancel := f.session.Subscribe(16)
	defer cancel()

	f.session.StartRecording(ctx)
	f.session.StopRecording(ctx)
	fin := nextEvent(t, events, RecordingFinished)
	if !errors.Is(fin.Err, mucapture.ErrRecordingFailed) {
		t.Fatalf("got %v, expected ErrRecordingFailed", fin.Err)
	}
}

func TestStopStopsRecordingFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	src := f.start(t, devExternal)
	events, cancel := f.session.Subscribe(16)
	defer cancel()

	f.session.StartRecording(ctx)
	src.events <- camera.Event{Image: frame(2, 2)}
	waitFor(t, "recorded frame", func() bool {
		w := f.writer(0)
		return w != nil && w.count() == 1
	})

	if err := f.session.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	var kinds []EventKind
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			if ev.Kind == RecordingStarted {
				continue
			}
			kinds = append(kinds, ev.Kind)
		case <-time.After(5 * time.Second):
			t.Fatalf("missing events, got %v", kinds)
		}
	}
	if kinds[0] != RecordingFinished || kinds[1] != StateChanged {
		t.Fatalf("events %v, expected recording-finished then state-changed", kinds)
	}
	if !src.isClosed() || f.session.State() != Idle || f.session.Recording() {
		t.Fatalf("session not torn down")
	}
	if err := f.session.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRebindDiscardsStaleFrames(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	old := f.start(t, devExternal)
	old.events <- camera.Event{Image: frame(2, 2)}
	waitFor(t, "preview frame", func() bool {
		_, _, ok := f.session.Preview()
		return ok
	})

	dev := devBuiltIn
	if err := f.session.Bind(ctx, &dev); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if !old.isClosed() {
		t.Fatalf("old source not closed")
	}
	if _, _, ok := f.session.Preview(); ok {
		t.Fatalf("frame of previous device kept after rebind")
	}
	if d := f.session.Device(); d == nil || d.ID != devBuiltIn.ID {
		t.Fatalf("bound device %v", d)
	}

	// Nothing reads the old source anymore, a late frame stays in it.
	old.events <- camera.Event{Image: frame(2, 2)}
	time.Sleep(20 * time.Millisecond)
	if _, _, ok := f.session.Preview(); ok {
		t.Fatalf("stale frame accepted")
	}
	if f.session.State() != Running || f.backend.openCount() != 2 {
		t.Fatalf("session not running on new device")
	}
}

func TestOpenFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.openErr = errors.New("busy")
	dev := devExternal
	f.session.Bind(context.Background(), &dev)
	err := f.session.Start(context.Background())
	if !errors.Is(err, mucapture.ErrDeviceOpenFailed) {
		t.Fatalf("got %v, expected ErrDeviceOpenFailed", err)
	}
	if f.session.State() != Idle {
		t.Fatalf("state %v after failed open", f.session.State())
	}
	if !errors.Is(f.session.Errors().Err(), mucapture.ErrDeviceOpenFailed) {
		t.Fatalf("error state %v", f.session.Errors().Err())
	}
	if !f.session.Stalled() {
		t.Fatalf("session not stalled after failed open")
	}

	// Rebinding the same device retries the open.
	f.backend.mu.Lock()
	f.backend.openErr = nil
	f.backend.mu.Unlock()
	if err := f.session.Bind(context.Background(), &dev); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if f.session.State() != Running || f.session.Stalled() {
		t.Fatalf("state %v after rebind, expected running", f.session.State())
	}
}

func TestAuthorizationDenied(t *testing.T) {
	f := newFixture(t, &fakeAuth{status: camera.Denied})
	dev := devExternal
	f.session.Bind(context.Background(), &dev)
	err := f.session.Start(context.Background())
	if !errors.Is(err, mucapture.ErrAuthorizationDenied) {
		t.Fatalf("got %v, expected ErrAuthorizationDenied", err)
	}
	cur := f.session.Errors().Get()
	if cur == nil || cur.Hint != "open privacy settings" {
		t.Fatalf("error state %+v, expected hint", cur)
	}
	if f.backend.openCount() != 0 {
		t.Fatalf("device opened without authorization")
	}
}

func TestAuthorizationRequested(t *testing.T) {
	auth := &fakeAuth{status: camera.NotDetermined, grant: true, request: make(chan struct{})}
	f := newFixture(t, auth)
	dev := devExternal
	f.session.Bind(context.Background(), &dev)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.session.State() != Idle {
		t.Fatalf("started before access was granted")
	}
	close(auth.request)
	waitFor(t, "running session", func() bool {
		return f.session.State() == Running
	})
}
