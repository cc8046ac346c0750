package control

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/capture"
	"github.com/cvrt-gmbh/mucapture/session"
	"github.com/cvrt-gmbh/mucapture/settings"

	"github.com/gin-gonic/gin"
)

type fakeSource struct {
	events chan camera.Event
}

func (s *fakeSource) Events() chan camera.Event { return s.events }
func (s *fakeSource) Close() error              { return nil }

type fakeBackend struct {
	mu  sync.Mutex
	src *fakeSource
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) ListDevices() ([]camera.Device, error) {
	return []camera.Device{
		{ID: "/dev/video0", Name: "Integrated Camera", Class: camera.ClassBuiltIn},
		{ID: "/dev/video2", Name: "Cam Link 4K", Class: camera.ClassExternal},
	}, nil
}

func (b *fakeBackend) Open(dev camera.Device) (camera.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.src = &fakeSource{events: make(chan camera.Event, 1)}
	return b.src, nil
}

func (b *fakeBackend) source() *fakeSource {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.src
}

type fixture struct {
	backend  *fakeBackend
	sess     *session.Session
	settings *settings.Settings
	router   *gin.Engine
	saveDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	f := &fixture{backend: &fakeBackend{}, saveDir: t.TempDir()}
	st, err := settings.Load(ctx, settings.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("loading settings: %v", err)
	}
	off := false
	if err := st.Update(ctx, settings.Patch{SavePath: &f.saveDir, IncludeDate: &off}); err != nil {
		t.Fatalf("updating settings: %v", err)
	}
	f.settings = st

	f.sess, err = session.New(session.Options{Backend: f.backend, TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	reg := session.NewRegistry(f.backend, f.sess, st, nil)
	ctrl, err := capture.New(capture.Options{Session: f.sess, Registry: reg, Settings: st})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	f.router = New(Options{Controller: ctrl, Session: f.sess, Registry: reg, Settings: st})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) expect(t *testing.T, method, path, body string, status int, out interface{}) {
	t.Helper()
	w := f.do(t, method, path, body)
	if w.Code != status {
		t.Fatalf("%s %s: status %d, expected %d: %s", method, path, w.Code, status, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", method, path, w.Body.String(), err)
		}
	}
}

// start discovers devices, starts the session and delivers one frame.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.expect(t, "POST", "/api/devices/discover", "", http.StatusOK, nil)
	var s struct {
		State string `json:"state"`
	}
	f.expect(t, "POST", "/api/session/start", "", http.StatusOK, &s)
	if s.State != "running" {
		t.Fatalf("session %s, expected running", s.State)
	}
	f.backend.source().events <- camera.Event{Image: image.NewRGBA(image.Rect(0, 0, 16, 8))}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, _, ok := f.sess.Preview(); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no preview frame")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/ping", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Fatalf("ping: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}

	req := httptest.NewRequest("GET", "/api/ping", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); id != "abc" {
		t.Fatalf("request id %q, expected client id", id)
	}
}

func TestDevices(t *testing.T) {
	f := newFixture(t)

	var resp devicesResponse
	w := f.do(t, "POST", "/api/devices/discover", "")
	if w.Code != http.StatusOK || w.Header().Get("X-Total-Count") != "2" {
		t.Fatalf("discover: %d %s", w.Code, w.Body.String())
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Selected == nil || resp.Selected.ID != "/dev/video2" {
		t.Fatalf("selected %+v, expected external device", resp.Selected)
	}

	f.expect(t, "POST", "/api/devices/select", `{"id":"/dev/video9"}`, http.StatusNotFound, nil)
	f.expect(t, "POST", "/api/devices/select", `{}`, http.StatusBadRequest, nil)
	f.expect(t, "POST", "/api/devices/select", `{"id":"/dev/video0"}`, http.StatusOK, nil)
	if id := f.settings.PreferredDeviceID(); id != "/dev/video0" {
		t.Fatalf("preferred device %q", id)
	}
	f.expect(t, "GET", "/api/devices", "", http.StatusOK, &resp)
	if resp.Selected == nil || resp.Selected.ID != "/dev/video0" || len(resp.Devices) != 2 {
		t.Fatalf("devices %+v", resp)
	}
}

func TestErrorState(t *testing.T) {
	f := newFixture(t)
	f.expect(t, "GET", "/api/error", "", http.StatusNoContent, nil)

	f.expect(t, "POST", "/api/photo", "", http.StatusConflict, nil)
	var e errorResponse
	f.expect(t, "GET", "/api/error", "", http.StatusOK, &e)
	if !strings.Contains(e.Message, "no image") {
		t.Fatalf("error %q", e.Message)
	}

	f.expect(t, "DELETE", "/api/error?at="+url.QueryEscape(e.At.Add(time.Second).Format(time.RFC3339Nano)), "", http.StatusConflict, nil)
	f.expect(t, "DELETE", "/api/error?at="+url.QueryEscape(e.At.Format(time.RFC3339Nano)), "", http.StatusNoContent, nil)
	f.expect(t, "GET", "/api/error", "", http.StatusNoContent, nil)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	f.expect(t, "GET", "/api/preview.jpg", "", http.StatusServiceUnavailable, nil)
	f.start(t)

	w := f.do(t, "GET", "/api/preview.jpg?width=4", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("preview: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := jpeg.Decode(w.Body)
	if err != nil {
		t.Fatalf("decoding preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Fatalf("preview size %v, expected 4x2", b.Size())
	}
	f.expect(t, "GET", "/api/preview.jpg?width=x", "", http.StatusBadRequest, nil)
}

func TestPhotos(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	var saved struct {
		Path string `json:"path"`
	}
	f.expect(t, "POST", "/api/photo?quick=1", "", http.StatusOK, &saved)
	if _, err := os.Stat(saved.Path); err != nil {
		t.Fatalf("quick photo: %v", err)
	}

	var p struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	f.expect(t, "POST", "/api/photo", "", http.StatusOK, &p)
	if p.Kind != "photo" {
		t.Fatalf("pending kind %q", p.Kind)
	}
	f.expect(t, "POST", "/api/photo", "", http.StatusConflict, nil)
	f.expect(t, "GET", "/api/pending?base=desk", "", http.StatusOK, &p)
	if p.Name != "desk.jpg" {
		t.Fatalf("pending name %q", p.Name)
	}

	f.expect(t, "POST", "/api/pending/save", `{"base":"desk"}`, http.StatusOK, &saved)
	if saved.Path != filepath.Join(f.saveDir, "desk.jpg") {
		t.Fatalf("saved to %s", saved.Path)
	}
	if _, err := os.Stat(saved.Path); err != nil {
		t.Fatalf("saved photo: %v", err)
	}
	f.expect(t, "GET", "/api/pending", "", http.StatusNoContent, nil)
	f.expect(t, "POST", "/api/pending/save", "", http.StatusNotFound, nil)
}

func TestKeys(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	var r struct {
		Action  string `json:"action"`
		Handled bool   `json:"handled"`
	}
	f.expect(t, "POST", "/api/keys", `{"chord":"g"}`, http.StatusOK, &r)
	if r.Action != "none" || r.Handled {
		t.Fatalf("unbound key: %+v", r)
	}
	f.expect(t, "POST", "/api/keys", `{"chord":"shift+f"}`, http.StatusOK, &r)
	if r.Action != "quick-photo" || !r.Handled {
		t.Fatalf("quick photo key: %+v", r)
	}
	f.expect(t, "POST", "/api/keys", `{"chord":"hyper+f"}`, http.StatusBadRequest, nil)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)

	var v settings.Values
	f.expect(t, "GET", "/api/settings", "", http.StatusOK, &v)
	if v.SavePath != f.saveDir || v.CounterDigits != 4 {
		t.Fatalf("settings %+v", v)
	}

	f.expect(t, "PATCH", "/api/settings", `{"counterDigits":9}`, http.StatusBadRequest, nil)
	f.expect(t, "PATCH", "/api/settings", `{"includeCounter":true,"photoCounter":7,"filePrefix":"img"}`, http.StatusOK, &v)
	if !v.IncludeCounter || v.PhotoCounter != 7 || v.FilePrefix != "img" {
		t.Fatalf("patched settings %+v", v)
	}

	var name struct {
		Name string `json:"name"`
	}
	for i := 0; i < 2; i++ {
		f.expect(t, "GET", "/api/filename?base=x", "", http.StatusOK, &name)
		if name.Name != "img_0007_x.jpg" {
			t.Fatalf("filename %q", name.Name)
		}
	}
	f.expect(t, "GET", "/api/filename?kind=audio", "", http.StatusBadRequest, nil)

	f.expect(t, "POST", "/api/settings/reset-counters", "", http.StatusOK, &v)
	if v.PhotoCounter != 0 {
		t.Fatalf("counter after reset %d", v.PhotoCounter)
	}

	var conflicts []map[string]interface{}
	f.expect(t, "GET", "/api/bindings/conflicts", "", http.StatusOK, &conflicts)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts with default bindings: %v", conflicts)
	}
	f.expect(t, "PATCH", "/api/settings", `{"photoKey":{"keyCode":3,"keyChar":"F","shift":true}}`, http.StatusOK, nil)
	f.expect(t, "GET", "/api/bindings/conflicts", "", http.StatusOK, &conflicts)
	if len(conflicts) != 1 || conflicts[0]["winner"] != "quick-photo" || conflicts[0]["shadowed"] != "photo" {
		t.Fatalf("conflicts %v", conflicts)
	}
	f.expect(t, "POST", "/api/settings/reset-keys", "", http.StatusOK, nil)
	f.expect(t, "GET", "/api/bindings/conflicts", "", http.StatusOK, &conflicts)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts after reset: %v", conflicts)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{capture.ErrRecording, http.StatusConflict},
		{capture.ErrPending, http.StatusConflict},
		{capture.ErrNothingPending, http.StatusNotFound},
		{session.ErrNotRunning, http.StatusConflict},
	}
	for _, tc := range tests {
		if s := httpStatus(tc.err); s != tc.status {
			t.Errorf("%v: got status %d, expected %d", tc.err, s, tc.status)
		}
	}
}
