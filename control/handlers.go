package control

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cvrt-gmbh/mucapture/camera"
	"github.com/cvrt-gmbh/mucapture/capture"
	"github.com/cvrt-gmbh/mucapture/keybind"
	"github.com/cvrt-gmbh/mucapture/media"
	"github.com/cvrt-gmbh/mucapture/naming"
	"github.com/cvrt-gmbh/mucapture/session"
	"github.com/cvrt-gmbh/mucapture/settings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type devicesResponse struct {
	Devices  []camera.Device `json:"devices"`
	Selected *camera.Device  `json:"selected"`
}

func (h *Handler) devices(c *gin.Context, devs []camera.Device) {
	if devs == nil {
		devs = []camera.Device{}
	}
	c.Header("X-Total-Count", strconv.Itoa(len(devs)))
	c.JSON(http.StatusOK, devicesResponse{Devices: devs, Selected: h.reg.Selected()})
}

func (h *Handler) GetDevices(c *gin.Context) {
	h.devices(c, h.reg.Devices())
}

func (h *Handler) Discover(c *gin.Context) {
	devs, err := h.reg.Discover(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	h.devices(c, devs)
}

// SelectDevice binds the device with the given ID and remembers it as the
// preferred device.
func (h *Handler) SelectDevice(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()
	dev, err := h.reg.SelectID(ctx, req.ID)
	if err != nil {
		if dev.ID == "" {
			fail(c, http.StatusNotFound, err)
		} else {
			fail(c, httpStatus(err), err)
		}
		return
	}
	if err := h.settings.SetPreferredDeviceID(ctx, dev.ID); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, dev)
}

type sessionResponse struct {
	State             session.State  `json:"state"`
	Device            *camera.Device `json:"device"`
	Recording         bool           `json:"recording"`
	RecordingDuration float64        `json:"recordingDuration"` // seconds
	FrameRate         float64        `json:"frameRate"`
	LastFrame         *time.Time     `json:"lastFrame,omitempty"`
}

func (h *Handler) GetSession(c *gin.Context) {
	resp := sessionResponse{
		State:             h.sess.State(),
		Device:            h.sess.Device(),
		Recording:         h.sess.Recording(),
		RecordingDuration: h.sess.RecordingDuration().Seconds(),
		FrameRate:         h.sess.FrameRate(),
	}
	if _, at, ok := h.sess.Preview(); ok {
		resp.LastFrame = &at
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) StartSession(c *gin.Context) {
	if err := h.sess.Start(c.Request.Context()); err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	h.GetSession(c)
}

func (h *Handler) StopSession(c *gin.Context) {
	if err := h.sess.Stop(c.Request.Context()); err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	h.GetSession(c)
}

// Reactivate is called by the front end when it regains focus.
func (h *Handler) Reactivate(c *gin.Context) {
	restarted, err := h.ctrl.Reactivate(c.Request.Context())
	if err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restarted": restarted})
}

// GetPreview returns the latest frame as JPEG, scaled down to ?width= if
// given.
func (h *Handler) GetPreview(c *gin.Context) {
	img, at, ok := h.sess.Preview()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "no preview frame"})
		return
	}
	if s := c.Query("width"); s != "" {
		w, err := strconv.Atoi(s)
		if err != nil || w <= 0 {
			fail(c, http.StatusBadRequest, fmt.Errorf("invalid width %q", s))
			return
		}
		if w < img.Bounds().Dx() {
			img = imaging.Resize(img, w, 0, imaging.Linear)
		}
	}
	var buf bytes.Buffer
	if err := media.EncodePhoto(&buf, img, naming.JPEG); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Last-Modified", at.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

type errorResponse struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Hint    string    `json:"hint,omitempty"`
}

func (h *Handler) GetError(c *gin.Context) {
	cur := h.sess.Errors().Get()
	if cur == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, errorResponse{Message: cur.Err.Error(), At: cur.At, Hint: cur.Hint})
}

// AcknowledgeError clears the current error. With ?at= only the error shown
// to the user at that time is cleared.
func (h *Handler) AcknowledgeError(c *gin.Context) {
	s := c.Query("at")
	if s == "" {
		h.sess.Errors().Clear()
		c.Status(http.StatusNoContent)
		return
	}
	at, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if !h.sess.Errors().Acknowledge(at) {
		c.JSON(http.StatusConflict, gin.H{"message": "error changed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type pendingResponse struct {
	*capture.Pending
	Name string `json:"name"`
}

func (h *Handler) Photo(c *gin.Context) {
	if quick(c) {
		path, err := h.ctrl.QuickPhoto(c.Request.Context())
		if err != nil {
			fail(c, httpStatus(err), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path})
		return
	}
	p, err := h.ctrl.CapturePhoto()
	if err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	name, _ := h.ctrl.PendingName("")
	c.JSON(http.StatusOK, pendingResponse{Pending: p, Name: name})
}

func (h *Handler) ToggleRecording(c *gin.Context) {
	if err := h.ctrl.ToggleRecording(c.Request.Context(), quick(c)); err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": h.sess.Recording()})
}

// Key handles a key press, given as a chord like "shift+f" or as an event.
func (h *Handler) Key(c *gin.Context) {
	var req struct {
		Chord string `json:"chord"`
		keybind.Event
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ev := req.Event
	if req.Chord != "" {
		var err error
		if ev, err = keybind.ParseEvent(req.Chord); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}
	handled := h.ctrl.HandleKey(c.Request.Context(), ev)
	c.JSON(http.StatusOK, gin.H{
		"action":  h.settings.Bindings().Dispatch(ev),
		"handled": handled,
	})
}

// GetPending returns the capture waiting to be saved with the name it would
// get with ?base=.
func (h *Handler) GetPending(c *gin.Context) {
	p := h.ctrl.Pending()
	if p == nil {
		c.Status(http.StatusNoContent)
		return
	}
	name, _ := h.ctrl.PendingName(c.Query("base"))
	c.JSON(http.StatusOK, pendingResponse{Pending: p, Name: name})
}

func (h *Handler) SavePending(c *gin.Context) {
	var req struct {
		Base string `json:"base"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}
	path, err := h.ctrl.Save(c.Request.Context(), req.Base)
	if err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *Handler) CancelPending(c *gin.Context) {
	if err := h.ctrl.Cancel(); err != nil {
		fail(c, httpStatus(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetFilename previews the name of a capture taken now, for ?kind=photo|video
// and ?base=. Counters are not changed.
func (h *Handler) GetFilename(c *gin.Context) {
	kind := naming.Photo
	switch c.DefaultQuery("kind", "photo") {
	case "photo":
	case "video":
		kind = naming.Video
	default:
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid kind %q", c.Query("kind")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": h.ctrl.Engine().Preview(c.Query("base"), kind, time.Now())})
}

func (h *Handler) GetSaveDir(c *gin.Context) {
	dir, err := h.ctrl.SaveDir()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dir": dir})
}

func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Values())
}

func (h *Handler) PatchSettings(c *gin.Context) {
	var p settings.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.settings.Update(c.Request.Context(), p); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrInvalid) {
			status = http.StatusBadRequest
		}
		fail(c, status, err)
		return
	}
	if p.TouchesBindings() {
		h.warnConflicts()
	}
	c.JSON(http.StatusOK, h.settings.Values())
}

func (h *Handler) warnConflicts() {
	for _, cf := range h.settings.Bindings().Conflicts() {
		h.log.Warn("key binding shadowed",
			zap.Stringer("chord", cf.Chord),
			zap.Stringer("action", cf.Winner),
			zap.Stringer("shadowed", cf.Shadowed))
	}
}

func (h *Handler) ResetCounters(c *gin.Context) {
	if err := h.settings.ResetCounters(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, h.settings.Values())
}

func (h *Handler) ResetKeys(c *gin.Context) {
	if err := h.settings.ResetKeybindings(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, h.settings.Values())
}

func (h *Handler) GetConflicts(c *gin.Context) {
	conflicts := h.settings.Bindings().Conflicts()
	if conflicts == nil {
		conflicts = []keybind.Conflict{}
	}
	c.JSON(http.StatusOK, conflicts)
}
