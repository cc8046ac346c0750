// Package control is the local HTTP interface of the capture daemon. It
// exposes the session, the device list, captures waiting to be saved and the
// settings as JSON, and the preview as a JPEG.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/capture"
	"github.com/cvrt-gmbh/mucapture/session"
	"github.com/cvrt-gmbh/mucapture/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options for New.
type Options struct {
	Controller *capture.Controller
	Session    *session.Session
	Registry   *session.Registry
	Settings   *settings.Settings
	Log        *zap.Logger
}

// Handler serves the API.
type Handler struct {
	log      *zap.Logger
	ctrl     *capture.Controller
	sess     *session.Session
	reg      *session.Registry
	settings *settings.Settings
}

// New returns the router with all routes registered.
func New(opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		log:      log.Named("http"),
		ctrl:     opts.Controller,
		sess:     opts.Session,
		reg:      opts.Registry,
		settings: opts.Settings,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(accessLog(h.log))
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	// --- Devices ---
	r.GET("/api/devices", h.GetDevices)
	r.POST("/api/devices/discover", h.Discover)
	r.POST("/api/devices/select", h.SelectDevice)

	// --- Session ---
	r.GET("/api/session", h.GetSession)
	r.POST("/api/session/start", h.StartSession)
	r.POST("/api/session/stop", h.StopSession)
	r.POST("/api/reactivate", h.Reactivate)
	r.GET("/api/preview.jpg", h.GetPreview)
	r.GET("/api/error", h.GetError)
	r.DELETE("/api/error", h.AcknowledgeError)

	// --- Capture ---
	r.POST("/api/photo", h.Photo)
	r.POST("/api/recording/toggle", h.ToggleRecording)
	r.POST("/api/keys", h.Key)
	r.GET("/api/pending", h.GetPending)
	r.POST("/api/pending/save", h.SavePending)
	r.POST("/api/pending/cancel", h.CancelPending)
	r.GET("/api/filename", h.GetFilename)
	r.GET("/api/savedir", h.GetSaveDir)

	// --- Settings ---
	r.GET("/api/settings", h.GetSettings)
	r.PATCH("/api/settings", h.PatchSettings)
	r.POST("/api/settings/reset-counters", h.ResetCounters)
	r.POST("/api/settings/reset-keys", h.ResetKeys)
	r.GET("/api/bindings/conflicts", h.GetConflicts)

	return r
}

// Serve runs an HTTP server for handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("running HTTP server", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("HTTP server closed")
	return nil
}

// httpStatus maps capture errors to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, mucapture.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, mucapture.ErrNoSignal),
		errors.Is(err, session.ErrNotRunning),
		errors.Is(err, capture.ErrPending),
		errors.Is(err, capture.ErrRecording):
		return http.StatusConflict
	case errors.Is(err, capture.ErrNothingPending):
		return http.StatusNotFound
	case errors.Is(err, mucapture.ErrDeviceOpenFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, status int, err error) {
	c.Error(err)
	c.JSON(status, gin.H{"message": err.Error()})
}

func quick(c *gin.Context) bool {
	switch c.Query("quick") {
	case "1", "true", "yes":
		return true
	}
	return false
}
