package capture

import (
	"github.com/cvrt-gmbh/mucapture/naming"
)

// NoticeKind is the kind of a Notice.
type NoticeKind int

const (
	// Flash asks the presentation to flash the preview.
	Flash NoticeKind = iota
	// Sound asks the presentation to play the shutter sound.
	Sound
	// PendingChanged is sent when a capture starts or stops waiting to be
	// saved. Pending is nil when nothing waits anymore.
	PendingChanged
	Saved
	Failed
)

func (k NoticeKind) String() string {
	switch k {
	case Flash:
		return "flash"
	case Sound:
		return "sound"
	case PendingChanged:
		return "pending"
	case Saved:
		return "saved"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k NoticeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Notice is user feedback from the controller.
type Notice struct {
	Kind      NoticeKind
	Pending   *Pending
	Path      string      // Saved
	MediaKind naming.Kind // Saved
	Err       error       // Failed
}

// Notices returns the channel notices are sent on. Notices are dropped when
// nobody reads them.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

func (c *Controller) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
	}
}
