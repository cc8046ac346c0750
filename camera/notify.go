package camera

// NotificationKind is the kind of a device Notification.
type NotificationKind int

const (
	Connected NotificationKind = iota
	Disconnected
)

func (k NotificationKind) String() string {
	if k == Connected {
		return "connected"
	}
	return "disconnected"
}

// Notification reports that a device appeared or disappeared. DeviceID is
// informational, receivers re-enumerate devices either way.
type Notification struct {
	Kind     NotificationKind
	DeviceID string
}
