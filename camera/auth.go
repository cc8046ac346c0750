package camera

import (
	"context"
)

// AuthStatus is the camera-use authorization state of the process.
type AuthStatus int

const (
	NotDetermined AuthStatus = iota
	Authorized
	Denied
	Restricted
)

func (s AuthStatus) String() string {
	switch s {
	case NotDetermined:
		return "not-determined"
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s AuthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Authorizer queries and requests permission to use cameras.
type Authorizer interface {
	// Status returns the current authorization without prompting the user.
	Status(ctx context.Context) (AuthStatus, error)

	// Request asks the user for permission and reports whether it was granted.
	Request(ctx context.Context) (bool, error)

	// SettingsHint describes how the user can change the decision, e.g. the
	// command opening the privacy settings.
	SettingsHint() string
}

// Granted is an Authorizer for platforms without camera permissions.
type Granted struct{}

var _ Authorizer = Granted{}

func (Granted) Status(ctx context.Context) (AuthStatus, error) { return Authorized, nil }
func (Granted) Request(ctx context.Context) (bool, error)      { return true, nil }
func (Granted) SettingsHint() string                           { return "" }
