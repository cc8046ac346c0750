// Package portal implements camera authorization through the XDG desktop
// portal, as used by sandboxed and desktop applications on Linux.
package portal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/camera"

	"github.com/godbus/dbus/v5"
)

const (
	objectName = "org.freedesktop.portal.Desktop"
	objectPath = "/org/freedesktop/portal/desktop"

	cameraInterface   = "org.freedesktop.portal.Camera"
	accessCameraName  = cameraInterface + ".AccessCamera"
	propertiesGetName = "org.freedesktop.DBus.Properties.Get"

	requestInterface = "org.freedesktop.portal.Request"
	responseMember   = "Response"

	storeName       = "org.freedesktop.impl.portal.PermissionStore"
	storePath       = "/org/freedesktop/impl/portal/PermissionStore"
	storeLookupName = storeName + ".Lookup"
	errNotFound     = "org.freedesktop.portal.Error.NotFound"
)

// Response codes of org.freedesktop.portal.Request.Response.
const (
	responseSuccess   uint32 = 0
	responseCancelled uint32 = 1
	responseEnded     uint32 = 2
)

var errUnexpectedResponse = errors.New("unexpected response from dbus")

// Authorizer asks the desktop portal for camera access.
type Authorizer struct {
	conn *dbus.Conn

	// AppID is the application ID in the permission store. Unsandboxed
	// processes are stored under the empty ID.
	AppID string
}

// Check that Authorizer implements interface Authorizer.
var _ camera.Authorizer = (*Authorizer)(nil)

// New returns an Authorizer on the session bus.
func New() (*Authorizer, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %v", err)
	}
	return &Authorizer{conn: conn}, nil
}

// NewWithConn returns an Authorizer using conn.
func NewWithConn(conn *dbus.Conn) *Authorizer {
	return &Authorizer{conn: conn}
}

// Status looks up the camera decision in the permission store.
func (a *Authorizer) Status(ctx context.Context) (camera.AuthStatus, error) {
	obj := a.conn.Object(storeName, storePath)
	call := obj.CallWithContext(ctx, storeLookupName, 0, "devices", "camera")
	if call.Err != nil {
		var derr dbus.Error
		if errors.As(call.Err, &derr) && derr.Name == errNotFound {
			return camera.NotDetermined, nil
		}
		return camera.NotDetermined, fmt.Errorf("looking up camera permission: %v", call.Err)
	}
	var perms map[string][]string
	var data dbus.Variant
	if err := call.Store(&perms, &data); err != nil {
		return camera.NotDetermined, fmt.Errorf("reading camera permission: %v", err)
	}
	return statusFromPermissions(perms, a.AppID), nil
}

func statusFromPermissions(perms map[string][]string, appID string) camera.AuthStatus {
	l, ok := perms[appID]
	if !ok || len(l) == 0 {
		return camera.NotDetermined
	}
	switch l[0] {
	case "yes":
		return camera.Authorized
	case "no":
		return camera.Denied
	}
	return camera.NotDetermined
}

// Request calls AccessCamera and waits for the user's answer. A dismissed
// dialog is reported as not granted.
func (a *Authorizer) Request(ctx context.Context) (bool, error) {
	token := handleToken()
	path := requestPath(a.conn.Names()[0], token)

	if err := a.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember(responseMember),
	); err != nil {
		return false, fmt.Errorf("listening for portal response: %v", err)
	}
	defer a.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember(responseMember),
	)
	signals := make(chan *dbus.Signal, 4)
	a.conn.Signal(signals)
	defer a.conn.RemoveSignal(signals)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
	}
	obj := a.conn.Object(objectName, objectPath)
	call := obj.CallWithContext(ctx, accessCameraName, 0, options)
	if call.Err != nil {
		return false, fmt.Errorf("requesting camera access: %w: %v", mucapture.ErrAuthorizationDenied, call.Err)
	}
	var handle dbus.ObjectPath
	if err := call.Store(&handle); err != nil {
		return false, fmt.Errorf("reading request handle: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case sig := <-signals:
			if sig == nil || sig.Path != handle || sig.Name != requestInterface+"."+responseMember {
				continue
			}
			status, err := responseStatus(sig)
			if err != nil {
				return false, err
			}
			return status == responseSuccess, nil
		}
	}
}

// IsCameraPresent reports whether the portal sees any camera.
func (a *Authorizer) IsCameraPresent(ctx context.Context) (bool, error) {
	obj := a.conn.Object(objectName, objectPath)
	call := obj.CallWithContext(ctx, propertiesGetName, 0, cameraInterface, "IsCameraPresent")
	if call.Err != nil {
		return false, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return false, err
	}
	present, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("IsCameraPresent has unexpected type %T", v.Value())
	}
	return present, nil
}

// SettingsHint returns the command that resets the stored decision.
func (a *Authorizer) SettingsHint() string {
	app := a.AppID
	if app == "" {
		app = "''"
	}
	return "flatpak permission-reset " + app + " or open Settings > Privacy > Camera"
}

// requestPath returns the object path the portal uses for a request made with
// token by the connection with the unique name sender.
func requestPath(sender, token string) dbus.ObjectPath {
	s := strings.ReplaceAll(strings.TrimPrefix(sender, ":"), ".", "_")
	return dbus.ObjectPath(objectPath + "/request/" + s + "/" + token)
}

func responseStatus(sig *dbus.Signal) (uint32, error) {
	if len(sig.Body) != 2 {
		return responseEnded, errUnexpectedResponse
	}
	status, ok := sig.Body[0].(uint32)
	if !ok {
		return responseEnded, errUnexpectedResponse
	}
	return status, nil
}

func handleToken() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<16))
	return "mucapture" + strconv.FormatUint(n.Uint64(), 16)
}
