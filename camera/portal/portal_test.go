package portal

import (
	"testing"

	"github.com/cvrt-gmbh/mucapture/camera"

	"github.com/godbus/dbus/v5"
)

func TestStatusFromPermissions(t *testing.T) {
	tests := []struct {
		perms map[string][]string
		app   string
		exp   camera.AuthStatus
	}{
		{nil, "", camera.NotDetermined},
		{map[string][]string{"": {"yes"}}, "", camera.Authorized},
		{map[string][]string{"": {"no"}}, "", camera.Denied},
		{map[string][]string{"org.example.App": {"yes"}}, "", camera.NotDetermined},
		{map[string][]string{"org.example.App": {"no"}}, "org.example.App", camera.Denied},
		{map[string][]string{"": {}}, "", camera.NotDetermined},
	}
	for i, tc := range tests {
		if s := statusFromPermissions(tc.perms, tc.app); s != tc.exp {
			t.Errorf("test %d: got %v, expected %v", i, s, tc.exp)
		}
	}
}

func TestRequestPath(t *testing.T) {
	p := requestPath(":1.42", "mucapture1f")
	exp := dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/mucapture1f")
	if p != exp {
		t.Fatalf("got %s, expected %s", p, exp)
	}
	if !p.IsValid() {
		t.Fatalf("invalid object path %s", p)
	}
}

func TestResponseStatus(t *testing.T) {
	sig := &dbus.Signal{Body: []interface{}{uint32(1), map[string]dbus.Variant{}}}
	s, err := responseStatus(sig)
	if err != nil || s != responseCancelled {
		t.Fatalf("got %d, %v, expected cancelled", s, err)
	}
	if _, err := responseStatus(&dbus.Signal{Body: []interface{}{"x"}}); err == nil {
		t.Fatalf("expected error for malformed response")
	}
}
