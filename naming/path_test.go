package naming

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDir(t *testing.T) {
	tests := []struct {
		savePath string
		exp      string
	}{
		{"~/Pictures", "/home/u/Pictures"},
		{"~", "/home/u"},
		{"/tmp/x", "/tmp/x"},
		{"captures", "/work/captures"},
		{"", "/work"},
	}
	for _, tc := range tests {
		if s := ResolveDir(tc.savePath, "/home/u", "/work"); s != tc.exp {
			t.Errorf("ResolveDir(%q), got %q, expected %q", tc.savePath, s, tc.exp)
		}
	}
}

func TestPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	p, err := Path("~/Pictures", "a.jpg")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if exp := filepath.Join(home, "Pictures", "a.jpg"); p != exp {
		t.Fatalf("got %q, expected %q", p, exp)
	}
}
