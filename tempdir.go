package mucapture

import (
	"os"
)

// TempDir returns a new temporary directory for in-progress recordings in the
// OS default temporary directory. Recordings can be large, so /dev/shm is only
// used when asked for through TempDirIn.
func TempDir() (string, error) {
	return os.MkdirTemp("", "mucapture")
}

// TempDirIn returns a new temporary directory below parent. An empty parent
// selects /dev/shm if it exists, otherwise the OS default temporary directory.
func TempDirIn(parent string) (string, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", err
		}
		return os.MkdirTemp(parent, "mucapture")
	}
	// Check if /dev/shm exists first. Don't want to accidentially create a
	// directory in /dev (if someones runs this as root).
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		dir, err := os.MkdirTemp("/dev/shm", "mucapture")
		if err == nil {
			return dir, nil
		}
	}
	return TempDir()
}
