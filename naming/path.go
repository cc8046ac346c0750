package naming

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveDir resolves savePath: paths starting with "/" are returned as is,
// a leading "~" is replaced by home, anything else is relative to wd.
func ResolveDir(savePath, home, wd string) string {
	switch {
	case strings.HasPrefix(savePath, "/"):
		return savePath
	case savePath == "~":
		return home
	case strings.HasPrefix(savePath, "~/"):
		return filepath.Join(home, savePath[2:])
	case strings.HasPrefix(savePath, "~"):
		return filepath.Join(home, savePath[1:])
	}
	return filepath.Join(wd, savePath)
}

// Dir resolves savePath against the home and working directory of the
// process.
func Dir(savePath string) (string, error) {
	var home, wd string
	var err error
	if strings.HasPrefix(savePath, "~") {
		if home, err = os.UserHomeDir(); err != nil {
			return "", err
		}
	} else if !strings.HasPrefix(savePath, "/") {
		if wd, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return ResolveDir(savePath, home, wd), nil
}

// Path returns the destination path of file name in savePath.
func Path(savePath, name string) (string, error) {
	dir, err := Dir(savePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
