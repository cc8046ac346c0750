// Package media writes captured photos and moves recorded videos to their
// destination.
package media

import (
	"fmt"
	"io"
	"os"
)

// FS is the file system operations used to store captures.
type FS interface {
	MkdirAll(dir string) error
	WriteFile(path string, data []byte) error
	// Move renames src to dst, replacing dst.
	Move(src, dst string) error
	Remove(path string) error
}

// OSFS is FS on the local file system.
type OSFS struct{}

var _ FS = OSFS{}

func (OSFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (OSFS) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// Move renames src, or copies and removes it when src and dst are on
// different file systems.
func (OSFS) Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func (OSFS) Remove(path string) error {
	return os.Remove(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %v", src, err)
	}
	return out.Close()
}
