// Package yamlstore implements a settings store in a YAML file.
package yamlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cvrt-gmbh/mucapture/settings"

	"gopkg.in/yaml.v3"
)

// Store keeps settings as a flat YAML mapping. Each Set rewrites the file.
type Store struct {
	path string

	mu sync.Mutex
	m  map[string]string
}

var _ settings.Store = (*Store)(nil)

// Open reads path. A missing file is an empty store, the file and its
// directory are created on the first Set.
func Open(path string) (*Store, error) {
	s := &Store{path: path, m: map[string]string{}}
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %v", err)
	}
	if err := yaml.Unmarshal(buf, &s.m); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %v", path, err)
	}
	if s.m == nil {
		s.m = map[string]string{}
	}
	return s, nil
}

// Path returns the file the store is kept in.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.m[key]
	s.m[key] = value
	if err := s.write(); err != nil {
		if had {
			s.m[key] = prev
		} else {
			delete(s.m, key)
		}
		return err
	}
	return nil
}

// write replaces the file through a rename, readers never see a partial
// file.
func (s *Store) write() (rerr error) {
	buf, err := yaml.Marshal(s.m)
	if err != nil {
		return fmt.Errorf("encoding settings: %v", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("making settings dir: %v", err)
	}
	f, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %v", err)
	}
	defer func() {
		if rerr != nil {
			os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("writing settings: %v", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing settings: %v", err)
	}
	if err := os.Rename(f.Name(), s.path); err != nil {
		return fmt.Errorf("replacing settings file: %v", err)
	}
	return nil
}
