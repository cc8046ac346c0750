// Package settings holds the user settings: destination, naming, key
// bindings, counters and the preferred device. Every change is written to a
// Store immediately.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/cvrt-gmbh/mucapture/keybind"
	"github.com/cvrt-gmbh/mucapture/naming"

	"go.uber.org/zap"
)

// Settings is the settings of one user, backed by a Store. It is safe for
// concurrent use and is passed to the components needing it.
type Settings struct {
	store Store
	log   *zap.Logger

	mu sync.RWMutex
	v  Values
}

// Check that Settings can name files.
var (
	_ naming.ConfigSource = (*Settings)(nil)
	_ naming.CounterStore = (*Settings)(nil)
)

// Load reads all settings from store. Missing keys get their default value.
// Values that cannot be parsed are logged and replaced by the default.
func Load(ctx context.Context, store Store, log *zap.Logger) (*Settings, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("settings")

	v := Defaults()
	for _, key := range allKeys {
		s, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading setting %s: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := v.decode(key, s); err != nil {
			log.Warn("invalid setting, using default", zap.String("key", key), zap.String("value", s), zap.Error(err))
			d := Defaults()
			v.decode(key, d.encode()[key])
		}
	}
	return &Settings{store: store, log: log, v: v}, nil
}

// Values returns a snapshot of all settings.
func (s *Settings) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Naming returns the current naming configuration.
func (s *Settings) Naming() naming.Config {
	return s.Values().Naming()
}

// Bindings returns the current key bindings.
func (s *Settings) Bindings() keybind.Set {
	return s.Values().Bindings()
}

// PreferredDeviceID returns the ID of the device selected last, if any.
func (s *Settings) PreferredDeviceID() string {
	return s.Values().PreferredDeviceID
}

// SetPreferredDeviceID remembers the selected device.
func (s *Settings) SetPreferredDeviceID(ctx context.Context, id string) error {
	return s.Update(ctx, Patch{PreferredDeviceID: &id})
}

// FlashEnabled returns whether a capture flashes the preview.
func (s *Settings) FlashEnabled() bool {
	return s.Values().FlashEnabled
}

// SoundEnabled returns whether a capture plays a sound.
func (s *Settings) SoundEnabled() bool {
	return s.Values().SoundEnabled
}

// Increment advances the counter of kind by one.
func (s *Settings) Increment(ctx context.Context, kind naming.Kind) error {
	return s.modify(ctx, func(v *Values) error {
		if kind == naming.Video {
			v.VideoCounter++
		} else {
			v.PhotoCounter++
		}
		return nil
	})
}

// ResetCounters sets both counters to zero.
func (s *Settings) ResetCounters(ctx context.Context) error {
	return s.modify(ctx, func(v *Values) error {
		v.PhotoCounter = 0
		v.VideoCounter = 0
		return nil
	})
}

// ResetKeybindings restores the default key bindings.
func (s *Settings) ResetKeybindings(ctx context.Context) error {
	return s.modify(ctx, func(v *Values) error {
		d := keybind.DefaultSet()
		v.PhotoKey = d.Photo
		v.VideoKey = d.Video
		v.QuickPhotoKey = d.QuickPhoto
		v.QuickVideoKey = d.QuickVideo
		return nil
	})
}

// Update applies p. Either all of p is applied or, on a validation error,
// nothing.
func (s *Settings) Update(ctx context.Context, p Patch) error {
	return s.modify(ctx, p.apply)
}

// modify applies fn to a copy of the values and writes the keys that changed.
// The in-memory values are only replaced after all writes succeeded.
func (s *Settings) modify(ctx context.Context, fn func(v *Values) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nv := s.v
	if err := fn(&nv); err != nil {
		return err
	}
	prev, next := s.v.encode(), nv.encode()
	for _, key := range allKeys {
		val := next[key]
		if prev[key] == val {
			continue
		}
		if err := s.store.Set(ctx, key, val); err != nil {
			return fmt.Errorf("writing setting %s: %w", key, err)
		}
		s.log.Debug("setting changed", zap.String("key", key), zap.String("value", val))
	}
	s.v = nv
	return nil
}
