package naming

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ConfigSource provides the current naming settings.
type ConfigSource interface {
	Naming() Config
}

// CounterStore persists the photo and video counters.
type CounterStore interface {
	Increment(ctx context.Context, kind Kind) error
}

// Engine names files from the current settings. Preview is pure, Reserve
// advances the counter after a successful save.
type Engine struct {
	src      ConfigSource
	counters CounterStore

	// Held during Reserve so concurrent saves never share a counter value.
	mu sync.Mutex
}

// NewEngine returns an engine reading settings from src and advancing counters
// in counters. Settings typically implements both.
func NewEngine(src ConfigSource, counters CounterStore) *Engine {
	return &Engine{src: src, counters: counters}
}

// Config returns the current settings snapshot.
func (e *Engine) Config() Config {
	return e.src.Naming()
}

// Preview returns the name a save at ts would use now. It can be called any
// number of times without effect.
func (e *Engine) Preview(base string, kind Kind, ts time.Time) string {
	return Preview(e.src.Naming(), base, kind, ts)
}

// Reserve computes the name for a save and calls save with it and the settings
// snapshot the name was made from. When save succeeds and the name includes a
// counter, the counter of kind is incremented. The name is returned in all
// cases.
func (e *Engine) Reserve(ctx context.Context, base string, kind Kind, ts time.Time, save func(name string, cfg Config) error) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.src.Naming()
	name := Preview(cfg, base, kind, ts)
	if err := save(name, cfg); err != nil {
		return name, err
	}
	if cfg.IncludeCounter {
		if err := e.counters.Increment(ctx, kind); err != nil {
			return name, fmt.Errorf("incrementing %s counter: %w", kind, err)
		}
	}
	return name, nil
}
