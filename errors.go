// Package mucapture holds the pieces shared by all capture packages: the error
// taxonomy, the latest-error holder, temporary directories for recordings and a
// frame-rate meter.
package mucapture

import (
	"errors"
	"sync"
	"time"
)

// Errors reported by capture operations. None of them is fatal, callers surface
// them through an ErrorState and carry on.
var (
	ErrAuthorizationDenied = errors.New("camera access denied")
	ErrDeviceOpenFailed    = errors.New("device could not be opened")
	ErrNoSignal            = errors.New("no image available")
	ErrEncodingFailed      = errors.New("image could not be encoded")
	ErrWriteFailed         = errors.New("file could not be written")
	ErrRecordingFailed     = errors.New("recording failed")
)

// CurrentError is the value held by an ErrorState.
type CurrentError struct {
	Err  error
	At   time.Time
	Hint string // Remediation for the user, set for authorization failures.
}

// ErrorState holds the latest error of a component. Each Set overwrites the
// previous error. The zero value is ready to use.
type ErrorState struct {
	mu  sync.Mutex
	cur *CurrentError
}

// Set records err as the current error. A nil err is ignored, use Clear to
// reset the state.
func (s *ErrorState) Set(err error) {
	s.SetWithHint(err, "")
}

// SetWithHint records err along with a remediation hint.
func (s *ErrorState) SetWithHint(err error, hint string) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.cur = &CurrentError{Err: err, At: time.Now(), Hint: hint}
	s.mu.Unlock()
}

// Get returns the current error, or nil.
func (s *ErrorState) Get() *CurrentError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	c := *s.cur
	return &c
}

// Err returns the current error value, or nil.
func (s *ErrorState) Err() error {
	if c := s.Get(); c != nil {
		return c.Err
	}
	return nil
}

// Clear resets the state after a successful operation.
func (s *ErrorState) Clear() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
}

// Acknowledge clears the error if it is still the one the user was shown,
// identified by its timestamp. It returns whether the state was cleared.
func (s *ErrorState) Acknowledge(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || !s.cur.At.Equal(at) {
		return false
	}
	s.cur = nil
	return true
}
