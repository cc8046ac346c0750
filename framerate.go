package mucapture

import (
	"fmt"
	"sync"
	"time"
)

// FrameRateMeter is a moving average filter over the intervals between
// frames, for picking the frame rate of a recording from the preview stream.
type FrameRateMeter struct {
	mu        sync.Mutex
	intervals []time.Duration
	index     int
	n         int
	sum       time.Duration
	last      time.Time
}

// NewFrameRateMeter returns a meter averaging over the last size intervals.
func NewFrameRateMeter(size int) (*FrameRateMeter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}
	return &FrameRateMeter{intervals: make([]time.Duration, size)}, nil
}

// Observe records the arrival of a frame at t. Frames arriving out of order
// only reset the reference time.
func (m *FrameRateMeter) Observe(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last.IsZero() || !t.After(m.last) {
		m.last = t
		return
	}
	d := t.Sub(m.last)
	m.last = t

	m.sum -= m.intervals[m.index]
	m.sum += d
	m.intervals[m.index] = d
	m.index++
	if m.index >= len(m.intervals) {
		m.index = 0
	}
	if m.n < len(m.intervals) {
		m.n++
	}
}

// Rate returns the average frame rate in frames per second, or 0 if fewer
// than two frames have been observed.
func (m *FrameRateMeter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.n == 0 || m.sum <= 0 {
		return 0
	}
	avg := m.sum / time.Duration(m.n)
	return float64(time.Second) / float64(avg)
}

// Reset forgets all observations.
func (m *FrameRateMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.intervals {
		m.intervals[i] = 0
	}
	m.index = 0
	m.n = 0
	m.sum = 0
	m.last = time.Time{}
}
