package dyno

import (
	"sync"
	"time"
)

// SharedState holds the latest Measurement written by the Reader and read by
// the Publisher. A Load never sees a half-written Measurement.
type SharedState struct {
	mu     sync.Mutex
	latest Measurement
	valid  bool
}

// NewSharedState returns an empty state; Load reports ok=false until the
// first Store.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// Store replaces the latest measurement.
func (s *SharedState) Store(m Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = m
	s.valid = true
}

// Load returns the latest measurement and whether one was ever stored.
func (s *SharedState) Load() (Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.valid
}

// Age returns how long ago the latest measurement was taken, relative to now.
// ok is false when nothing was ever stored.
func (s *SharedState) Age(now time.Time) (time.Duration, bool) {
	m, ok := s.Load()
	if !ok {
		return 0, false
	}
	return now.Sub(m.At), true
}
