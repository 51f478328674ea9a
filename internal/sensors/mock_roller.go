// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// mockCycle is one spin-up, hold, coast-down and rest sequence.
const mockCycle = 20 * time.Second

type mockRoller struct {
	start    time.Time
	interval time.Duration

	mu      sync.Mutex
	pending []byte
	closed  chan struct{}
	once    sync.Once
}

// NewMockRoller creates a roller sensor stand-in that prints one
// "now_us,last_rev_us,period_us" line per interval, cycling through a
// spin-up to 6000 rpm, a hold, and a coast down.
func NewMockRoller(interval time.Duration) io.ReadCloser {
	return &mockRoller{
		start:    time.Now(),
		interval: interval,
		closed:   make(chan struct{}),
	}
}

func (m *mockRoller) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		select {
		case <-m.closed:
			return 0, io.EOF
		case <-time.After(m.interval):
		}
		m.pending = []byte(MockLine(time.Since(m.start)))
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *mockRoller) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// MockRPM is the roller speed of the mock profile at elapsed.
func MockRPM(elapsed time.Duration) float64 {
	t := (elapsed % mockCycle).Seconds()
	switch {
	case t < 2:
		return 0
	case t < 8:
		return 6000 * (t - 2) / 6
	case t < 12:
		return 6000
	case t < 18:
		return 6000 * (18 - t) / 6
	default:
		return 0
	}
}

// MockLine renders the sensor line for elapsed. Speeds below 30 rpm are
// printed as a zero period, as the firmware does when it sees no pulses.
func MockLine(elapsed time.Duration) string {
	now := elapsed.Microseconds()
	rpm := MockRPM(elapsed)
	if rpm < 30 {
		return fmt.Sprintf("%d,%d,0\n", now, now)
	}
	period := int64(60_000_000 / rpm)
	return fmt.Sprintf("%d,%d,%d\n", now, now, period)
}
