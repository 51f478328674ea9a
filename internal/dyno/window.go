package dyno

import "time"

// Point is a timestamped value kept in a trailing window.
type Point struct {
	At    time.Time
	Value float64
}

// series is a FIFO of points with strictly increasing timestamps.
// Popped slots are reclaimed on append, so the backing array stays bounded
// by the number of points that fit in the window.
type series struct {
	points []Point
	head   int
}

func (s *series) push(p Point) {
	if n := s.len(); n > 0 && !p.At.After(s.points[len(s.points)-1].At) {
		// Keep timestamps strictly increasing; a clock that did not move
		// replaces the newest value instead.
		s.points[len(s.points)-1] = p
		return
	}
	if s.head > 0 && s.head >= len(s.points)/2 {
		n := copy(s.points, s.points[s.head:])
		s.points = s.points[:n]
		s.head = 0
	}
	s.points = append(s.points, p)
}

func (s *series) len() int { return len(s.points) - s.head }

func (s *series) front() Point { return s.points[s.head] }

func (s *series) popFront() Point {
	p := s.points[s.head]
	s.head++
	if s.head == len(s.points) {
		s.points = s.points[:0]
		s.head = 0
	}
	return p
}

func (s *series) each(fn func(Point)) {
	for _, p := range s.points[s.head:] {
		fn(p)
	}
}

// OmegaWindow holds (t, ω) pairs over the trailing span. Points at or beyond
// the span are evicted and the most recently evicted one becomes the
// reference for the Δω/Δt estimate.
type OmegaWindow struct {
	span time.Duration
	s    series
	ref  Point
	has  bool
}

// NewOmegaWindow creates a window covering span.
func NewOmegaWindow(span time.Duration) *OmegaWindow {
	return &OmegaWindow{span: span}
}

// Push appends ω at t and evicts points with timestamp <= t - span.
func (w *OmegaWindow) Push(t time.Time, omega float64) {
	w.s.push(Point{At: t, Value: omega})
	cutoff := t.Add(-w.span)
	for w.s.len() > 0 && !w.s.front().At.After(cutoff) {
		w.ref = w.s.popFront()
		w.has = true
	}
}

// Reference returns the past sample used for the acceleration estimate.
func (w *OmegaWindow) Reference() (Point, bool) {
	return w.ref, w.has
}

// Len returns the number of retained points.
func (w *OmegaWindow) Len() int { return w.s.len() }

// SpeedHistory holds (t, km/h) pairs over the trailing span for the dynamic
// zeroing decision.
type SpeedHistory struct {
	span time.Duration
	s    series
}

// NewSpeedHistory creates a history covering span.
func NewSpeedHistory(span time.Duration) *SpeedHistory {
	return &SpeedHistory{span: span}
}

// Push appends speed at t and evicts points older than t - span.
func (h *SpeedHistory) Push(t time.Time, speed float64) {
	h.s.push(Point{At: t, Value: speed})
	cutoff := t.Add(-h.span)
	for h.s.len() > 0 && h.s.front().At.Before(cutoff) {
		h.s.popFront()
	}
}

// Range returns the min and max retained speed. ok is false when empty.
func (h *SpeedHistory) Range() (lo, hi float64, ok bool) {
	if h.s.len() == 0 {
		return 0, 0, false
	}
	lo, hi = h.s.front().Value, h.s.front().Value
	h.s.each(func(p Point) {
		if p.Value < lo {
			lo = p.Value
		}
		if p.Value > hi {
			hi = p.Value
		}
	})
	return lo, hi, true
}

// Len returns the number of retained points.
func (h *SpeedHistory) Len() int { return h.s.len() }
