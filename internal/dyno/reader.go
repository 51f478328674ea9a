package dyno

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// maxLineLen bounds the pending buffer when the sensor emits garbage without
// newlines.
const maxLineLen = 4096

// ReaderStats counts processed lines.
type ReaderStats struct {
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderClock sets the clock used to timestamp samples.
func WithReaderClock(now func() time.Time) ReaderOption {
	return func(r *Reader) { r.now = now }
}

// WithReaderLogger sets the logger.
func WithReaderLogger(log logrus.FieldLogger) ReaderOption {
	return func(r *Reader) { r.log = log }
}

// Reader turns sensor lines into Measurements and stores them in a
// SharedState. It owns its OmegaWindow; only one goroutine may drive it.
type Reader struct {
	settings Settings
	circM    float64
	state    *SharedState
	omega    *OmegaWindow
	now      func() time.Time
	log      logrus.FieldLogger

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// NewReader creates a Reader that publishes into state.
func NewReader(settings Settings, state *SharedState, opts ...ReaderOption) *Reader {
	r := &Reader{
		settings: settings,
		circM:    settings.CircumferenceM(),
		state:    state,
		omega:    NewOmegaWindow(settings.TorqueWindow),
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads newline-terminated lines from src until ctx is cancelled or src
// reaches EOF. Zero-byte reads are treated as read timeouts. Any other read
// error ends the loop and is returned.
func (r *Reader) Run(ctx context.Context, src io.Reader) error {
	buf := make([]byte, 512)
	var pending []byte

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := src.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				r.HandleLine(string(pending[:i]))
				pending = pending[i+1:]
			}
			if len(pending) > maxLineLen {
				r.dropped.Add(1)
				pending = pending[:0]
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 {
					r.HandleLine(string(pending))
				}
				r.log.Infof("reader: source closed")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read roller sensor: %w", err)
		}
	}
}

// HandleLine processes one line at the reader's clock. It reports whether the
// line produced a Measurement.
func (r *Reader) HandleLine(line string) bool {
	s, ok := ParseLine(line)
	if !ok {
		r.dropped.Add(1)
		return false
	}
	r.Process(s, r.now())
	r.accepted.Add(1)
	return true
}

// Process derives a Measurement from s taken at now and stores it.
func (r *Reader) Process(s RawSample, now time.Time) Measurement {
	period := s.PeriodMicros
	if r.settings.StallDetection && s.Stalled() {
		period = 0
	}

	rpm := RPMFromPeriod(period)
	speed := 0.0
	if rpm > 0 {
		speed = SpeedKmh(rpm, r.circM)
	}

	omega := AngularVelocity(rpm)
	r.omega.Push(now, omega)

	torque := 0.0
	if ref, ok := r.omega.Reference(); ok {
		torque = Torque(r.settings.RotorInertia, omega, ref.Value, now.Sub(ref.At))
	}
	power := Power(omega, torque)

	m := Measurement{
		RPM:      rpm,
		SpeedKmh: speed,
		TorqueNm: torque,
		PowerW:   power,
		At:       now,
	}
	r.state.Store(m)
	return m
}

// Stats returns the line counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Accepted: r.accepted.Load(),
		Dropped:  r.dropped.Load(),
	}
}
