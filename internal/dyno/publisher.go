package dyno

import (
	"math"
	"sync"
	"time"
)

// Snapshot is the rounded reading handed to the dashboard.
type Snapshot struct {
	RPM    float64 `json:"rpm"`
	Speed  float64 `json:"speed"`
	Torque float64 `json:"torque"`
	Power  float64 `json:"power"`
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherClock sets the clock used for staleness and history.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// Publisher reduces the latest Measurement to a display Snapshot, applying
// staleness zeroing, low-speed zeroing and the torque/power hold filter.
// It is safe for concurrent pollers.
type Publisher struct {
	settings Settings
	state    *SharedState
	now      func() time.Time

	mu         sync.Mutex
	history    *SpeedHistory
	lastTorque float64
	lastPower  float64
}

// NewPublisher creates a Publisher reading from state.
func NewPublisher(settings Settings, state *SharedState, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		settings: settings,
		state:    state,
		now:      time.Now,
		history:  NewSpeedHistory(settings.ZeroDuration),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll returns the snapshot for the current time.
func (p *Publisher) Poll() Snapshot {
	return p.PollAt(p.now())
}

// PollAt returns the snapshot as seen at now.
func (p *Publisher) PollAt(now time.Time) Snapshot {
	m, ok := p.state.Load()

	rpm, speed, torque, power := m.RPM, m.SpeedKmh, m.TorqueNm, m.PowerW
	if !ok || now.Sub(m.At) > p.settings.StopTimeout {
		rpm, speed, torque, power = 0, 0, 0, 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.history.Push(now, speed)
	if lo, hi, ok := p.history.Range(); ok &&
		hi < p.settings.ZeroSpeedThresh &&
		hi-lo < p.settings.ZeroVariationThresh {
		speed = 0
		rpm = 0
	}

	torque = hold(torque, p.lastTorque, p.settings.MaxTorque*p.settings.OutlierFactor)
	power = hold(power, p.lastPower, p.settings.MaxPower*p.settings.OutlierFactor)
	p.lastTorque = torque
	p.lastPower = power

	return Snapshot{
		RPM:    round(rpm, 1),
		Speed:  round(speed, 2),
		Torque: round(torque, 2),
		Power:  round(power, 1),
	}
}

// hold returns last when v is a non-zero value that jumped more than bound
// away from it.
func hold(v, last, bound float64) float64 {
	if v != 0 && math.Abs(v-last) > bound {
		return last
	}
	return v
}
