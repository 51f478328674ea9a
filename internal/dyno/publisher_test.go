package dyno

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func storeAt(state *SharedState, now time.Time, rpm, speed, torque, power float64) {
	state.Store(Measurement{RPM: rpm, SpeedKmh: speed, TorqueNm: torque, PowerW: power, At: now})
}

func TestPublisherNoDataIsZero(t *testing.T) {
	t.Parallel()

	p := NewPublisher(DefaultSettings(), NewSharedState())
	assert.Equal(t, Snapshot{}, p.PollAt(t0))
}

func TestPublisherStaleness(t *testing.T) {
	t.Parallel()

	state := NewSharedState()
	p := NewPublisher(DefaultSettings(), state)
	storeAt(state, at(0), 6000, 67.86, 0.5, 30)

	got := p.PollAt(at(time.Second))
	assert.Equal(t, Snapshot{RPM: 6000, Speed: 67.86, Torque: 0.5, Power: 30}, got, "age equal to the timeout is still fresh")

	got = p.PollAt(at(1500 * time.Millisecond))
	assert.Equal(t, Snapshot{}, got)
}

func TestPublisherDynamicZeroing(t *testing.T) {
	t.Parallel()

	t.Run("low and flat is zeroed", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		var got Snapshot
		for i := 0; i <= 11; i++ {
			now := at(time.Duration(i) * 200 * time.Millisecond)
			storeAt(state, now, 300+float64(i%2), 3.0+0.05*float64(i%2), 0, 0)
			got = p.PollAt(now)
		}
		assert.Zero(t, got.Speed)
		assert.Zero(t, got.RPM)
	})

	t.Run("jittery low speed passes through", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 265, 3.0, 0, 0)
		p.PollAt(at(0))
		storeAt(state, at(200*time.Millisecond), 310, 3.5, 0, 0)
		got := p.PollAt(at(200 * time.Millisecond))
		assert.Equal(t, 3.5, got.Speed)
		assert.Equal(t, 310.0, got.RPM)
	})

	t.Run("decelerating through the threshold passes through", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 530, 6.0, 0, 0)
		p.PollAt(at(0))
		storeAt(state, at(200*time.Millisecond), 354, 4.0, 0, 0)
		got := p.PollAt(at(200 * time.Millisecond))
		assert.Equal(t, 4.0, got.Speed)
	})

	t.Run("old fast samples age out of the history", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 530, 6.0, 0, 0)
		p.PollAt(at(0))
		storeAt(state, at(2100*time.Millisecond), 300, 3.0, 0, 0)
		got := p.PollAt(at(2100 * time.Millisecond))
		assert.Zero(t, got.Speed)
	})

	t.Run("torque and power are not zeroed", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 300, 3.0, 0.4, 2.5)
		got := p.PollAt(at(0))
		assert.Equal(t, Snapshot{Torque: 0.4, Power: 2.5}, got)
	})
}

func TestPublisherOutlierHold(t *testing.T) {
	t.Parallel()

	// MaxTorque 2.0 * 0.8 => 1.6 N·m bound, MaxPower 50 * 0.8 => 40 W bound.
	t.Run("within bound is published", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 6000, 67.86, 1.0, 10)
		assert.Equal(t, 1.0, p.PollAt(at(0)).Torque)
		storeAt(state, at(200*time.Millisecond), 6000, 67.86, 2.5, 45)
		got := p.PollAt(at(200 * time.Millisecond))
		assert.Equal(t, 2.5, got.Torque)
		assert.Equal(t, 45.0, got.Power)
	})

	t.Run("single spike is held at the baseline", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		var shown []float64
		for i, tq := range []float64{1.0, 1.0, 3.0, 1.0, 1.0} {
			now := at(time.Duration(i) * 200 * time.Millisecond)
			storeAt(state, now, 6000, 67.86, tq, 10)
			shown = append(shown, p.PollAt(now).Torque)
		}
		assert.Equal(t, []float64{1.0, 1.0, 1.0, 1.0, 1.0}, shown)
	})

	t.Run("power spike is held independently", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 6000, 67.86, 0.1, 10)
		p.PollAt(at(0))
		storeAt(state, at(200*time.Millisecond), 6000, 67.86, 0.2, 70)
		got := p.PollAt(at(200 * time.Millisecond))
		assert.Equal(t, 0.2, got.Torque)
		assert.Equal(t, 10.0, got.Power)
	})

	t.Run("zero is never held", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		storeAt(state, at(0), 6000, 67.86, 1.5, 30)
		p.PollAt(at(0))
		storeAt(state, at(200*time.Millisecond), 6000, 67.86, 0, 0)
		got := p.PollAt(at(200 * time.Millisecond))
		assert.Zero(t, got.Torque)
		assert.Zero(t, got.Power)
	})

	t.Run("hold is relative to the shown value", func(t *testing.T) {
		t.Parallel()
		state := NewSharedState()
		p := NewPublisher(DefaultSettings(), state)

		// A genuine step from 0.2 to 2.0 is held once against 0.2, and keeps
		// being held because the shown value did not move.
		for i, tq := range []float64{0.2, 2.0, 2.0} {
			now := at(time.Duration(i) * 200 * time.Millisecond)
			storeAt(state, now, 6000, 67.86, tq, 10)
			assert.Equal(t, 0.2, p.PollAt(now).Torque)
		}
	})
}

func TestPublisherRounding(t *testing.T) {
	t.Parallel()

	state := NewSharedState()
	p := NewPublisher(DefaultSettings(), state)
	storeAt(state, at(0), 5999.94, 67.858401, 0.80802, 12.345)

	assert.Equal(t, Snapshot{RPM: 5999.9, Speed: 67.86, Torque: 0.81, Power: 12.3}, p.PollAt(at(0)))
}

// Stopped, then spinning, then stopped again within one staleness window.
func TestStopStartStop(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r, state := newTestReader(DefaultSettings(), clock)
	p := NewPublisher(DefaultSettings(), state, WithPublisherClock(clock.Now))

	r.HandleLine(line(clock, 0))
	assert.Equal(t, Snapshot{}, p.Poll())

	clock.Advance(100 * time.Millisecond)
	r.HandleLine(line(clock, 10_000))
	clock.Advance(50 * time.Millisecond)
	got := p.Poll()
	assert.Equal(t, 6000.0, got.RPM)
	assert.Equal(t, 67.86, got.Speed)

	clock.Advance(50 * time.Millisecond)
	r.HandleLine(line(clock, 0))
	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, Snapshot{}, p.Poll())

	// Spinning again, then the sensor goes silent: zero once stale.
	r.HandleLine(line(clock, 10_000))
	assert.Equal(t, 6000.0, p.Poll().RPM)
	clock.Advance(1100 * time.Millisecond)
	assert.Equal(t, Snapshot{}, p.Poll())
}

func TestPublisherConcurrentPolls(t *testing.T) {
	t.Parallel()

	state := NewSharedState()
	p := NewPublisher(DefaultSettings(), state)
	storeAt(state, time.Now(), 6000, 67.86, 1.0, 10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Poll()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 6000.0, p.Poll().RPM)
}
