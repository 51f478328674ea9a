package dyno

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func TestOmegaWindow(t *testing.T) {
	t.Parallel()

	t.Run("no reference until something is evicted", func(t *testing.T) {
		t.Parallel()
		w := NewOmegaWindow(time.Second)
		w.Push(at(0), 1)
		w.Push(at(500*time.Millisecond), 2)
		_, ok := w.Reference()
		assert.False(t, ok)
		assert.Equal(t, 2, w.Len())
	})

	t.Run("point exactly one span old is evicted", func(t *testing.T) {
		t.Parallel()
		w := NewOmegaWindow(time.Second)
		w.Push(at(0), 1)
		w.Push(at(time.Second), 2)
		ref, ok := w.Reference()
		require.True(t, ok)
		assert.Equal(t, at(0), ref.At)
		assert.Equal(t, 1.0, ref.Value)
		assert.Equal(t, 1, w.Len())
	})

	t.Run("reference is the newest evicted point", func(t *testing.T) {
		t.Parallel()
		w := NewOmegaWindow(time.Second)
		for i := 0; i < 10; i++ {
			w.Push(at(time.Duration(i)*100*time.Millisecond), float64(i))
		}
		w.Push(at(1500*time.Millisecond), 99)
		ref, ok := w.Reference()
		require.True(t, ok)
		assert.Equal(t, 5.0, ref.Value)
		assert.Equal(t, 5, w.Len())
	})

	t.Run("reference survives pushes that evict nothing", func(t *testing.T) {
		t.Parallel()
		w := NewOmegaWindow(time.Second)
		w.Push(at(0), 1)
		w.Push(at(time.Second), 2)
		w.Push(at(1100*time.Millisecond), 3)
		ref, ok := w.Reference()
		require.True(t, ok)
		assert.Equal(t, 1.0, ref.Value)
	})

	t.Run("same timestamp replaces newest", func(t *testing.T) {
		t.Parallel()
		w := NewOmegaWindow(time.Second)
		w.Push(at(0), 1)
		w.Push(at(0), 7)
		assert.Equal(t, 1, w.Len())
	})
}

func TestSpeedHistory(t *testing.T) {
	t.Parallel()

	h := NewSpeedHistory(2 * time.Second)
	_, _, ok := h.Range()
	assert.False(t, ok)

	h.Push(at(0), 4)
	h.Push(at(time.Second), 1)
	h.Push(at(2*time.Second), 3)
	lo, hi, ok := h.Range()
	require.True(t, ok)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 4.0, hi, "a point exactly one span old is kept")
	assert.Equal(t, 3, h.Len())

	h.Push(at(2500*time.Millisecond), 2)
	lo, hi, _ = h.Range()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 3.0, hi)
	assert.Equal(t, 3, h.Len())
}

func TestSeriesCompaction(t *testing.T) {
	t.Parallel()

	h := NewSpeedHistory(time.Second)
	for i := 0; i < 10_000; i++ {
		h.Push(at(time.Duration(i)*10*time.Millisecond), float64(i%7))
	}
	assert.Equal(t, 101, h.Len())
	assert.LessOrEqual(t, cap(h.s.points), 512)
}
