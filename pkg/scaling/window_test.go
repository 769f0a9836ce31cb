package scaling

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)

	_, ok := w.Mean()
	require.False(t, ok, "empty window has no mean")

	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
		require.LessOrEqual(t, w.Len(), w.Cap())
	}
	assert.Equal(t, []float64{3, 4, 5}, w.Values())

	mean, ok := w.Mean()
	require.True(t, ok)
	assert.InDelta(t, 4.0, mean, 1e-9)
}

func TestWindowMeanBeforeFull(t *testing.T) {
	w := NewWindow(5)
	w.Push(6)
	mean, _ := w.Mean()
	assert.InDelta(t, 6.0, mean, 1e-9)

	w.Push(7)
	mean, _ = w.Mean()
	assert.InDelta(t, 6.5, mean, 1e-9)
}

func TestWindowMinimumSize(t *testing.T) {
	w := NewWindow(0)
	require.Equal(t, 1, w.Cap())
	w.Push(1)
	w.Push(9)
	assert.Equal(t, []float64{9}, w.Values())
}

func TestObserveComputesRate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := NewPoolState(5)

	sma, rate := st.observe(start, 10)
	assert.InDelta(t, 10.0, sma, 1e-9)
	assert.Zero(t, rate, "first observation has no rate")

	sma, rate = st.observe(start.Add(10*time.Second), 0)
	assert.InDelta(t, 5.0, sma, 1e-9)
	assert.InDelta(t, -1.0, rate, 1e-9)
	require.NotNil(t, st.LastPoint)
	assert.Equal(t, int64(0), st.LastPoint.Backlog)

	// same timestamp: elapsed time is floored, never divides by zero
	_, rate = st.observe(start.Add(10*time.Second), 5)
	assert.False(t, math.IsInf(rate, 0))
	assert.InDelta(t, 5/minRateInterval.Seconds(), rate, 1e-6)
}

func TestMarkScaleIsMonotonic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := NewPoolState(1)

	st.markScaleUp(start)
	st.markScaleUp(start.Add(-time.Minute))
	assert.Equal(t, start, st.LastScaleUp)

	st.markScaleDown(start)
	st.markScaleDown(start.Add(-time.Minute))
	assert.Equal(t, start, st.LastScaleDown)
}
