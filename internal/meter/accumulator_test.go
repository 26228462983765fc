package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 12, 20, 8, 0, 0, 0, time.UTC)

func TestAccumulatorSeedsFromFirstSample(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 5)
	a.Seed(123.4)
	assert.Equal(t, PhaseUninitialized, a.State().Phase)
	assert.InDelta(t, 12340, a.State().Total, 1e-9)

	s := a.Observe(0.2, t0)
	assert.Equal(t, OutcomeSeeded, s.Outcome)
	st := a.State()
	assert.Equal(t, PhaseSteady, st.Phase)
	assert.Equal(t, 0.2, st.LastPosition)
	assert.Equal(t, t0, st.LastTime)
	assert.InDelta(t, 12340, st.Total, 1e-9)
}

func TestAccumulatorScenario(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 5)
	a.Seed(123.4)
	a.Observe(0.2, t0)

	s := a.Observe(0.5, t0.Add(2*time.Second))
	require.Equal(t, OutcomeCommitted, s.Outcome)
	assert.InDelta(t, 0.3, s.Delta, 1e-9)
	assert.InDelta(t, 9, s.Rate, 1e-9)

	s = a.Observe(0.7, t0.Add(4*time.Second))
	require.Equal(t, OutcomeCommitted, s.Outcome)
	assert.InDelta(t, 0.2, s.Delta, 1e-9)
	before := a.State()

	s = a.Observe(1.9, t0.Add(6*time.Second))
	assert.Equal(t, OutcomeRejected, s.Outcome)
	assert.Greater(t, s.Rate, DefaultRateCeiling)
	assert.Equal(t, before, a.State())
	assert.InDelta(t, 12340.5, a.State().Total, 1e-9)
}

func TestAccumulatorRateBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    Outcome
	}{
		{"exactly at ceiling", 6 * time.Second, OutcomeCommitted},
		{"just above ceiling", 6*time.Second - time.Millisecond, OutcomeRejected},
		{"well below ceiling", 60 * time.Second, OutcomeCommitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccumulator(DefaultRateCeiling, 1)
			a.Observe(RunningPosition(7.5), t0)
			before := a.State()

			s := a.Observe(RunningPosition(2.5), t0.Add(tt.elapsed))
			assert.Equal(t, tt.want, s.Outcome)
			if tt.want == OutcomeRejected {
				assert.Equal(t, before, a.State())
			} else {
				assert.InDelta(t, 1.0, a.State().Total, 1e-12)
			}
		})
	}
}

func TestAccumulatorIdle(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 5)
	a.Observe(1.4, t0)
	before := a.State()

	s := a.Observe(1.4, t0.Add(2*time.Second))
	assert.Equal(t, OutcomeIdle, s.Outcome)
	s = a.Observe(1.35, t0.Add(4*time.Second))
	assert.Equal(t, OutcomeIdle, s.Outcome)
	assert.Equal(t, before, a.State())
}

func TestAccumulatorZeroElapsedRejected(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 5)
	a.Observe(0.2, t0)
	s := a.Observe(0.3, t0)
	assert.Equal(t, OutcomeRejected, s.Outcome)
}

func TestAccumulatorMonotonicAcrossWrap(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 5)
	a.Seed(0)

	// Dial travel for 2 cf per turn, sampled every 2 s at 3 cf/min
	positions := []float64{1.6, 1.7, 1.8, 1.9, 0.0, 0.1, 0.2, 1.2, 1.9, 0.6}
	prev := a.State().Total
	for i, p := range positions {
		a.Observe(p, t0.Add(time.Duration(i)*20*time.Second))
		total := a.State().Total
		assert.GreaterOrEqual(t, total, prev, "sample %d", i)
		prev = total
	}
	// 1.6 -> 0.6 wrapping twice forward is 3.0 cf
	assert.InDelta(t, 3.0, a.State().Total, 1e-9)
}

func TestAccumulatorAverageRate(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 2)
	assert.Equal(t, 0.0, a.AverageRate())

	a.Observe(0.0, t0)
	a.Observe(0.1, t0.Add(60*time.Second))  // 0.1 cfm
	a.Observe(0.4, t0.Add(120*time.Second)) // 0.3 cfm
	a.Observe(0.9, t0.Add(180*time.Second)) // 0.5 cfm
	assert.InDelta(t, 0.4, a.AverageRate(), 1e-9)
	assert.InDelta(t, 0.5, a.State().Rate, 1e-9)
}

func TestAccumulatorReset(t *testing.T) {
	a := NewAccumulator(DefaultRateCeiling, 5)
	a.Seed(200)
	a.Observe(0.2, t0)
	a.Observe(0.4, t0.Add(10*time.Second))

	a.Reset(150)
	st := a.State()
	assert.Equal(t, PhaseUninitialized, st.Phase)
	assert.InDelta(t, 15000, st.Total, 1e-9)
	assert.Equal(t, 0.0, a.AverageRate())
}

func TestPhaseAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "steady", PhaseSteady.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
