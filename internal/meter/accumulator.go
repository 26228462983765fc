package meter

import (
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// CFPerCCF converts register readings (ccf) to fast dial units (cf).
const CFPerCCF = 100.0

// DefaultRateCeiling is the highest plausible flow in cf/min for a
// residential AC-250 install. Anything faster is a misread.
const DefaultRateCeiling = 10.0

// Phase is the accumulator's lifecycle state.
type Phase int

const (
	// PhaseUninitialized waits for the first fast dial sample.
	PhaseUninitialized Phase = iota
	// PhaseSteady accumulates; it lasts for the rest of the process.
	PhaseSteady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Outcome classifies what one observation did to the state.
type Outcome int

const (
	// OutcomeSeeded means the observation set the starting position.
	OutcomeSeeded Outcome = iota
	// OutcomeIdle means the dial did not advance.
	OutcomeIdle
	// OutcomeCommitted means the advance was added to the total.
	OutcomeCommitted
	// OutcomeRejected means the implied rate was implausible and the
	// observation was dropped.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSeeded:
		return "seeded"
	case OutcomeIdle:
		return "idle"
	case OutcomeCommitted:
		return "committed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// State is the meter state carried from cycle to cycle.
type State struct {
	Phase        Phase     `json:"phase"`
	Total        float64   `json:"total"`         // Cumulative cf
	LastPosition float64   `json:"last_position"` // Fast dial travel in [0,2]
	LastTime     time.Time `json:"last_time"`
	Rate         float64   `json:"rate"` // Last committed cf/min
}

// Sample describes one observation. It is never stored.
type Sample struct {
	Outcome  Outcome
	Position float64 // Unwrapped fast dial travel
	Delta    float64
	Elapsed  time.Duration
	Rate     float64 // cf/min
}

// Accumulator integrates fast dial travel into a cumulative total. It is not
// safe for concurrent use; the sampler owns it.
type Accumulator struct {
	ceiling float64
	window  int
	state   State
	recent  []float64
}

// NewAccumulator returns an accumulator that rejects rates above ceiling
// cf/min and averages the last window committed rates.
func NewAccumulator(ceiling float64, window int) *Accumulator {
	if window < 1 {
		window = 1
	}
	return &Accumulator{ceiling: ceiling, window: window}
}

// Seed sets the total from a register reading in ccf.
func (a *Accumulator) Seed(ccf float64) {
	a.state.Total = ccf * CFPerCCF
}

// Reset is an operator reset: the total restarts at ccf and the fast dial
// reference is dropped. This is the only way the total may decrease.
func (a *Accumulator) Reset(ccf float64) {
	a.state = State{Total: ccf * CFPerCCF}
	a.recent = nil
}

// State returns a copy of the current state.
func (a *Accumulator) State() State {
	return a.state
}

// AverageRate returns the mean of the recently committed rates, or 0.
func (a *Accumulator) AverageRate() float64 {
	if len(a.recent) == 0 {
		return 0
	}
	return stat.Mean(a.recent, nil)
}

// Observe feeds one fast dial running position (see RunningPosition) taken
// at t.
func (a *Accumulator) Observe(running float64, t time.Time) Sample {
	if a.state.Phase == PhaseUninitialized {
		a.state.Phase = PhaseSteady
		a.state.LastPosition = running
		a.state.LastTime = t
		return Sample{Outcome: OutcomeSeeded, Position: running}
	}

	pos := Unwrap(running, a.state.LastPosition)
	if pos <= a.state.LastPosition {
		// Usage is monotonic over a sampling interval; anything else is noise
		return Sample{Outcome: OutcomeIdle, Position: pos}
	}

	s := Sample{
		Position: pos,
		Delta:    pos - a.state.LastPosition,
		Elapsed:  t.Sub(a.state.LastTime),
	}
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		s.Outcome = OutcomeRejected
		logrus.WithFields(logrus.Fields{
			"delta":   s.Delta,
			"elapsed": s.Elapsed,
		}).Warn("skipping sample: no time elapsed")
		return s
	}
	s.Rate = s.Delta * 60 / secs
	if s.Rate > a.ceiling {
		s.Outcome = OutcomeRejected
		logrus.WithFields(logrus.Fields{
			"position": running,
			"delta":    s.Delta,
			"elapsed":  s.Elapsed,
			"cfm":      s.Rate,
		}).Warn("skipping sample: implausible rate")
		return s
	}

	s.Outcome = OutcomeCommitted
	a.state.Total += s.Delta
	// The reference stays within one revolution; Unwrap re-adds the turn.
	a.state.LastPosition = running
	a.state.LastTime = t
	a.state.Rate = s.Rate
	a.recent = append(a.recent, s.Rate)
	if len(a.recent) > a.window {
		a.recent = a.recent[len(a.recent)-a.window:]
	}
	return s
}
