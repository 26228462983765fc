package meter

import "fmt"

// RegressionError reports a register reading lower than an earlier one. One
// or more decade dials were misread; there is no automatic correction.
type RegressionError struct {
	Previous float64
	Reading  float64
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("register reading went backwards: %.1f -> %.1f ccf", e.Previous, e.Reading)
}

// Reconciler checks successive register readings against each other and
// against the running total.
type Reconciler struct {
	last  float64
	valid bool
}

// Last returns the last accepted reading and whether there is one.
func (r *Reconciler) Last() (float64, bool) {
	return r.last, r.valid
}

// Check accepts reading unless it is lower than the last accepted one, in
// which case a *RegressionError is returned and nothing changes. On success
// it returns the drift in cf between the register and total.
func (r *Reconciler) Check(reading, total float64) (float64, error) {
	if r.valid && reading < r.last {
		return 0, &RegressionError{Previous: r.last, Reading: reading}
	}
	r.last = reading
	r.valid = true
	return reading*CFPerCCF - total, nil
}

// Reset forgets the last reading.
func (r *Reconciler) Reset() {
	r.last = 0
	r.valid = false
}
