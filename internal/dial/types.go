// Package dial locates the analog dial faces of a gas meter and crops them
// out of rectified frames.
package dial

import (
	"fmt"
	"sort"

	"meter-reader/pkg/geometry"
)

// ExpectedDials is the number of dial faces on the meter panel: four decade
// dials on the top row and the fast dial(s) on the bottom row.
const ExpectedDials = 6

// DecadeDials is the number of dials on the top row.
const DecadeDials = 4

// FastDial selects the last dial of the bottom row.
const FastDial = -1

// Dial is one located dial face.
type Dial struct {
	Center geometry.PointInt `json:"center"`
	Radius int               `json:"radius"`
}

// Bounds returns the square box of half-side Radius around the centre.
func (d Dial) Bounds() geometry.RectInt {
	return geometry.SquareAround(d.Center, d.Radius)
}

// CalibrationSet is the ordered collection of dials found by calibration.
// It is created once and reused unchanged for every frame.
type CalibrationSet []Dial

// CalibrationError reports a calibration that did not find ExpectedDials
// circles. The accompanying set is still the best effort result.
type CalibrationError struct {
	Found int
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration found %d dials, expected %d", e.Found, ExpectedDials)
}

// Rows splits the set into the top (decade) row and the bottom row, each
// sorted left to right.
func (s CalibrationSet) Rows() (top, bottom []Dial) {
	sorted := make([]Dial, len(s))
	copy(sorted, s)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Center.Y < sorted[j].Center.Y
	})

	n := min(DecadeDials, len(sorted))
	top = sorted[:n]
	bottom = sorted[n:]
	byX := func(row []Dial) {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].Center.X < row[j].Center.X
		})
	}
	byX(top)
	byX(bottom)
	return top, bottom
}

// Select returns the dial for index. 0-3 pick a decade dial left to right,
// 4 and above pick bottom-row dials in order, FastDial picks the last
// bottom-row dial.
func (s CalibrationSet) Select(index int) (Dial, error) {
	top, bottom := s.Rows()
	switch {
	case index >= 0 && index < DecadeDials:
		if index >= len(top) {
			return Dial{}, fmt.Errorf("decade dial %d not calibrated (%d dials)", index, len(s))
		}
		return top[index], nil
	case index == FastDial:
		if len(bottom) == 0 {
			return Dial{}, fmt.Errorf("no fast dial calibrated (%d dials)", len(s))
		}
		return bottom[len(bottom)-1], nil
	case index >= DecadeDials:
		i := index - DecadeDials
		if i >= len(bottom) {
			return Dial{}, fmt.Errorf("bottom dial %d not calibrated (%d dials)", index, len(s))
		}
		return bottom[i], nil
	default:
		return Dial{}, fmt.Errorf("invalid dial index %d", index)
	}
}
