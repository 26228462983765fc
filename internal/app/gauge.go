package app

import (
	"fmt"

	"gocv.io/x/gocv"

	"meter-reader/internal/dial"
	"meter-reader/internal/needle"
)

// DialReader reads dial positions out of a rectified frame.
type DialReader interface {
	// FastDial returns the fast dial position in [0,10).
	FastDial(frame gocv.Mat) (float64, error)
	// Decades returns the four decade dial positions, left to right.
	Decades(frame gocv.Mat) ([dial.DecadeDials]float64, error)
}

// Gauge reads the calibrated dials with the needle extractor.
type Gauge struct {
	Dials  dial.CalibrationSet
	Params needle.Params
}

// NewGauge returns a Gauge for a calibration.
func NewGauge(set dial.CalibrationSet, p needle.Params) *Gauge {
	return &Gauge{Dials: set, Params: p}
}

// Position reads the dial at index (see dial.CalibrationSet.Select).
func (g *Gauge) Position(frame gocv.Mat, index int) (float64, error) {
	img, err := g.Dials.CropIndex(frame, index)
	if err != nil {
		return 0, err
	}
	defer img.Close()

	pos, err := needle.ReadPosition(img, g.Params)
	if err != nil {
		return 0, fmt.Errorf("dial %d: %w", index, err)
	}
	return pos, nil
}

// FastDial implements DialReader.
func (g *Gauge) FastDial(frame gocv.Mat) (float64, error) {
	return g.Position(frame, dial.FastDial)
}

// Decades implements DialReader.
func (g *Gauge) Decades(frame gocv.Mat) ([dial.DecadeDials]float64, error) {
	var out [dial.DecadeDials]float64
	for i := range out {
		pos, err := g.Position(frame, i)
		if err != nil {
			return out, err
		}
		out[i] = pos
	}
	return out, nil
}
