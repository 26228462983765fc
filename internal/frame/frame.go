// Package frame acquires rectified grayscale frames of the meter panel from
// a camera or from a recorded image sequence.
package frame

import (
	"context"
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrExhausted is returned when a source has no more frames. It is fatal
// to the sampling loop.
var ErrExhausted = errors.New("frame source exhausted")

// Frame is one rectified grayscale image and when it was taken.
type Frame struct {
	Mat  gocv.Mat
	Time time.Time
	Seq  int

	// Raw is the grayscale image before rectification, nil when the source
	// does not keep it. Archives store Raw so replays rectify exactly once.
	Raw *gocv.Mat
}

// Close releases the images.
func (f *Frame) Close() error {
	if f.Raw != nil {
		f.Raw.Close()
		f.Raw = nil
	}
	return f.Mat.Close()
}

// Source delivers frames. Every frame from one source has the same size;
// a size change invalidates the dial calibration.
type Source interface {
	Capture(ctx context.Context) (Frame, error)
}

// Locked serializes captures on a source that cannot serve concurrent
// requests.
type Locked struct {
	mu  sync.Mutex
	src Source
}

// NewLocked wraps src.
func NewLocked(src Source) *Locked {
	return &Locked{src: src}
}

// Capture holds the lock for the duration of one capture.
func (l *Locked) Capture(ctx context.Context) (Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Capture(ctx)
}
