// Package calibration persists dial calibration between runs.
package calibration

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"meter-reader/internal/dial"
	"meter-reader/pkg/geometry"
)

// ErrNotCalibrated is returned by Load when no calibration has been saved.
var ErrNotCalibrated = errors.New("no saved calibration")

// Store reads and writes a calibration file: a JSON array of [x, y, r]
// integer triples, one per dial, in detection order.
type Store struct {
	Path string
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the saved calibration.
func (s *Store) Load() (dial.CalibrationSet, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotCalibrated
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read calibration %s", s.Path)
	}

	var triples [][3]int
	if err := json.Unmarshal(data, &triples); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse calibration %s", s.Path)
	}

	set := make(dial.CalibrationSet, len(triples))
	for i, t := range triples {
		if t[2] <= 0 {
			return nil, pkgerrors.Errorf("calibration %s: dial %d has radius %d", s.Path, i, t[2])
		}
		set[i] = dial.Dial{Center: geometry.PointInt{X: t[0], Y: t[1]}, Radius: t[2]}
	}
	return set, nil
}

// Save writes set, replacing any earlier calibration.
func (s *Store) Save(set dial.CalibrationSet) error {
	triples := make([][3]int, len(set))
	for i, d := range set {
		triples[i] = [3]int{d.Center.X, d.Center.Y, d.Radius}
	}
	data, err := json.Marshal(triples)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pkgerrors.Wrap(err, "failed to create calibration directory")
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return pkgerrors.Wrap(err, "failed to write calibration")
	}
	return pkgerrors.Wrap(os.Rename(tmp, s.Path), "failed to replace calibration")
}

// Remove deletes the saved calibration so the next start recalibrates.
func (s *Store) Remove() error {
	err := os.Remove(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
