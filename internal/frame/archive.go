package frame

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive writes captured frames as numbered JPEG files that a Sequence can
// replay later.
type Archive struct {
	Dir  string
	next int
}

// NewArchive creates dir if needed and numbers files from start.
func NewArchive(dir string, start int) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Archive{Dir: dir, next: start}, nil
}

// Save writes f and returns the file path. The unrectified image is stored
// when the frame has one, so a Sequence with the same corners reproduces
// the live frame.
func (a *Archive) Save(f Frame) (string, error) {
	img := f.Mat
	if f.Raw != nil {
		img = *f.Raw
	}
	data, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	path := filepath.Join(a.Dir, fmt.Sprintf("%d.jpg", a.next))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	if !f.Time.IsZero() {
		// Replays take their timestamps from mtime
		_ = os.Chtimes(path, f.Time, f.Time)
	}
	a.next++
	return path, nil
}
