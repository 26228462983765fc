package frame

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Sequence replays numbered image files (1000.jpg, 1001.jpg, ...) from a
// directory, as recorded by Archive. Each frame is stamped with its file's
// modification time so rates come out as they were when recorded.
type Sequence struct {
	Dir       string
	Ext       string
	Rectifier Rectifier

	next int
}

// NewSequence returns a source starting at file number start.
func NewSequence(dir string, start int, ext string, rect Rectifier) *Sequence {
	if ext == "" {
		ext = ".jpg"
	}
	return &Sequence{Dir: dir, Ext: ext, Rectifier: rect, next: start}
}

// Next returns the number of the file the next Capture will read.
func (s *Sequence) Next() int {
	return s.next
}

// Capture loads the next file. A missing file ends the sequence.
func (s *Sequence) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("%d%s", s.next, s.Ext))
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Frame{}, fmt.Errorf("%w: %s", ErrExhausted, path)
	}
	if err != nil {
		return Frame{}, err
	}

	// Move past the file even if it does not decode, or a corrupt frame
	// would be retried forever.
	seq := s.next
	s.next++

	raw, err := Load(path)
	if err != nil {
		raw.Close()
		return Frame{}, err
	}

	logrus.WithField("file", path).Debug("frame loaded")
	return Frame{
		Mat:  s.Rectifier.Apply(raw),
		Time: info.ModTime(),
		Seq:  seq,
		Raw:  &raw,
	}, nil
}
