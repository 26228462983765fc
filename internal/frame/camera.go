package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoImage is returned when the camera delivers nothing. It is transient:
// the sampling loop skips the cycle and tries again.
var ErrNoImage = errors.New("camera returned no image")

// grabber is the part of gocv.VideoCapture the camera uses.
type grabber interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Camera captures frames from a video device.
type Camera struct {
	Rectifier Rectifier

	vc  grabber
	raw gocv.Mat
	seq int
	now func() time.Time
}

// OpenCamera opens device (an index or a URL/path understood by OpenCV) and
// requests the given resolution when non-zero.
func OpenCamera(device string, width, height int, rect Rectifier) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %q: %w", device, err)
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return newCamera(vc, rect), nil
}

func newCamera(vc grabber, rect Rectifier) *Camera {
	return &Camera{
		Rectifier: rect,
		vc:        vc,
		raw:       gocv.NewMat(),
		now:       time.Now,
	}
}

// Capture grabs one frame, converts it to grayscale and rectifies it.
func (c *Camera) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if ok := c.vc.Read(&c.raw); !ok || c.raw.Empty() {
		return Frame{}, ErrNoImage
	}
	t := c.now()

	gray := gocv.NewMat()
	if c.raw.Channels() == 1 {
		c.raw.CopyTo(&gray)
	} else {
		gocv.CvtColor(c.raw, &gray, gocv.ColorBGRToGray)
	}

	c.seq++
	return Frame{Mat: c.Rectifier.Apply(gray), Time: t, Seq: c.seq, Raw: &gray}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.raw.Close()
	return c.vc.Close()
}
