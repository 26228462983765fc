package dial

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"meter-reader/pkg/colorutil"
	"meter-reader/pkg/geometry"
)

// ErrDialOutOfFrame is returned when a dial's box does not fit in the frame.
var ErrDialOutOfFrame = errors.New("dial box outside frame")

// Calibrate finds the dial faces in a rectified grayscale frame. The camera
// is steadier than the circle detector, so this runs once and the result is
// persisted. When the number of circles is not ExpectedDials the best effort
// set is returned together with a *CalibrationError.
func Calibrate(frame gocv.Mat, params LocatorParams) (CalibrationSet, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	params = params.WithFrameHeight(frame.Rows())

	circles := gocv.NewMat()
	defer circles.Close()

	gocv.HoughCirclesWithParams(frame, &circles, gocv.HoughGradient,
		params.HoughDP, params.MinDistPixels,
		params.HoughParam1, params.HoughParam2,
		params.MinRadiusPixels, params.MaxRadiusPixels)

	var set CalibrationSet
	if !circles.Empty() {
		for i := 0; i < circles.Cols(); i++ {
			set = append(set, Dial{
				Center: geometry.PointInt{
					X: int(math.Round(float64(circles.GetFloatAt(0, i*3)))),
					Y: int(math.Round(float64(circles.GetFloatAt(0, i*3+1)))),
				},
				Radius: int(math.Round(float64(circles.GetFloatAt(0, i*3+2)))),
			})
		}
	}

	logCalibration(set, float64(frame.Rows())/ReferenceHeight)

	if len(set) != ExpectedDials {
		return set, &CalibrationError{Found: len(set)}
	}
	return set, nil
}

func logCalibration(set CalibrationSet, scale float64) {
	if len(set) == 0 {
		logrus.Warn("calibration found no dials")
		return
	}
	radii := make([]float64, len(set))
	for i, d := range set {
		radii[i] = float64(d.Radius)
		logrus.WithFields(logrus.Fields{
			"x":      d.Center.X,
			"y":      d.Center.Y,
			"radius": d.Radius,
			"adj":    int(float64(d.Radius) / scale),
		}).Debug("dial found")
	}
	mean, std := stat.MeanStdDev(radii, nil)
	if len(radii) == 1 {
		std = 0
	}
	logrus.WithFields(logrus.Fields{
		"dials":       len(set),
		"mean_radius": fmt.Sprintf("%.1f", mean),
		"std_radius":  fmt.Sprintf("%.2f", std),
	}).Info("calibration complete")
}

// Crop returns a copy of the square sub-image around d. The caller owns the
// returned Mat.
func Crop(frame gocv.Mat, d Dial) (gocv.Mat, error) {
	box := d.Bounds()
	if !box.Within(frame.Cols(), frame.Rows()) {
		return gocv.NewMat(), fmt.Errorf("%w: %+v in %dx%d", ErrDialOutOfFrame, box, frame.Cols(), frame.Rows())
	}
	region := frame.Region(box.Image())
	defer region.Close()
	return region.Clone(), nil
}

// CropIndex selects the dial for index and crops it.
func (s CalibrationSet) CropIndex(frame gocv.Mat, index int) (gocv.Mat, error) {
	d, err := s.Select(index)
	if err != nil {
		return gocv.NewMat(), err
	}
	return Crop(frame, d)
}

// Annotate returns a BGR copy of frame with every calibrated dial outlined
// and numbered. The fast dial, when the set has one, is drawn in red.
func Annotate(frame gocv.Mat, set CalibrationSet) gocv.Mat {
	out := gocv.NewMat()
	if frame.Channels() == 1 {
		gocv.CvtColor(frame, &out, gocv.ColorGrayToBGR)
	} else {
		frame.CopyTo(&out)
	}
	fast, err := set.Select(FastDial)
	for i, d := range set {
		c := colorutil.Green
		if err == nil && d == fast {
			c = colorutil.Red
		}
		gocv.Circle(&out, d.Center.ImagePoint(), d.Radius, c, 4)
		gocv.PutText(&out, fmt.Sprintf("%d", i), d.Center.ImagePoint(),
			gocv.FontHersheyPlain, 2, c, 2)
	}
	return out
}
