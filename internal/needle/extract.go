// Package needle extracts the needle angle from a cropped dial image by
// fitting a thin pie slice over the thresholded needle silhouette.
package needle

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"meter-reader/pkg/colorutil"
)

// ReadPosition returns the dial position in [0,10) for a square grayscale
// dial image.
func ReadPosition(dial gocv.Mat, p Params) (float64, error) {
	angle, err := ReadAngle(dial, p)
	if err != nil {
		return 0, err
	}
	return AngleToPosition(angle), nil
}

// ReadAngle returns the needle angle in degrees for a square grayscale dial
// image. Angle 0 points right and angles grow clockwise, as drawn by OpenCV.
func ReadAngle(dial gocv.Mat, p Params) (float64, error) {
	binary, err := Threshold(dial, p)
	if err != nil {
		return 0, err
	}
	defer binary.Close()
	return FindAngle(binary, p.Slices)
}

// Threshold isolates the needle: everything outside the annulus becomes
// background and dark pixels inside it become foreground (255).
func Threshold(dial gocv.Mat, p Params) (gocv.Mat, error) {
	if dial.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty dial image")
	}
	if dial.Channels() != 1 {
		return gocv.NewMat(), fmt.Errorf("dial image must be grayscale, got %d channels", dial.Channels())
	}
	r := dial.Rows() / 2
	if dial.Cols() < 2*r {
		return gocv.NewMat(), fmt.Errorf("dial image must be square, got %dx%d", dial.Cols(), dial.Rows())
	}
	center := image.Point{X: r, Y: r}

	// Donut mask: only the outer section of the dial is searched
	mask := gocv.NewMatWithSize(2*r, 2*r, gocv.MatTypeCV8U)
	defer mask.Close()
	mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Circle(&mask, center, int(math.Round(p.OuterRatio*float64(r))), colorutil.White, -1)
	gocv.Circle(&mask, center, int(math.Round(p.InnerRatio*float64(r))), colorutil.Black, -1)

	roi := dial.Region(image.Rect(0, 0, 2*r, 2*r))
	defer roi.Close()

	match := gocv.NewMat()
	defer match.Close()
	gocv.BitwiseAnd(mask, roi, &match)

	// Outside the donut becomes white so the inverse threshold drops it
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(mask, &inverted)

	masked := gocv.NewMat()
	defer masked.Close()
	gocv.BitwiseOr(inverted, match, &masked)

	binary := gocv.NewMat()
	gocv.Threshold(masked, &binary, float32(p.Threshold), 255, gocv.ThresholdBinaryInv)
	return binary, nil
}

// FindAngle searches slices candidate angles over the full circle. For each
// candidate a filled sector is erased from a copy of binary; the candidate
// leaving the fewest foreground pixels is the needle. Ties keep the lowest
// angle. No interpolation between slices is done.
func FindAngle(binary gocv.Mat, slices int) (float64, error) {
	if binary.Empty() {
		return 0, fmt.Errorf("empty binary image")
	}
	if slices < 1 {
		return 0, fmt.Errorf("invalid slice count %d", slices)
	}
	r := binary.Rows() / 2
	axes := image.Point{X: r, Y: r}
	arc := 360.0 / float64(slices)

	work := gocv.NewMat()
	defer work.Close()

	bestCount := binary.Rows()*binary.Cols() + 1
	bestAngle := 0.0
	for i := 0; i < slices; i++ {
		angle := 360.0 * float64(i) / float64(slices)
		binary.CopyTo(&work)
		// A half-arc sector is too thin to cover the needle at 200 slices
		gocv.Ellipse(&work, axes, axes, angle, -arc, arc, colorutil.Black, -1)
		count := gocv.CountNonZero(work)
		if count < bestCount {
			bestCount = count
			bestAngle = angle
		}
	}
	return bestAngle, nil
}

// AngleToPosition converts a needle angle to the dial's printed scale:
// 36 degrees per unit, with angle 0 (pointing right) at 2.5 so that the top
// mark reads 0. The result is in [0,10).
func AngleToPosition(angle float64) float64 {
	pos := math.Mod(angle/36+2.5, 10)
	if pos < 0 {
		pos += 10
	}
	if pos >= 10 {
		pos = 0
	}
	return pos
}
