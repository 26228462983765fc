package frame

import (
	"image"

	"gocv.io/x/gocv"

	"meter-reader/pkg/geometry"
)

// Rectifier squares up the meter panel with a fixed four point perspective
// transform. A zero Rectifier passes frames through unchanged.
type Rectifier struct {
	Corners geometry.Quad
}

// NewRectifier orders the calibrated corners and returns a Rectifier.
func NewRectifier(corners [4]geometry.PointInt) Rectifier {
	return Rectifier{Corners: geometry.OrderCorners(corners)}
}

// Enabled reports whether any corner is set.
func (r Rectifier) Enabled() bool {
	return r.Corners != geometry.Quad{}
}

// Apply returns the rectified, cropped panel. The caller owns the result.
func (r Rectifier) Apply(src gocv.Mat) gocv.Mat {
	if !r.Enabled() {
		return src.Clone()
	}
	w, h := r.Corners.OutputSize()

	srcPts := gocv.NewPointVectorFromPoints(r.Corners.Points())
	defer srcPts.Close()
	dstPts := gocv.NewPointVectorFromPoints([]image.Point{
		{X: 0, Y: 0},
		{X: w - 1, Y: 0},
		{X: w - 1, Y: h - 1},
		{X: 0, Y: h - 1},
	})
	defer dstPts.Close()

	m := gocv.GetPerspectiveTransform(srcPts, dstPts)
	defer m.Close()

	dst := gocv.NewMat()
	gocv.WarpPerspective(src, &dst, m, image.Point{X: w, Y: h})
	return dst
}
