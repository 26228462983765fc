// Package colorutil holds the drawing colors shared by the mask and
// annotation code.
package colorutil

import "image/color"

// Drawing colors. gocv hands colors to OpenCV as (B, G, R, A), so a single
// channel Mat takes the blue component. Black and White double as mask
// values; Red draws as 0 on a gray Mat.
var (
	Black = color.RGBA{A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Red   = color.RGBA{R: 255, A: 255}
)

// Gray returns an opaque gray of the given level.
func Gray(level uint8) color.RGBA {
	return color.RGBA{R: level, G: level, B: level, A: 255}
}
