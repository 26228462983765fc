// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"image"
	"math"
	"sort"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PointInt represents a 2D point with integer coordinates.
type PointInt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ToFloat converts to Point2D.
func (p PointInt) ToFloat() Point2D {
	return Point2D{X: float64(p.X), Y: float64(p.Y)}
}

// ImagePoint converts to an image.Point for drawing and region calls.
func (p PointInt) ImagePoint() image.Point {
	return image.Point{X: p.X, Y: p.Y}
}

// RectInt represents a rectangle with integer coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SquareAround returns the square of half-side r centred on c.
func SquareAround(c PointInt, r int) RectInt {
	return RectInt{X: c.X - r, Y: c.Y - r, Width: 2 * r, Height: 2 * r}
}

// Image converts to an image.Rectangle.
func (r RectInt) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Within reports whether r lies entirely inside a w x h area anchored at the origin.
func (r RectInt) Within(w, h int) bool {
	return r.Width > 0 && r.Height > 0 &&
		r.X >= 0 && r.Y >= 0 && r.X+r.Width <= w && r.Y+r.Height <= h
}

// Quad is a quadrilateral given as TL, TR, BR, BL corners.
type Quad [4]PointInt

// OrderCorners orders corner points in a consistent manner: TL, TR, BR, BL.
func OrderCorners(corners [4]PointInt) Quad {
	sorted := corners
	s := sorted[:]
	// Sort by Y first to separate top and bottom pairs
	sort.Slice(s, func(i, j int) bool {
		return s[i].Y < s[j].Y
	})

	top := s[:2]
	bottom := s[2:]
	sort.Slice(top, func(i, j int) bool {
		return top[i].X < top[j].X
	})
	sort.Slice(bottom, func(i, j int) bool {
		return bottom[i].X < bottom[j].X
	})

	return Quad{top[0], top[1], bottom[1], bottom[0]}
}

// OutputSize returns the width and height of the axis-aligned rectangle a
// perspective warp of q should produce: the longer of each pair of opposite edges.
func (q Quad) OutputSize() (w, h int) {
	tl, tr, br, bl := q[0].ToFloat(), q[1].ToFloat(), q[2].ToFloat(), q[3].ToFloat()
	w = max(int(br.Distance(bl)), int(tr.Distance(tl)))
	h = max(int(tr.Distance(br)), int(tl.Distance(bl)))
	return w, h
}

// Points returns the corners as image points in TL, TR, BR, BL order.
func (q Quad) Points() []image.Point {
	pts := make([]image.Point, len(q))
	for i, p := range q {
		pts[i] = p.ImagePoint()
	}
	return pts
}
