package mot

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned bounding box in pixel coordinates.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// NewRectFromCorners builds rectangle from top-left (x1, y1) and bottom-right (x2, y2) corners
func NewRectFromCorners(x1, y1, x2, y2 float64) Rectangle {
	return Rectangle{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Corners returns (x1, y1, x2, y2)
func (rect Rectangle) Corners() (float64, float64, float64, float64) {
	return rect.X, rect.Y, rect.X + rect.Width, rect.Y + rect.Height
}

// Center returns midpoint of the rectangle
func (rect Rectangle) Center() Point {
	return Center(rect)
}

// IsFinite reports whether every coordinate is neither NaN nor infinite
func (rect Rectangle) IsFinite() bool {
	for _, v := range [...]float64{rect.X, rect.Y, rect.Width, rect.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

// Center returns midpoint of the box.
func Center(rect Rectangle) Point {
	return Point{
		X: rect.X + rect.Width/2.0,
		Y: rect.Y + rect.Height/2.0,
	}
}

// Distance returns Euclidean distance between two points.
// There is no normalization by box size: large and small objects share the same pixel threshold.
func Distance(p1, p2 Point) float64 {
	return euclideanDistance(p1, p2)
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}
