package mot

import (
	"image"
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	p1 := Point{X: 341, Y: 264}
	p2 := Point{X: 421, Y: 427}
	correnctAnswer := 181.57367
	answer := Distance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
	if Distance(p2, p1) != answer {
		t.Errorf("Distance is not symmetric")
	}
	if Distance(p1, p1) != 0 {
		t.Errorf("Distance to itself should be zero")
	}
}

func TestCenter(t *testing.T) {
	rect := NewRectFromCorners(80, 90, 120, 110)
	center := Center(rect)
	if center.X != 100 || center.Y != 100 {
		t.Errorf("Wrong center: %v, correct answer: %v", center, Point{X: 100, Y: 100})
	}
	x1, y1, x2, y2 := rect.Corners()
	if x1 != 80 || y1 != 90 || x2 != 120 || y2 != 110 {
		t.Errorf("Wrong corners: (%v, %v, %v, %v)", x1, y1, x2, y2)
	}
	fromImage := NewRectFrom(image.Rect(80, 90, 120, 110))
	if fromImage != rect {
		t.Errorf("Wrong rectangle from image.Rectangle: %v, correct answer: %v", fromImage, rect)
	}
}

func TestRectangleIsFinite(t *testing.T) {
	if !NewRect(1, 2, 3, 4).IsFinite() {
		t.Errorf("Finite rectangle reported as non-finite")
	}
	if NewRect(math.NaN(), 2, 3, 4).IsFinite() {
		t.Errorf("NaN coordinate reported as finite")
	}
	if NewRect(1, 2, math.Inf(1), 4).IsFinite() {
		t.Errorf("Inf coordinate reported as finite")
	}
}
