package mot

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// ErrInvalidDetection is returned for detections which must not reach the matching step
var ErrInvalidDetection = errors.New("invalid detection")

// Detection is a single (label, bounding box) candidate produced for one frame.
// It is never persisted directly.
type Detection struct {
	Label string
	BBox  Rectangle
}

// NewDetection creates detection from top-left and bottom-right corners
func NewDetection(label string, x1, y1, x2, y2 float64) Detection {
	return Detection{
		Label: label,
		BBox:  NewRectFromCorners(x1, y1, x2, y2),
	}
}

// Center returns center of the detection's bounding box
func (det Detection) Center() Point {
	return Center(det.BBox)
}

// Validate rejects detections with empty labels, non-finite coordinates or degenerate boxes.
func (det Detection) Validate() error {
	if det.Label == "" {
		return errors.Wrap(ErrInvalidDetection, "empty label")
	}
	if !det.BBox.IsFinite() {
		return errors.Wrapf(ErrInvalidDetection, "non-finite bbox %+v", det.BBox)
	}
	if det.BBox.Width <= 0 || det.BBox.Height <= 0 {
		return errors.Wrapf(ErrInvalidDetection, "degenerate bbox %+v", det.BBox)
	}
	return nil
}

// Detector is the detection source: given a frame it returns candidate detections.
// An empty result is valid and means nothing was detected.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}
