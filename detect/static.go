package detect

import (
	"context"
	"image"
	"sync"

	"github.com/LdDl/lastseen/mot"
)

// Static replays scripted results, one per call. Calls beyond the script return nothing.
type Static struct {
	mu    sync.Mutex
	calls int
	steps []StaticStep
}

// StaticStep is the result of a single Detect call
type StaticStep struct {
	Detections []mot.Detection
	Err        error
}

func NewStatic(steps ...StaticStep) *Static {
	return &Static{steps: steps}
}

// Detect implements mot.Detector
func (s *Static) Detect(ctx context.Context, frame image.Image) ([]mot.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx >= len(s.steps) {
		return nil, nil
	}
	step := s.steps[idx]
	return step.Detections, step.Err
}

// Calls returns number of Detect calls so far
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
