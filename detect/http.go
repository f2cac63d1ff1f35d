// Package detect implements detection sources for the tracker.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/lastseen/mot"
	"github.com/LdDl/lastseen/snapshot"
)

// HTTPDetector sends JPEG encoded frames to an external inference service.
//
// Accepted response bodies:
//
//	{"detections": [{"label": "key", "bbox": [x1, y1, x2, y2]}]}
//	{"bboxes": [[x1, y1, x2, y2]], "labels": ["key"]}
type HTTPDetector struct {
	url     string
	client  *http.Client
	quality int
	logger  *slog.Logger
}

// NewHTTPDetector creates detector posting frames to url
func NewHTTPDetector(url string, timeout time.Duration, logger *slog.Logger) *HTTPDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDetector{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		quality: 90,
		logger:  logger.With("component", "detector"),
	}
}

type detectionDTO struct {
	Label string    `json:"label"`
	BBox  []float64 `json:"bbox"`
}

type responseDTO struct {
	Detections []detectionDTO `json:"detections"`
	BBoxes     [][]float64    `json:"bboxes"`
	Labels     []string       `json:"labels"`
}

// Detect implements mot.Detector
func (detector *HTTPDetector) Detect(ctx context.Context, frame image.Image) ([]mot.Detection, error) {
	var body bytes.Buffer
	if err := snapshot.EncodeJPEG(&body, frame, detector.quality); err != nil {
		return nil, errors.Wrap(err, "can't encode frame")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, detector.url, &body)
	if err != nil {
		return nil, errors.Wrap(err, "can't create request")
	}
	req.Header.Set("Content-Type", "image/jpeg")

	start := time.Now()
	resp, err := detector.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "can't call detection service '%s'", detector.url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("detection service responded %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var payload responseDTO
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "can't decode detection response")
	}
	detections := payload.toDetections(detector.logger)
	detector.logger.DebugContext(ctx, "inference done", "elapsed", time.Since(start), "detections", len(detections))
	return detections, nil
}

func (payload responseDTO) toDetections(logger *slog.Logger) []mot.Detection {
	out := make([]mot.Detection, 0, len(payload.Detections)+len(payload.Labels))
	for _, dto := range payload.Detections {
		det, err := newDetection(dto.Label, dto.BBox)
		if err != nil {
			logger.Warn("skipped detection", "label", dto.Label, "err", err)
			continue
		}
		out = append(out, det)
	}
	if len(payload.BBoxes) != len(payload.Labels) {
		logger.Warn("bboxes and labels differ in length", "bboxes", len(payload.BBoxes), "labels", len(payload.Labels))
	}
	for i := 0; i < len(payload.BBoxes) && i < len(payload.Labels); i++ {
		det, err := newDetection(payload.Labels[i], payload.BBoxes[i])
		if err != nil {
			logger.Warn("skipped detection", "label", payload.Labels[i], "err", err)
			continue
		}
		out = append(out, det)
	}
	return out
}

// newDetection only checks shape, value validation belongs to the tracker
func newDetection(label string, bbox []float64) (mot.Detection, error) {
	if len(bbox) != 4 {
		return mot.Detection{}, errors.Errorf("bbox must have 4 coordinates, got %d", len(bbox))
	}
	return mot.NewDetection(label, bbox[0], bbox[1], bbox[2], bbox[3]), nil
}
