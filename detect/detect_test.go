package detect

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/lastseen/mot"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPDetectorDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		img, err := jpeg.Decode(r.Body)
		if assert.NoError(t, err) {
			assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
		}
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"label": "key", "bbox": []float64{1, 2, 3, 4}},
				{"label": "broken", "bbox": []float64{1, 2}},
			},
			"bboxes": [][]float64{{10, 20, 30, 40}},
			"labels": []string{"blue cup"},
		})
	}))
	defer server.Close()

	detector := NewHTTPDetector(server.URL, time.Second, quietLogger())
	detections, err := detector.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 32, 16)))
	require.NoError(t, err)
	assert.Equal(t, []mot.Detection{
		mot.NewDetection("key", 1, 2, 3, 4),
		mot.NewDetection("blue cup", 10, 20, 30, 40),
	}, detections)
}

func TestHTTPDetectorEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detections": []}`))
	}))
	defer server.Close()

	detections, err := NewHTTPDetector(server.URL, time.Second, quietLogger()).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestHTTPDetectorFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/error":
			http.Error(w, "model is not loaded", http.StatusServiceUnavailable)
		case "/garbage":
			w.Write([]byte("not json"))
		}
	}))
	defer server.Close()
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	_, err := NewHTTPDetector(server.URL+"/error", time.Second, quietLogger()).Detect(context.Background(), frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = NewHTTPDetector(server.URL+"/garbage", time.Second, quietLogger()).Detect(context.Background(), frame)
	assert.Error(t, err)

	_, err = NewHTTPDetector(server.URL, time.Second, quietLogger()).Detect(context.Background(), nil)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	boom := errors.New("inference failed")
	static := NewStatic(
		StaticStep{Detections: []mot.Detection{mot.NewDetection("key", 0, 0, 1, 1)}},
		StaticStep{Err: boom},
	)
	ctx := context.Background()
	detections, err := static.Detect(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, detections, 1)
	_, err = static.Detect(ctx, nil)
	assert.ErrorIs(t, err, boom)
	detections, err = static.Detect(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, detections)
	assert.Equal(t, 3, static.Calls())

	var _ mot.Detector = static
	var _ mot.Detector = (*HTTPDetector)(nil)
}
