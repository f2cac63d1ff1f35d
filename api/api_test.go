package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/lastseen/mot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSearcher struct {
	records []mot.DisappearanceRecord
	err     error
	term    string
	cleared bool
}

func (s *fakeSearcher) Search(ctx context.Context, term string) ([]mot.DisappearanceRecord, error) {
	s.term = term
	return s.records, s.err
}

func (s *fakeSearcher) Clear(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.cleared = true
	return len(s.records), nil
}

func newTestRouter(searcher Searcher, historyDir string) *gin.Engine {
	return NewRouter(searcher, historyDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestSearch(t *testing.T) {
	searcher := &fakeSearcher{records: []mot.DisappearanceRecord{
		{ID: 2, Timestamp: "2025-03-01 11:00:00", Label: "car key", BBoxCoords: "10,20,110,220", ImagePath: "history/b.jpg"},
		{ID: 1, Timestamp: "2025-03-01 10:00:00", Label: "key", BBoxCoords: "broken"},
	}}
	w := serve(newTestRouter(searcher, ""), http.MethodGet, "/api/detections?q=key")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "key", searcher.term)

	var out SearchOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "car key", out.Records[0].Label)
	assert.Equal(t, []float64{10, 20, 110, 220}, out.Records[0].BBox)
	assert.Equal(t, "/history/b.jpg", out.Records[0].ImageURL)
	assert.Nil(t, out.Records[1].BBox)
	assert.Empty(t, out.Records[1].ImageURL)
}

func TestSearchRequiresQuery(t *testing.T) {
	w := serve(newTestRouter(&fakeSearcher{}, ""), http.MethodGet, "/api/detections")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchFailure(t *testing.T) {
	w := serve(newTestRouter(&fakeSearcher{err: errors.New("db is gone")}, ""), http.MethodGet, "/api/detections?q=cup")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db is gone")
}

func TestClear(t *testing.T) {
	searcher := &fakeSearcher{records: make([]mot.DisappearanceRecord, 3)}
	w := serve(newTestRouter(searcher, ""), http.MethodDelete, "/api/detections")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, searcher.cleared)
	assert.JSONEq(t, `{"deleted": 3}`, w.Body.String())

	w = serve(newTestRouter(&fakeSearcher{err: errors.New("readonly")}, ""), http.MethodDelete, "/api/detections")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHistoryAndHealth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0o644))
	router := newTestRouter(&fakeSearcher{}, dir)

	w := serve(router, http.MethodGet, "/history/a.jpg")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg", w.Body.String())

	w = serve(router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}
