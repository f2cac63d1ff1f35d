// Package api exposes search over recorded disappearances.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LdDl/lastseen/mot"
)

// Searcher is the query side of the persistence sink
type Searcher interface {
	Search(ctx context.Context, term string) ([]mot.DisappearanceRecord, error)
	Clear(ctx context.Context) (int, error)
}

// SearchOutput is the response of GET /api/detections
type SearchOutput struct {
	Query   string   `json:"query"`
	Total   int      `json:"total"`
	Records []Record `json:"records"`
}

// Record is a disappearance record with parsed box and URL of the snapshot
type Record struct {
	mot.DisappearanceRecord
	BBox     []float64 `json:"bbox,omitempty"`
	ImageURL string    `json:"image_url,omitempty"`
}

type errorOutput struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type handler struct {
	searcher Searcher
	log      *slog.Logger
}

// NewRouter registers search routes. Snapshots from historyDir are served under /history.
func NewRouter(searcher Searcher, historyDir string, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := handler{searcher: searcher, log: logger.With("component", "api")}
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	group := r.Group("/api")
	group.GET("/detections", h.search)
	group.DELETE("/detections", h.clear)
	if historyDir != "" {
		r.Static("/history", historyDir)
	}
	return r
}

func (h handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, errorOutput{Code: 1, Msg: "q is required"})
		return
	}
	records, err := h.searcher.Search(c.Request.Context(), query)
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "search failed", "query", query, "err", err)
		c.JSON(http.StatusInternalServerError, errorOutput{Code: 1, Msg: "search failed"})
		return
	}
	out := SearchOutput{Query: query, Total: len(records), Records: make([]Record, 0, len(records))}
	for _, record := range records {
		item := Record{DisappearanceRecord: record}
		if rect, err := mot.ParseBBoxCoords(record.BBoxCoords); err == nil {
			x1, y1, x2, y2 := rect.Corners()
			item.BBox = []float64{x1, y1, x2, y2}
		}
		if record.ImagePath != "" {
			item.ImageURL = "/history/" + filepath.Base(record.ImagePath)
		}
		out.Records = append(out.Records, item)
	}
	c.JSON(http.StatusOK, out)
}

func (h handler) clear(c *gin.Context) {
	deleted, err := h.searcher.Clear(c.Request.Context())
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "clear failed", "err", err)
		c.JSON(http.StatusInternalServerError, errorOutput{Code: 1, Msg: "clear failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.log.InfoContext(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"elapsed", time.Since(start),
	)
}
