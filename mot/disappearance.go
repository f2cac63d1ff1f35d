package mot

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TimestampLayout is layout of DisappearanceRecord.Timestamp
const TimestampLayout = "2006-01-02 15:04:05"

// Disappearance is emitted exactly once when object's unseen frames exceed patience (or on flush).
// It carries state from the object's last matched frame.
type Disappearance struct {
	ObjectID     uuid.UUID
	Label        string
	BBox         Rectangle
	Image        image.Image
	LastSeen     time.Time
	UnseenFrames int
}

// DisappearanceRecord is the persisted, immutable artifact of a disappearance
type DisappearanceRecord struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	Label      string `json:"label"`
	BBoxCoords string `json:"bbox_coords"`
	ImagePath  string `json:"image_path"`
}

// FormatBBoxCoords renders box corners as comma separated integers (truncated toward zero)
func FormatBBoxCoords(rect Rectangle) string {
	x1, y1, x2, y2 := rect.Corners()
	return fmt.Sprintf("%d,%d,%d,%d", int(x1), int(y1), int(x2), int(y2))
}

// ParseBBoxCoords parses value produced by FormatBBoxCoords
func ParseBBoxCoords(coords string) (Rectangle, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 4 {
		return Rectangle{}, errors.Errorf("expected 4 coordinates, got %d in '%s'", len(parts), coords)
	}
	values := [4]float64{}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Rectangle{}, errors.Wrapf(err, "can't parse coordinate %d in '%s'", i, coords)
		}
		values[i] = v
	}
	return NewRectFromCorners(values[0], values[1], values[2], values[3]), nil
}
