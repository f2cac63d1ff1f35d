package mot

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// TrackedObject is an identity the tracker believes corresponds to one physical object.
// It is matched across frames by positional proximity only.
type TrackedObject struct {
	id            uuid.UUID
	label         string
	currentBBox   Rectangle
	currentCenter Point
	unseenFrames  int
	lastSeenImage image.Image
	lastSeenTime  time.Time
	matched       bool
}

func newTrackedObject(det Detection, frame image.Image, seenAt time.Time) *TrackedObject {
	return &TrackedObject{
		id:            uuid.New(),
		label:         det.Label,
		currentBBox:   det.BBox,
		currentCenter: det.Center(),
		unseenFrames:  0,
		lastSeenImage: frame,
		lastSeenTime:  seenAt,
		matched:       true,
	}
}

// GetID returns object's indentifier
func (obj *TrackedObject) GetID() uuid.UUID {
	return obj.id
}

// GetLabel returns label from the last match
func (obj *TrackedObject) GetLabel() string {
	return obj.label
}

// GetCenter returns object's current center
func (obj *TrackedObject) GetCenter() Point {
	return obj.currentCenter
}

// GetBBox returns object's current bounding box
func (obj *TrackedObject) GetBBox() Rectangle {
	return obj.currentBBox
}

// GetUnseenFrames returns number of consecutive processed frames without a match
func (obj *TrackedObject) GetUnseenFrames() int {
	return obj.unseenFrames
}

// GetLastSeenImage returns snapshot of the frame of the last match
func (obj *TrackedObject) GetLastSeenImage() image.Image {
	return obj.lastSeenImage
}

// GetLastSeenTime returns time of the last match
func (obj *TrackedObject) GetLastSeenTime() time.Time {
	return obj.lastSeenTime
}

// IsMatched reports whether object was matched (or created) in the most recent step
func (obj *TrackedObject) IsMatched() bool {
	return obj.matched
}

// update takes position, label and snapshot from matched detection
func (obj *TrackedObject) update(det Detection, frame image.Image, seenAt time.Time) {
	obj.label = det.Label
	obj.currentBBox = det.BBox
	obj.currentCenter = det.Center()
	obj.lastSeenImage = frame
	obj.lastSeenTime = seenAt
	obj.unseenFrames = 0
	obj.matched = true
}

// incNoMatch increases number of unseen frames
func (obj *TrackedObject) incNoMatch() {
	obj.unseenFrames++
}

// handOff converts object into disappearance. Snapshot ownership moves to the returned value.
func (obj *TrackedObject) handOff() Disappearance {
	d := Disappearance{
		ObjectID:     obj.id,
		Label:        obj.label,
		BBox:         obj.currentBBox,
		Image:        obj.lastSeenImage,
		LastSeen:     obj.lastSeenTime,
		UnseenFrames: obj.unseenFrames,
	}
	obj.lastSeenImage = nil
	return d
}
