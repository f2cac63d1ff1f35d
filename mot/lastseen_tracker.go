package mot

import (
	"image"
	"log/slog"
	"sync"
	"time"
)

// LastSeenTracker is a centroid multi-object tracker which remembers where every object was seen last.
//
// Matching is greedy first-fit: every detection (in input order) binds to the first live object
// (in insertion order) which is not matched yet and whose center is strictly closer than the threshold.
// This is not a global-optimum assignment, so two similar objects close to each other could be mis-associated.
// Objects which moved farther than the threshold between two sampled frames get a new identity.
type LastSeenTracker struct {
	mu sync.Mutex
	// Live objects in insertion order
	objects []*TrackedObject
	// Threshold distance in pixels. Default 75.0
	minDistThreshold float64
	// Max number of consecutive unmatched frames before object is considered disappeared. Default 5
	maxNoMatch int
	filter     Filter
	clock      func() time.Time
	logger     *slog.Logger
}

// TrackerOption configures LastSeenTracker
type TrackerOption func(*LastSeenTracker)

// WithLogger sets logger used for dropped inputs and disappearances
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(tracker *LastSeenTracker) {
		tracker.logger = logger
	}
}

// WithClock overrides the time source used for last seen timestamps
func WithClock(clock func() time.Time) TrackerOption {
	return func(tracker *LastSeenTracker) {
		tracker.clock = clock
	}
}

// NewLastSeenTrackerDefault creates tracker with threshold 75px and patience of 5 frames
func NewLastSeenTrackerDefault(allowList []string, options ...TrackerOption) *LastSeenTracker {
	return NewLastSeenTracker(75.0, 5, allowList, options...)
}

// NewLastSeenTracker creates new instance of LastSeenTracker
func NewLastSeenTracker(minDistThreshold float64, maxNoMatch int, allowList []string, options ...TrackerOption) *LastSeenTracker {
	tracker := &LastSeenTracker{
		objects:          make([]*TrackedObject, 0),
		minDistThreshold: minDistThreshold,
		maxNoMatch:       maxNoMatch,
		filter:           NewKeywordFilter(allowList),
		clock:            time.Now,
		logger:           slog.Default(),
	}
	for _, option := range options {
		option(tracker)
	}
	tracker.logger = tracker.logger.With("component", "tracker")
	return tracker
}

// StepResult is the outcome of a single processed frame
type StepResult struct {
	// Live objects after the step (copies, safe for display)
	Live []TrackedObject
	// Objects which disappeared during the step
	Disappeared []Disappearance
	Matched     int
	Created     int
	// Number of filtered detections rejected as malformed
	Dropped int
}

type plannedMatch struct {
	objectIdx int
	detection Detection
}

// Step processes one sampled frame. Detections are filtered by keywords, validated,
// matched to live objects, unmatched objects are aged and those unseen for more than
// maxNoMatch frames are removed and returned as disappearances.
func (tracker *LastSeenTracker) Step(frame image.Image, detections []Detection) StepResult {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.step(frame, detections)
}

// Miss ages all live objects for a frame which could not be analyzed (e.g. detection source failure).
func (tracker *LastSeenTracker) Miss() StepResult {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.step(nil, nil)
}

func (tracker *LastSeenTracker) step(frame image.Image, detections []Detection) StepResult {
	now := tracker.clock()
	result := StepResult{}

	// Make sure that no object is considered matched before matching starts
	live := make([]*TrackedObject, len(tracker.objects))
	copy(live, tracker.objects)
	for _, object := range live {
		object.matched = false
	}

	candidates := tracker.filter(detections)
	valid := make([]Detection, 0, len(candidates))
	for _, det := range candidates {
		if err := det.Validate(); err != nil {
			tracker.logger.Warn("dropped detection", "label", det.Label, "err", err)
			result.Dropped++
			continue
		}
		valid = append(valid, det)
	}

	// Plan the whole step against snapshot of the live set, then apply it in one pass
	reserved := make([]bool, len(live))
	matches := make([]plannedMatch, 0, len(valid))
	blobsToRegister := make([]Detection, 0)
	for _, det := range valid {
		center := det.Center()
		found := -1
		for i, object := range live {
			if reserved[i] {
				continue
			}
			if Distance(object.currentCenter, center) < tracker.minDistThreshold {
				found = i
				break
			}
		}
		if found < 0 {
			blobsToRegister = append(blobsToRegister, det)
			continue
		}
		reserved[found] = true
		matches = append(matches, plannedMatch{objectIdx: found, detection: det})
	}

	for _, match := range matches {
		live[match.objectIdx].update(match.detection, frame, now)
	}
	result.Matched = len(matches)

	survivors := make([]*TrackedObject, 0, len(live)+len(blobsToRegister))
	for i, object := range live {
		if !reserved[i] {
			object.incNoMatch()
		}
		// Remove object if it was not found for a long time
		if object.unseenFrames > tracker.maxNoMatch {
			disappearance := object.handOff()
			tracker.logger.Info("object disappeared",
				"id", disappearance.ObjectID.String(),
				"label", disappearance.Label,
				"unseen_frames", disappearance.UnseenFrames,
				"last_seen", disappearance.LastSeen.Format(TimestampLayout),
			)
			result.Disappeared = append(result.Disappeared, disappearance)
			continue
		}
		survivors = append(survivors, object)
	}

	for _, det := range blobsToRegister {
		survivors = append(survivors, newTrackedObject(det, frame, now))
	}
	result.Created = len(blobsToRegister)

	tracker.objects = survivors
	result.Live = tracker.snapshot()
	return result
}

// Flush force-disappears every live object. It is used on shutdown so no sighting is lost.
func (tracker *LastSeenTracker) Flush() []Disappearance {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	flushed := make([]Disappearance, 0, len(tracker.objects))
	for _, object := range tracker.objects {
		flushed = append(flushed, object.handOff())
	}
	tracker.objects = make([]*TrackedObject, 0)
	if len(flushed) > 0 {
		tracker.logger.Info("flushed live objects", "count", len(flushed))
	}
	return flushed
}

// Objects returns copy of the live set in insertion order
func (tracker *LastSeenTracker) Objects() []TrackedObject {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.snapshot()
}

// Len returns number of live objects
func (tracker *LastSeenTracker) Len() int {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return len(tracker.objects)
}

func (tracker *LastSeenTracker) snapshot() []TrackedObject {
	out := make([]TrackedObject, len(tracker.objects))
	for i, object := range tracker.objects {
		out[i] = *object
	}
	return out
}
