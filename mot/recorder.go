package mot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// Sink durably stores disappearances.
// Recorder calls Persist exactly once per disappearance and never retries on its own.
type Sink interface {
	Persist(ctx context.Context, d Disappearance) (DisappearanceRecord, error)
}

// Recorder hands disappearances over to the sink.
// Failed hand-offs are moved into a bounded dead-letter queue and never block next frames.
type Recorder struct {
	mu          sync.Mutex
	sink        Sink
	deadLetters []Disappearance
	capacity    int
	logger      *slog.Logger
}

// NewRecorder creates recorder. Capacity bounds the dead-letter queue, the oldest entries are evicted first.
func NewRecorder(sink Sink, capacity int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{
		sink:        sink,
		deadLetters: make([]Disappearance, 0),
		capacity:    capacity,
		logger:      logger.With("component", "recorder"),
	}
}

// Record persists every disappearance once. Failures are dead-lettered and reported as a single recoverable error.
func (recorder *Recorder) Record(ctx context.Context, disappeared []Disappearance) ([]DisappearanceRecord, error) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	records := make([]DisappearanceRecord, 0, len(disappeared))
	var firstErr error
	failed := 0
	for _, d := range disappeared {
		record, err := recorder.sink.Persist(ctx, d)
		if err != nil {
			recorder.logger.Error("can't persist disappearance", "id", d.ObjectID.String(), "label", d.Label, "err", err)
			recorder.pushDeadLetter(d)
			if firstErr == nil {
				firstErr = err
			}
			failed++
			continue
		}
		recorder.logger.Info("disappearance persisted", "label", record.Label, "image", record.ImagePath)
		records = append(records, record)
	}
	if firstErr != nil {
		return records, errors.Wrapf(firstErr, "%d of %d disappearances dead-lettered", failed, len(disappeared))
	}
	return records, nil
}

// RetryDeadLetters attempts to persist every dead letter once more. Successful ones leave the queue.
func (recorder *Recorder) RetryDeadLetters(ctx context.Context) ([]DisappearanceRecord, error) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	pending := recorder.deadLetters
	recorder.deadLetters = make([]Disappearance, 0, len(pending))
	records := make([]DisappearanceRecord, 0, len(pending))
	var firstErr error
	for _, d := range pending {
		record, err := recorder.sink.Persist(ctx, d)
		if err != nil {
			recorder.deadLetters = append(recorder.deadLetters, d)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		records = append(records, record)
	}
	if firstErr != nil {
		return records, errors.Wrapf(firstErr, "%d dead letters still pending", len(recorder.deadLetters))
	}
	return records, nil
}

// DeadLetters returns copy of disappearances which could not be persisted
func (recorder *Recorder) DeadLetters() []Disappearance {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	out := make([]Disappearance, len(recorder.deadLetters))
	copy(out, recorder.deadLetters)
	return out
}

func (recorder *Recorder) pushDeadLetter(d Disappearance) {
	if len(recorder.deadLetters) >= recorder.capacity {
		evicted := recorder.deadLetters[0]
		recorder.deadLetters = recorder.deadLetters[1:]
		recorder.logger.Warn("dead-letter queue is full, dropping oldest", "id", evicted.ObjectID.String(), "label", evicted.Label)
	}
	recorder.deadLetters = append(recorder.deadLetters, d)
}
