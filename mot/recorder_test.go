package mot

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSinkDown = errors.New("sink is down")

type fakeSink struct {
	failLabels map[string]bool
	calls      map[uuid.UUID]int
	persisted  []Disappearance
}

func newFakeSink(failLabels ...string) *fakeSink {
	sink := &fakeSink{failLabels: map[string]bool{}, calls: map[uuid.UUID]int{}}
	for _, label := range failLabels {
		sink.failLabels[label] = true
	}
	return sink
}

func (sink *fakeSink) Persist(ctx context.Context, d Disappearance) (DisappearanceRecord, error) {
	sink.calls[d.ObjectID]++
	if sink.failLabels[d.Label] {
		return DisappearanceRecord{}, errSinkDown
	}
	sink.persisted = append(sink.persisted, d)
	return DisappearanceRecord{
		ID:         int64(len(sink.persisted)),
		Timestamp:  d.LastSeen.Format(TimestampLayout),
		Label:      d.Label,
		BBoxCoords: FormatBBoxCoords(d.BBox),
		ImagePath:  fmt.Sprintf("history/%s.jpg", d.ObjectID),
	}, nil
}

func disappearance(label string) Disappearance {
	return Disappearance{ObjectID: uuid.New(), Label: label, BBox: NewRectFromCorners(1, 2, 3, 4)}
}

func TestRecorderPersistsEachOnce(t *testing.T) {
	sink := newFakeSink()
	recorder := NewRecorder(sink, 10, quietLogger())
	batch := []Disappearance{disappearance("key"), disappearance("cup")}
	records, err := recorder.Record(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1,2,3,4", records[0].BBoxCoords)
	for _, d := range batch {
		assert.Equal(t, 1, sink.calls[d.ObjectID])
	}
	assert.Empty(t, recorder.DeadLetters())
}

func TestRecorderDeadLettersFailures(t *testing.T) {
	sink := newFakeSink("cup")
	recorder := NewRecorder(sink, 10, quietLogger())
	key, cup := disappearance("key"), disappearance("cup")
	records, err := recorder.Record(context.Background(), []Disappearance{cup, key})
	require.Error(t, err)
	assert.ErrorIs(t, err, errSinkDown)
	require.Len(t, records, 1)
	assert.Equal(t, "key", records[0].Label)
	require.Len(t, recorder.DeadLetters(), 1)
	assert.Equal(t, cup.ObjectID, recorder.DeadLetters()[0].ObjectID)

	// Still failing: stays queued
	_, err = recorder.RetryDeadLetters(context.Background())
	assert.ErrorIs(t, err, errSinkDown)
	assert.Len(t, recorder.DeadLetters(), 1)

	// Recovered: persisted once and removed
	delete(sink.failLabels, "cup")
	records, err = recorder.RetryDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, recorder.DeadLetters())
	records, err = recorder.RetryDeadLetters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, sink.persisted, 2)
	assert.Equal(t, 1, sink.calls[key.ObjectID])
}

func TestRecorderDeadLetterCapacity(t *testing.T) {
	sink := newFakeSink("key")
	recorder := NewRecorder(sink, 2, quietLogger())
	batch := []Disappearance{disappearance("key"), disappearance("key"), disappearance("key")}
	_, err := recorder.Record(context.Background(), batch)
	require.Error(t, err)
	letters := recorder.DeadLetters()
	require.Len(t, letters, 2)
	assert.Equal(t, batch[1].ObjectID, letters[0].ObjectID)
	assert.Equal(t, batch[2].ObjectID, letters[1].ObjectID)
}

func TestTrackerToRecorderPipeline(t *testing.T) {
	sink := newFakeSink()
	recorder := NewRecorder(sink, 10, quietLogger())
	tracker := newTestTracker(75.0, 2, "key")
	tracker.Step(newFrame(), []Detection{centered("key", 100, 100)})
	for i := 0; i < 3; i++ {
		res := tracker.Step(newFrame(), nil)
		_, err := recorder.Record(context.Background(), res.Disappeared)
		require.NoError(t, err)
	}
	require.Len(t, sink.persisted, 1)
	assert.Equal(t, "key", sink.persisted[0].Label)
}
