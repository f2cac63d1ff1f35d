// Package driver pulls frames from a source at a bounded rate and feeds them to the tracker.
package driver

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/lastseen/mot"
)

// FrameSource produces frames. io.EOF from Read means the stream has ended.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// Stats are counters of the frame loop
type Stats struct {
	Read         int64
	Processed    int64
	Dropped      int64
	SourceErrors int64
	Persisted    int64
	PersistFails int64
}

// Driver serializes frames into the tracker: at most one frame step is in flight,
// frames arriving meanwhile (or before the processing interval elapses) are dropped.
type Driver struct {
	source   FrameSource
	detector mot.Detector
	tracker  *mot.LastSeenTracker
	recorder *mot.Recorder
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger
	onStep   func(mot.StepResult)

	busy  atomic.Bool
	stats struct {
		read, processed, dropped, sourceErrors, persisted, persistFails atomic.Int64
	}
}

// Option configures Driver
type Option func(*Driver)

// WithInterval sets minimal time between two processed frames
func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		d.interval = interval
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(d *Driver) {
		d.clock = clock
	}
}

// WithStepHook registers callback receiving every step result (e.g. for display overlay)
func WithStepHook(hook func(mot.StepResult)) Option {
	return func(d *Driver) {
		d.onStep = hook
	}
}

func New(source FrameSource, detector mot.Detector, tracker *mot.LastSeenTracker, recorder *mot.Recorder, options ...Option) *Driver {
	d := &Driver{
		source:   source,
		detector: detector,
		tracker:  tracker,
		recorder: recorder,
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(d)
	}
	d.logger = d.logger.With("component", "driver")
	return d
}

// Run reads frames until ctx is cancelled or the source ends. On exit it waits for the
// in-flight step, flushes live objects into the sink, retries dead letters and closes the source.
func (d *Driver) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	var last time.Time
	var runErr error
	for {
		if ctx.Err() != nil {
			break
		}
		frame, err := d.source.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				runErr = errors.Wrap(err, "can't read frame")
			}
			break
		}
		d.stats.read.Add(1)
		now := d.clock()
		if !last.IsZero() && now.Sub(last) < d.interval {
			continue
		}
		if !d.busy.CompareAndSwap(false, true) {
			d.stats.dropped.Add(1)
			continue
		}
		last = now
		wg.Add(1)
		go func(frame image.Image) {
			defer wg.Done()
			defer d.busy.Store(false)
			d.ProcessFrame(ctx, frame)
		}(frame)
	}
	wg.Wait()
	d.shutdown(context.WithoutCancel(ctx))
	if err := d.source.Close(); err != nil {
		d.logger.Warn("can't close frame source", "err", err)
	}
	return runErr
}

// ProcessFrame runs detection and one tracker step synchronously.
// Detection failures count as "nothing matched" for every live object.
func (d *Driver) ProcessFrame(ctx context.Context, frame image.Image) mot.StepResult {
	var result mot.StepResult
	detections, err := d.detector.Detect(ctx, frame)
	if err != nil {
		d.stats.sourceErrors.Add(1)
		d.logger.WarnContext(ctx, "detection failed, frame skipped", "err", err)
		result = d.tracker.Miss()
	} else {
		result = d.tracker.Step(frame, detections)
	}
	d.stats.processed.Add(1)
	d.persist(context.WithoutCancel(ctx), result.Disappeared)
	if d.onStep != nil {
		d.onStep(result)
	}
	return result
}

func (d *Driver) shutdown(ctx context.Context) {
	flushed := d.tracker.Flush()
	d.persist(ctx, flushed)
	if len(d.recorder.DeadLetters()) == 0 {
		return
	}
	records, err := d.recorder.RetryDeadLetters(ctx)
	d.stats.persisted.Add(int64(len(records)))
	if err != nil {
		d.logger.ErrorContext(ctx, "dead letters are left unpersisted", "count", len(d.recorder.DeadLetters()), "err", err)
	}
}

func (d *Driver) persist(ctx context.Context, disappeared []mot.Disappearance) {
	if len(disappeared) == 0 {
		return
	}
	records, err := d.recorder.Record(ctx, disappeared)
	d.stats.persisted.Add(int64(len(records)))
	if err != nil {
		d.stats.persistFails.Add(int64(len(disappeared) - len(records)))
		d.logger.ErrorContext(ctx, "persistence failed", "err", err)
	}
}

// Stats returns snapshot of counters
func (d *Driver) Stats() Stats {
	return Stats{
		Read:         d.stats.read.Load(),
		Processed:    d.stats.processed.Load(),
		Dropped:      d.stats.dropped.Load(),
		SourceErrors: d.stats.sourceErrors.Load(),
		Persisted:    d.stats.persisted.Load(),
		PersistFails: d.stats.persistFails.Load(),
	}
}
