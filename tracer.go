package teflib

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

var (
	// ErrNilSink is returned when adding a nil sink.
	ErrNilSink = errors.New("nil sink")

	// ErrSinkRegistered is returned when adding a sink that is already active
	// or expired, on this tracer or another one.
	ErrSinkRegistered = errors.New("sink already registered")
)

// Config holds the tracer's collaborators.
type Config struct {
	// Clock drives timestamps and sink expiry.
	Clock clockz.Clock

	// Logger receives lifecycle transitions. Never used while recording.
	Logger *zap.Logger

	// BufferCapacity is the initial number of events the buffer holds.
	BufferCapacity int
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Clock:          clockz.RealClock,
		Logger:         zap.NewNop(),
		BufferCapacity: 1024,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Clock == nil {
		return errors.New("clock is required")
	}
	if c.BufferCapacity < 0 {
		return fmt.Errorf("buffer capacity must be >= 0, got %d", c.BufferCapacity)
	}
	return nil
}

// Tracer captures events and drains them to sinks.
// Safe for concurrent use by multiple goroutines, except that Drain and
// Shutdown must not run concurrently with themselves.
//
// Two locks guard disjoint state: the buffer lock (every recording call) and
// sinksLock (sink registration and Drain). Drain is the only place that holds
// both, always sinksLock first.
//
//nolint:govet // Field order groups the locks with the state they guard
type Tracer struct {
	sinks     []Sink
	panicHook func(sink Sink, r any)
	buffer    *eventBuffer
	timeline  *timeline
	clock     clockz.Clock
	logger    *zap.Logger
	strings   StringTable
	sinksLock sync.Mutex
	enabled   atomic.Bool

	recorded  atomic.Uint64
	dropped   atomic.Uint64
	drained   atomic.Uint64
	completed atomic.Uint64
}

// New creates a tracer with the default configuration.
func New() *Tracer {
	t, err := NewWithConfig(DefaultConfig())
	if err != nil {
		panic(err) // the default configuration is always valid
	}
	return t
}

// NewWithConfig creates a tracer from cfg.
func NewWithConfig(cfg Config) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Tracer{
		buffer:   newEventBuffer(cfg.BufferCapacity),
		timeline: newTimeline(cfg.Clock),
		clock:    cfg.Clock,
		logger:   cfg.Logger.Named("tracer"),
	}, nil
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing. Registered strings and
// the panic hook carry over; sinks and events do not.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	t.sinksLock.Lock()
	hook := t.panicHook
	t.sinksLock.Unlock()

	return &Tracer{
		buffer:    newEventBuffer(t.buffer.capacity()),
		timeline:  newTimeline(clock),
		clock:     clock,
		logger:    t.logger,
		strings:   t.strings,
		panicHook: hook,
	}
}

// RegisterString interns text under id. It must be called before recording
// starts on more than one goroutine.
func (t *Tracer) RegisterString(id StringID, text string) error {
	return t.strings.Register(id, text)
}

// Strings returns the tracer's string table.
func (t *Tracer) Strings() *StringTable { return &t.strings }

// SetPanicHook sets a function to be called when a sink panics.
func (t *Tracer) SetPanicHook(hook func(sink Sink, r any)) {
	t.sinksLock.Lock()
	defer t.sinksLock.Unlock()
	t.panicHook = hook
}

// Now returns the current trace timestamp in microseconds. Successive calls
// return strictly increasing values.
func (t *Tracer) Now() uint64 { return t.timeline.now() }

// Enabled reports whether events are being captured, which is the case
// exactly when at least one sink is active.
func (t *Tracer) Enabled() bool { return captureCompiled && t.enabled.Load() }

// Record captures a duration begin or end event. Other phases are dropped.
func (t *Tracer) Record(name, category StringID, phase Phase) {
	if !captureCompiled || !t.enabled.Load() {
		return
	}
	t.record(name, category, phase, nil)
}

// RecordWithArgs captures a duration begin or end event carrying args.
// The tracer owns args from here on.
func (t *Tracer) RecordWithArgs(name, category StringID, phase Phase, args ArgumentList) {
	if !captureCompiled || !t.enabled.Load() {
		return
	}
	t.record(name, category, phase, args)
}

func (t *Tracer) record(name, category StringID, phase Phase, args ArgumentList) {
	if !phase.isDuration() {
		t.dropped.Add(1)
		return
	}

	t.strings.mustBeRegistered(name)
	t.strings.mustBeRegistered(category)
	for i := range args {
		t.strings.mustBeRegistered(args[i].Key)
	}

	t.buffer.addStamped(Event{
		Name:     name,
		Category: category,
		Phase:    phase,
		Thread:   goroutineID(),
	}, args, t.timeline)
	t.recorded.Add(1)
}

// RecordCounter captures a counter sample rendered as {"key": value}.
// Counter events have no category.
func (t *Tracer) RecordCounter(name, key StringID, value int64) {
	if !captureCompiled || !t.enabled.Load() {
		return
	}

	t.strings.mustBeRegistered(name)
	t.strings.mustBeRegistered(key)

	t.buffer.addStamped(Event{
		Name:         name,
		Phase:        PhaseCounter,
		Thread:       goroutineID(),
		counterKey:   key,
		counterValue: value,
	}, nil, t.timeline)
	t.recorded.Add(1)
}

// AddSink activates sink: its expiry is set to now plus its lifetime and
// capture is enabled if this is the only active sink.
func (t *Tracer) AddSink(sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}

	t.sinksLock.Lock()
	defer t.sinksLock.Unlock()

	for _, s := range t.sinks {
		if s == sink {
			return ErrSinkRegistered
		}
	}

	lc := sink.lifecycle()
	if !lc.start(t.clock.Now()) {
		return fmt.Errorf("sink is %s: %w", lc.State(), ErrSinkRegistered)
	}
	t.sinks = append(t.sinks, sink)

	t.logger.Debug("sink added",
		zap.Int("active_sinks", len(t.sinks)),
		zap.Duration("lifetime", lc.Lifetime()))

	if !t.enabled.Load() {
		t.enabled.Store(true)
		t.logger.Info("capture enabled")
	}
	return nil
}

// RemoveSink detaches sink without finishing it. It reports whether the sink
// was active on this tracer. Removing the last sink disables capture.
func (t *Tracer) RemoveSink(sink Sink) bool {
	t.sinksLock.Lock()
	defer t.sinksLock.Unlock()

	// Preserve order
	for i, s := range t.sinks {
		if s == sink {
			copy(t.sinks[i:], t.sinks[i+1:])
			t.sinks[len(t.sinks)-1] = nil
			t.sinks = t.sinks[:len(t.sinks)-1]
			sink.lifecycle().detach()
			t.logger.Debug("sink removed", zap.Int("active_sinks", len(t.sinks)))
			t.disableIfIdle()
			return true
		}
	}
	return false
}

// disableIfIdle turns capture off when no sink is left. Must hold sinksLock.
func (t *Tracer) disableIfIdle() {
	if len(t.sinks) == 0 && t.enabled.Load() {
		t.enabled.Store(false)
		t.logger.Info("capture disabled")
	}
}

// ActiveSinks returns the number of active sinks.
func (t *Tracer) ActiveSinks() int {
	t.sinksLock.Lock()
	defer t.sinksLock.Unlock()
	return len(t.sinks)
}

// NumEvents returns the number of events waiting for the next drain.
func (t *Tracer) NumEvents() int { return t.buffer.count() }

// Drain serializes every buffered event, delivers the batch to each active
// sink, then expires and finishes sinks whose lifetime has elapsed. Call it
// from one goroutine, typically once per iteration of the main loop.
func (t *Tracer) Drain() {
	events, args := t.buffer.swap()

	t.sinksLock.Lock()
	defer t.sinksLock.Unlock()

	if len(t.sinks) == 0 {
		return
	}

	var batch []string
	if len(events) > 0 {
		batch = serializeEvents(events, args, &t.strings)
		t.drained.Add(uint64(len(batch)))
	}

	now := t.clock.Now()
	var expired []Sink
	active := t.sinks[:0]
	for _, s := range t.sinks {
		// Another holder may have finished or removed it.
		if !s.lifecycle().IsActive() {
			t.logger.Warn("dropping sink no longer active", zap.Stringer("state", s.lifecycle().State()))
			continue
		}
		if len(batch) > 0 {
			t.safeCall(s, "consume", func() { s.Consume(batch) })
		}
		if s.lifecycle().checkExpiry(now) {
			expired = append(expired, s)
			continue
		}
		active = append(active, s)
	}
	for i := len(active); i < len(t.sinks); i++ {
		t.sinks[i] = nil
	}
	t.sinks = active
	t.disableIfIdle()

	if len(expired) == 0 {
		return
	}
	t.logger.Debug("sinks expired",
		zap.Int("expired", len(expired)),
		zap.Int("active_sinks", len(t.sinks)))

	// Buffer lock under sinksLock. Never the other way around.
	meta := t.buffer.metaEvents()
	for _, s := range expired {
		t.finish(s, meta)
	}
}

// finish hands the meta-events to an expired sink and completes it.
func (t *Tracer) finish(s Sink, meta []string) {
	lc := s.lifecycle()
	lc.beginFinish(t.timeline.now())
	t.safeCall(s, "finish", func() { s.Finish(meta) })
	lc.complete()
	t.completed.Add(1)
	t.logger.Debug("sink complete", zap.Int("meta_events", len(meta)))
}

// Shutdown expires every active sink and runs a final drain, so no sink is
// left active when it returns.
func (t *Tracer) Shutdown() {
	t.sinksLock.Lock()
	for _, s := range t.sinks {
		s.lifecycle().Stop()
	}
	n := len(t.sinks)
	t.sinksLock.Unlock()

	t.logger.Info("shutdown", zap.Int("active_sinks", n))
	t.Drain()
}

func (t *Tracer) safeCall(s Sink, op string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("sink panicked", zap.String("op", op), zap.Any("panic", r))
			if t.panicHook != nil {
				t.panicHook(s, r)
			}
		}
	}()
	f()
}

// Stats is a point-in-time view of tracer activity.
type Stats struct {
	Recorded       uint64 // events accepted
	Dropped        uint64 // events rejected for an unsupported phase
	Drained        uint64 // events serialized by Drain
	CompletedSinks uint64 // sinks that reached StateComplete
	ActiveSinks    int
	BufferedEvents int
	MetaEvents     int
}

// Stats returns current counters.
func (t *Tracer) Stats() Stats {
	return Stats{
		Recorded:       t.recorded.Load(),
		Dropped:        t.dropped.Load(),
		Drained:        t.drained.Load(),
		CompletedSinks: t.completed.Load(),
		ActiveSinks:    t.ActiveSinks(),
		BufferedEvents: t.buffer.count(),
		MetaEvents:     len(t.buffer.metaEvents()),
	}
}
