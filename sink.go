package teflib

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// State is the lifecycle position of a Sink.
type State uint32

const (
	// StateIdle is a sink that has not been added to a tracer yet.
	StateIdle State = iota
	// StateActive sinks receive every drained batch.
	StateActive
	// StateExpired sinks have been removed and wait for their meta-events.
	StateExpired
	// StateComplete sinks are finished; the tracer never calls them again.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Sink receives serialized events from a Tracer.
//
// Implementations embed Lifecycle, which supplies the state the tracer drives:
//
//	type mySink struct {
//		teflib.Lifecycle
//		...
//	}
//
// Consume is called zero or more times while the sink is active, each time
// with one JSON object per event. Finish is called exactly once, after the
// sink expired, with every meta-event recorded so far. Both run on the
// goroutine calling Drain.
type Sink interface {
	Consume(events []string)
	Finish(metaEvents []string)

	lifecycle() *Lifecycle
}

// Lifecycle is the expiry state of a sink. The zero value is an idle sink
// with DefaultSinkLifetime. All methods are safe for concurrent use.
type Lifecycle struct {
	lifetime   atomic.Int64 // time.Duration
	expiry     atomic.Int64 // unix nanoseconds
	state      atomic.Uint32
	finishedAt atomic.Uint64
}

func (l *Lifecycle) lifecycle() *Lifecycle { return l }

// SetLifetime sets how long the sink collects once started. Zero selects
// DefaultSinkLifetime; values above MaxSinkLifetime are clamped.
func (l *Lifecycle) SetLifetime(d time.Duration) {
	l.lifetime.Store(int64(clampLifetime(d)))
}

// Lifetime returns the configured lifetime.
func (l *Lifecycle) Lifetime() time.Duration {
	if d := time.Duration(l.lifetime.Load()); d > 0 {
		return d
	}
	return DefaultSinkLifetime
}

// Expiry returns the time after which the next drain expires the sink.
func (l *Lifecycle) Expiry() time.Time {
	return time.Unix(0, l.expiry.Load())
}

// Stop forces the sink to expire on the next drain.
func (l *Lifecycle) Stop() {
	l.expiry.Store(math.MinInt64)
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State { return State(l.state.Load()) }

// IsActive reports whether the sink is collecting events.
func (l *Lifecycle) IsActive() bool { return l.State() == StateActive }

// IsExpired reports whether the sink is waiting for its meta-events.
func (l *Lifecycle) IsExpired() bool { return l.State() == StateExpired }

// IsComplete reports whether the sink is finished.
func (l *Lifecycle) IsComplete() bool { return l.State() == StateComplete }

// FinishedAt returns the trace timestamp, in microseconds, at which the
// tracer began finishing the sink. Zero until then.
func (l *Lifecycle) FinishedAt() uint64 { return l.finishedAt.Load() }

// start arms the expiry and activates an idle or complete sink. It reports
// false, leaving the sink untouched, if the sink is active or expired on some
// tracer.
func (l *Lifecycle) start(now time.Time) bool {
	for {
		s := l.state.Load()
		if State(s) == StateActive || State(s) == StateExpired {
			return false
		}
		if l.state.CompareAndSwap(s, uint32(StateActive)) {
			break
		}
	}
	l.expiry.Store(now.Add(l.Lifetime()).UnixNano())
	l.finishedAt.Store(0)
	return true
}

// checkExpiry moves an active sink to expired once now is past its expiry.
func (l *Lifecycle) checkExpiry(now time.Time) bool {
	if now.UnixNano() > l.expiry.Load() {
		return l.state.CompareAndSwap(uint32(StateActive), uint32(StateExpired))
	}
	return false
}

// beginFinish records the finish timestamp. Finishing a sink that is not
// expired is a contract violation.
func (l *Lifecycle) beginFinish(ts uint64) {
	if s := l.State(); s != StateExpired {
		panic(fmt.Sprintf("teflib: finishing sink in state %s, want %s", s, StateExpired))
	}
	l.finishedAt.Store(ts)
}

// complete moves an expired sink to its terminal state.
func (l *Lifecycle) complete() {
	l.state.CompareAndSwap(uint32(StateExpired), uint32(StateComplete))
}

// detach returns a removed, unfinished sink to idle.
func (l *Lifecycle) detach() {
	l.state.Store(uint32(StateIdle))
}

func clampLifetime(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultSinkLifetime
	case d > MaxSinkLifetime:
		return MaxSinkLifetime
	default:
		return d
	}
}
