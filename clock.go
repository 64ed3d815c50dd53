package teflib

import (
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"github.com/zoobzio/clockz"
)

// timeline produces process-relative microsecond timestamps.
//
// Every value returned by now is strictly greater than every value returned
// before it, on any goroutine. Trace viewers mis-nest intervals that share a
// start timestamp, so ties are broken by bumping the previous value.
type timeline struct {
	clock clockz.Clock
	start time.Time
	last  atomic.Uint64
}

func newTimeline(clock clockz.Clock) *timeline {
	return &timeline{
		clock: clock,
		start: clock.Now(),
	}
}

// now returns the next timestamp in microseconds.
func (tl *timeline) now() uint64 {
	ts := tl.elapsed()
	for {
		last := tl.last.Load()
		next := ts
		if next <= last {
			next = last + 1
		}
		if tl.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// elapsed returns raw microseconds since start, without the monotonic bump.
func (tl *timeline) elapsed() uint64 {
	d := tl.clock.Since(tl.start)
	if d < 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}

// goroutineID returns the id of the calling goroutine. It reads the runtime's
// goroutine struct directly, so it neither walks the stack nor allocates.
func goroutineID() uint64 {
	return uint64(goid.Get())
}
