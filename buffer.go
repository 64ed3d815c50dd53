package teflib

import (
	"sync"
)

// eventBuffer accumulates events between drains.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order follows the drain swap, not memory layout
type eventBuffer struct {
	events []Event
	args   []ArgumentList
	meta   []string
	mu     sync.Mutex
}

func newEventBuffer(capacity int) *eventBuffer {
	if capacity < 8 {
		capacity = 8
	}
	return &eventBuffer{
		events: make([]Event, 0, capacity),
		args:   make([]ArgumentList, 0, capacity/4),
	}
}

// add appends an event whose timestamps are already set.
func (b *eventBuffer) add(e Event, args ArgumentList) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.push(e, args)
}

// addStamped takes the timestamp under the buffer lock so that buffer order
// and timestamp order agree.
func (b *eventBuffer) addStamped(e Event, args ArgumentList, tl *timeline) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.Timestamp = tl.now()
	b.push(e, args)
}

// push stores e and its arguments. Must hold mu.
func (b *eventBuffer) push(e Event, args ArgumentList) {
	e.args = noArgs
	if len(args) > 0 {
		e.args = int32(len(b.args))
		b.args = append(b.args, args)
	}

	b.grow()
	b.events = append(b.events, e)
}

// addMeta appends a pre-rendered meta-event. Meta-events outlive drains.
func (b *eventBuffer) addMeta(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.meta = append(b.meta, s)
}

// grow makes room for at least one more event. Must hold mu.
func (b *eventBuffer) grow() {
	if len(b.events) < cap(b.events) {
		return
	}

	// Double small buffers, grow large ones by half.
	currentCap := cap(b.events)
	var newCap int
	if currentCap < 1024 {
		newCap = currentCap * 2
	} else {
		newCap = currentCap + currentCap/2
	}
	if newCap < 32 {
		newCap = 32
	}
	grown := make([]Event, len(b.events), newCap)
	copy(grown, b.events)
	b.events = grown
}

// swap hands out all buffered events and their arguments and resets the
// buffer. Ownership of the returned slices passes to the caller.
func (b *eventBuffer) swap() ([]Event, []ArgumentList) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil, nil
	}

	events, args := b.events, b.args

	// Start the next cycle at a similar size, shrinking only when the last
	// cycle used a small fraction of a large buffer.
	next := cap(events)
	if next > 256 && len(events) < next/8 {
		next /= 4
	}
	if next < 32 {
		next = 32
	}
	b.events = make([]Event, 0, next)
	b.args = make([]ArgumentList, 0, cap(args))

	return events, args
}

// metaEvents returns a copy of the meta-events recorded so far.
func (b *eventBuffer) metaEvents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.meta) == 0 {
		return nil
	}
	out := make([]string, len(b.meta))
	copy(out, b.meta)
	return out
}

// capacity returns the current event capacity.
func (b *eventBuffer) capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cap(b.events)
}

// count returns the number of buffered events.
func (b *eventBuffer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
