package teflib

// noArgs marks an event without an argument list.
const noArgs = -1

// Event is one recorded occurrence. Events are appended once and never
// modified; at drain time they move from the buffer to the serializer.
type Event struct {
	Name      StringID
	Category  StringID
	Phase     Phase
	Timestamp uint64 // microseconds since the tracer started
	Duration  uint64 // microseconds, PhaseComplete only
	Thread    uint64 // producing goroutine

	// args indexes the argument table of the batch, or noArgs.
	args int32

	// Counters keep their single value inline so recording them never
	// allocates an argument list.
	counterKey   StringID
	counterValue int64
}

// HasArgs reports whether the event carries an argument list.
func (e Event) HasArgs() bool { return e.args != noArgs || e.Phase == PhaseCounter }

// hasCategory reports whether the serialized event carries "cat".
func (e Event) hasCategory() bool { return e.Phase != PhaseCounter }
