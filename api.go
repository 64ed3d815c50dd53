// Package teflib records duration, counter and metadata events from any number
// of goroutines and writes them out in the Trace Event Format understood by
// chrome://tracing and Perfetto.
//
// teflib is built for cheap, always-compiled instrumentation. Recording is a
// single atomic load while no sink is attached. Once a sink is attached every
// recording call appends a fixed-size Event under one mutex and returns; no
// formatting or I/O happens on the caller's goroutine.
//
// Core Components:
//   - Tracer: owns the event buffer, the string table and the sink set.
//   - Scope: times a block of code and records one complete ("X") event.
//   - Sink: receives serialized events on every Drain.
//   - FileSink: streams a loadable JSON report to disk.
//   - StreamSink: broadcasts events to HTTP subscribers over SSE.
//   - Session: start/stop/advance helpers for a single file trace.
//
// Basic Usage:
//
//	const (
//		nameWork teflib.StringID = iota
//		catPerf
//	)
//
//	tracer := teflib.New()
//	tracer.RegisterString(nameWork, "work")
//	tracer.RegisterString(catPerf, "perf")
//
//	sink := teflib.NewFileSink("/tmp/trace.json", 5*time.Second)
//	tracer.AddSink(sink)
//
//	func work() {
//		s := tracer.Begin(nameWork, catPerf)
//		defer s.End()
//		...
//	}
//
//	// Once per main loop iteration.
//	tracer.Drain()
//
//	// Before exit.
//	tracer.Shutdown()
//
// Thread Safety:
//
// Recording operations, AddSink, RemoveSink and the Lifecycle accessors are
// safe for concurrent use. Drain and Shutdown must not run concurrently with
// themselves. The string table must be fully populated before recording
// starts on more than one goroutine.
//
// Sink Lifetime:
//
// Every sink has a bounded lifetime (at most MaxSinkLifetime) because trace
// viewers struggle with very large reports. A sink moves from active to
// expired when its lifetime elapses or it is stopped, and from expired to
// complete when it has received the metadata events. The tracer never calls
// into a complete sink again.
package teflib

import "time"

// Phase is the single character event type of the Trace Event Format.
type Phase byte

// Supported phases. Every other phase defined by the format is rejected.
const (
	PhaseDurationBegin Phase = 'B'
	PhaseDurationEnd   Phase = 'E'
	PhaseComplete      Phase = 'X'
	PhaseCounter       Phase = 'C'
	PhaseMetadata      Phase = 'M'
)

// String returns the phase code.
func (p Phase) String() string { return string(rune(p)) }

// isDuration reports whether p is a begin or end phase, the only phases
// Record accepts. The others are produced by Begin, RecordCounter and
// RecordMeta.
func (p Phase) isDuration() bool {
	return p == PhaseDurationBegin || p == PhaseDurationEnd
}

const (
	// ProcessID is reported for every event.
	ProcessID = 1

	// MaxSinkLifetime caps how long a sink collects events.
	MaxSinkLifetime = 10 * time.Second

	// DefaultSinkLifetime is used when a sink is given no lifetime.
	DefaultSinkLifetime = MaxSinkLifetime

	// EndOfTraceName is the name of the terminal event a FileSink appends.
	EndOfTraceName = "end_of_trace"
)
