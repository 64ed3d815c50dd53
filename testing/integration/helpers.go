package integration

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/AndrewMeadows/teflib"
	"go.uber.org/zap/zaptest"
)

// Interned strings used across the integration tests.
const (
	nameMainloop teflib.StringID = iota
	nameWork
	nameShuffle
	nameSort
	catPerf
	keyDataSize
	nameQueue
	keyDepth
)

var testStrings = map[teflib.StringID]string{
	nameMainloop: "mainloop",
	nameWork:     "work",
	nameShuffle:  "shuffle",
	nameSort:     "sort",
	catPerf:      "perf",
	keyDataSize:  "data_size",
	nameQueue:    "queue",
	keyDepth:     "depth",
}

// NewTestTracer returns a real-clock tracer with the shared strings
// registered and logging routed to t.
func NewTestTracer(t *testing.T) *teflib.Tracer {
	t.Helper()

	cfg := teflib.DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	tracer, err := teflib.NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	for id, text := range testStrings {
		if err := tracer.RegisterString(id, text); err != nil {
			t.Fatalf("RegisterString: %v", err)
		}
	}
	return tracer
}

// MemorySink keeps everything it receives for later inspection.
//
//nolint:govet // Field order groups the lock with what it guards
type MemorySink struct {
	teflib.Lifecycle

	mu       sync.Mutex
	events   []string
	meta     []string
	finishes int
}

// NewMemorySink returns a sink with the given lifetime.
func NewMemorySink(lifetime time.Duration) *MemorySink {
	s := &MemorySink{}
	s.SetLifetime(lifetime)
	return s
}

// Consume implements teflib.Sink.
func (s *MemorySink) Consume(events []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// Finish implements teflib.Sink.
func (s *MemorySink) Finish(meta []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = append(s.meta, meta...)
	s.finishes++
}

// Events returns a copy of the consumed events.
func (s *MemorySink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// Finishes returns how many times Finish was called.
func (s *MemorySink) Finishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishes
}

// TraceEvent is the subset of a Trace Event Format object the tests inspect.
type TraceEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat"`
	Ph   string         `json:"ph"`
	Ts   uint64         `json:"ts"`
	Dur  uint64         `json:"dur"`
	Pid  int            `json:"pid"`
	Tid  uint64         `json:"tid"`
	Args map[string]any `json:"args"`
}

// ReadTraceFile parses a finished FileSink report.
func ReadTraceFile(t *testing.T, path string) []TraceEvent {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	var doc struct {
		TraceEvents []TraceEvent `json:"traceEvents"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("trace is not valid JSON: %v", err)
	}
	return doc.TraceEvents
}

// DecodeEvents parses serialized events.
func DecodeEvents(t *testing.T, raw []string) []TraceEvent {
	t.Helper()

	out := make([]TraceEvent, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &out[i]); err != nil {
			t.Fatalf("event %d invalid: %v\n%s", i, err, r)
		}
	}
	return out
}
