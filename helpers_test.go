package teflib

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap/zaptest"
)

// Interned ids shared by the package tests.
const (
	idWork StringID = iota
	idPerf
	idShuffle
	idSort
	idDataSize
	idCount
	idDatum
	idLabel
	idRatio
)

// fakeClock is the part of the clockz fake the tests drive.
type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

// memSink records everything the tracer hands it.
type memSink struct {
	Lifecycle

	mu       sync.Mutex
	events   []string
	meta     []string
	batches  int
	finishes int
}

func newMemSink(lifetime time.Duration) *memSink {
	s := &memSink{}
	s.SetLifetime(lifetime)
	return s
}

func (s *memSink) Consume(events []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	s.batches++
}

func (s *memSink) Finish(meta []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = append(s.meta, meta...)
	s.finishes++
}

func (s *memSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *memSink) Meta() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.meta...)
}

func (s *memSink) Finishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishes
}

// newTestTracer returns a tracer on a fake clock with the test strings
// registered.
func newTestTracer(t *testing.T) (*Tracer, fakeClock) {
	t.Helper()

	clock := clockz.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.Logger = zaptest.NewLogger(t)

	tracer, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	for id, text := range map[StringID]string{
		idWork:     "work",
		idPerf:     "perf",
		idShuffle:  "shuffle",
		idSort:     "sort",
		idDataSize: "data_size",
		idCount:    "count_0",
		idDatum:    "datum_0",
		idLabel:    "label",
		idRatio:    "ratio",
	} {
		if err := tracer.RegisterString(id, text); err != nil {
			t.Fatalf("RegisterString(%d, %q): %v", id, text, err)
		}
	}
	return tracer, clock
}

// decodeEvents parses serialized events into generic maps.
func decodeEvents(t *testing.T, events []string) []map[string]any {
	t.Helper()

	out := make([]map[string]any, len(events))
	for i, e := range events {
		if err := json.Unmarshal([]byte(e), &out[i]); err != nil {
			t.Fatalf("event %d is not valid JSON: %v\n%s", i, err, e)
		}
	}
	return out
}
