package teflib

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestScopeRecordsCompleteEvent(t *testing.T) {
	tracer, clock := newTestTracer(t)
	sink := newMemSink(time.Second)
	if err := tracer.AddSink(sink); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Millisecond)
	s := tracer.Begin(idWork, idPerf)
	if !s.Active() {
		t.Fatal("Expected active scope")
	}
	s.AddArgument(Uint64Arg(idDataSize, 10000))
	s.AddArgument(StringArg(idLabel, "side"))
	clock.Advance(2 * time.Millisecond)
	s.End()

	tracer.Drain()

	events := decodeEvents(t, sink.Events())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	want := map[string]any{
		"name": "work",
		"cat":  "perf",
		"ph":   "X",
		"ts":   float64(1000),
		"dur":  float64(2000),
		"pid":  float64(1),
		"tid":  float64(goroutineID()),
		"args": map[string]any{"data_size": float64(10000), "label": "side"},
	}
	if diff := cmp.Diff(want, events[0]); diff != "" {
		t.Errorf("Scope event mismatch (-want +got):\n%s", diff)
	}
}

func TestScopeEndIdempotent(t *testing.T) {
	tracer, _ := newTestTracer(t)
	if err := tracer.AddSink(newMemSink(time.Second)); err != nil {
		t.Fatal(err)
	}

	s := tracer.Begin(idWork, idPerf)
	s.End()
	s.End()
	s.AddArgument(Int32Arg(idDataSize, 1))

	if s.Active() {
		t.Error("Expected ended scope to be inactive")
	}
	if tracer.NumEvents() != 1 {
		t.Errorf("Expected 1 event, got %d", tracer.NumEvents())
	}
}

func TestScopeNested(t *testing.T) {
	tracer, clock := newTestTracer(t)
	sink := newMemSink(time.Second)
	if err := tracer.AddSink(sink); err != nil {
		t.Fatal(err)
	}

	func() {
		outer := tracer.Begin(idWork, idPerf)
		defer outer.End()

		func() {
			inner := tracer.Begin(idShuffle, idPerf)
			defer inner.End()
			clock.Advance(time.Millisecond)
		}()
		func() {
			inner := tracer.Begin(idSort, idPerf)
			defer inner.End()
			clock.Advance(time.Millisecond)
		}()
	}()
	tracer.Drain()

	events := decodeEvents(t, sink.Events())
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	// Inner scopes end first and nest inside the outer interval.
	outer := events[2]
	if outer["name"] != "work" {
		t.Fatalf("Expected outer scope last, got %v", outer["name"])
	}
	start := outer["ts"].(float64)
	end := start + outer["dur"].(float64)
	for _, inner := range events[:2] {
		s := inner["ts"].(float64)
		e := s + inner["dur"].(float64)
		if s <= start || e > end {
			t.Errorf("Scope %v [%v,%v] not nested in [%v,%v]", inner["name"], s, e, start, end)
		}
	}
}

func TestScopeDisabledWhileOpen(t *testing.T) {
	tracer, _ := newTestTracer(t)
	sink := newMemSink(time.Second)
	if err := tracer.AddSink(sink); err != nil {
		t.Fatal(err)
	}

	s := tracer.Begin(idWork, idPerf)
	tracer.RemoveSink(sink)
	s.End()

	if tracer.NumEvents() != 0 {
		t.Errorf("Expected scope ending after disable to record nothing, got %d", tracer.NumEvents())
	}
}

func TestScopeRecordsOnPanic(t *testing.T) {
	tracer, _ := newTestTracer(t)
	if err := tracer.AddSink(newMemSink(time.Second)); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() { _ = recover() }()
		s := tracer.Begin(idWork, idPerf)
		defer s.End()
		panic("boom")
	}()

	if tracer.NumEvents() != 1 {
		t.Errorf("Expected deferred End to record on panic, got %d events", tracer.NumEvents())
	}
}
