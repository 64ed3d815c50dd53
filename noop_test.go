package teflib

import (
	"testing"
	"time"
)

func TestDisabledCaptureRecordsNothing(t *testing.T) {
	tracer, _ := newTestTracer(t)

	if tracer.Enabled() {
		t.Fatal("Expected capture disabled without sinks")
	}

	s := tracer.Begin(idWork, idPerf)
	if s.Active() {
		t.Error("Expected inert scope while disabled")
	}
	s.AddArgument(Int32Arg(idDataSize, 1))
	s.End()
	tracer.Record(idWork, idPerf, PhaseDurationBegin)
	tracer.RecordWithArgs(idWork, idPerf, PhaseDurationEnd, nil)
	tracer.RecordCounter(idCount, idDatum, 13)

	if tracer.NumEvents() != 0 {
		t.Errorf("Expected empty buffer, got %d events", tracer.NumEvents())
	}
	if got := tracer.Stats().Recorded; got != 0 {
		t.Errorf("Expected 0 recorded, got %d", got)
	}
}

func TestDisabledCaptureDoesNotAllocate(t *testing.T) {
	tracer, _ := newTestTracer(t)

	allocs := testing.AllocsPerRun(1000, func() {
		s := tracer.Begin(idWork, idPerf)
		s.AddArgument(Int32Arg(idDataSize, 1))
		s.End()
		tracer.Record(idWork, idPerf, PhaseDurationBegin)
		tracer.RecordCounter(idCount, idDatum, 13)
	})
	if allocs != 0 {
		t.Errorf("Expected 0 allocs while disabled, got %v", allocs)
	}
}

func TestEnabledRecordDoesNotAllocate(t *testing.T) {
	tracer, _ := newTestTracer(t)
	if err := tracer.AddSink(newMemSink(MaxSinkLifetime)); err != nil {
		t.Fatal(err)
	}

	// 101 runs of two events each stay inside the initial buffer capacity,
	// so any allocation here is per call.
	allocs := testing.AllocsPerRun(100, func() {
		tracer.Record(idWork, idPerf, PhaseDurationBegin)
		tracer.RecordCounter(idCount, idDatum, 13)
	})
	if allocs != 0 {
		t.Errorf("Expected 0 allocs while enabled, got %v", allocs)
	}
	if got := tracer.NumEvents(); got != 202 {
		t.Errorf("Expected 202 buffered events, got %d", got)
	}
}

func TestDisabledAfterSinkCompletes(t *testing.T) {
	tracer, clock := newTestTracer(t)
	if err := tracer.AddSink(newMemSink(time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Millisecond)
	tracer.Drain()

	s := tracer.Begin(idWork, idPerf)
	s.End()
	if tracer.NumEvents() != 0 {
		t.Errorf("Expected nothing recorded after the last sink completed, got %d", tracer.NumEvents())
	}
}

func BenchmarkDisabledScope(b *testing.B) {
	tracer := New()
	_ = tracer.RegisterString(idWork, "work")
	_ = tracer.RegisterString(idPerf, "perf")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := tracer.Begin(idWork, idPerf)
		s.End()
	}
}

func BenchmarkEnabledScope(b *testing.B) {
	tracer := New()
	_ = tracer.RegisterString(idWork, "work")
	_ = tracer.RegisterString(idPerf, "perf")
	_ = tracer.AddSink(newMemSink(MaxSinkLifetime))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := tracer.Begin(idWork, idPerf)
		s.End()
		if i%4096 == 0 {
			tracer.Drain()
		}
	}
	tracer.Shutdown()
}
