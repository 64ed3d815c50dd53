package benchmarks

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/AndrewMeadows/teflib"
)

// BenchmarkDrain measures serialization of a batch of scopes with
// arguments, the work done once per main loop iteration.
func BenchmarkDrain(b *testing.B) {
	for _, batch := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("batch-%d", batch), func(b *testing.B) {
			tracer := newTracer(b, true)
			defer tracer.Shutdown()

			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				for j := 0; j < batch; j++ {
					s := tracer.Begin(nameWork, catPerf)
					s.AddArgument(teflib.Int32Arg(keySize, int32(j)))
					s.End()
				}
				b.StartTimer()
				tracer.Drain()
			}
			b.ReportMetric(float64(batch), "events/drain")
		})
	}
}

// BenchmarkFileSink measures end to end cost with a gzip and a plain report.
func BenchmarkFileSink(b *testing.B) {
	for _, gz := range []bool{false, true} {
		b.Run(fmt.Sprintf("gzip-%v", gz), func(b *testing.B) {
			tracer := newTracer(b, false)

			var opts []teflib.FileSinkOption
			if gz {
				opts = append(opts, teflib.WithGzip())
			}
			sink := teflib.NewFileSink(filepath.Join(b.TempDir(), "bench.json"), teflib.MaxSinkLifetime, opts...)
			if err := tracer.AddSink(sink); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s := tracer.Begin(nameWork, catPerf)
				s.End()
				if i&0x3ff == 0 {
					tracer.Drain()
				}
			}
			tracer.Shutdown()
		})
	}
}
