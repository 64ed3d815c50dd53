package teflib

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// FileSink streams events into a Trace Event Format JSON file.
//
// The file is opened and the array opener written when the sink is
// constructed. Every event is followed by a separator; on Finish the sink
// writes the meta-events, a terminal "end_of_trace" event without a
// separator, and closes the document. A sink whose file cannot be opened or
// written is inert: it discards everything and never fails the host.
type FileSink struct {
	Lifecycle

	path   string
	logger *zap.Logger
	gzip   bool
	opened bool

	mu     sync.Mutex
	file   *os.File
	zw     *gzip.Writer
	w      *bufio.Writer
	events int
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithGzip compresses the report. Perfetto loads gzipped JSON directly.
func WithGzip() FileSinkOption {
	return func(s *FileSink) { s.gzip = true }
}

// WithFileLogger sets the logger for open, write and close events.
func WithFileLogger(logger *zap.Logger) FileSinkOption {
	return func(s *FileSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileSink creates path and starts the report. lifetime is clamped to
// MaxSinkLifetime; zero selects DefaultSinkLifetime.
func NewFileSink(path string, lifetime time.Duration, opts ...FileSinkOption) *FileSink {
	s := &FileSink{
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("file_sink").With(zap.String("path", path))
	s.SetLifetime(lifetime)

	f, err := os.Create(path)
	if err != nil {
		s.logger.Warn("failed to open trace file, sink is inert", zap.Error(err))
		return s
	}
	s.file = f
	s.opened = true

	var dst io.Writer = f
	if s.gzip {
		s.zw = gzip.NewWriter(f)
		dst = s.zw
	}
	s.w = bufio.NewWriterSize(dst, 64*1024)

	s.logger.Info("opened trace file")
	s.write(`{"traceEvents":[` + "\n")
	return s
}

// Filename returns the destination path, or "" if it could not be opened.
func (s *FileSink) Filename() string {
	if !s.opened {
		return ""
	}
	return s.path
}

// IsOpen reports whether the file is still accepting events.
func (s *FileSink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

// EventCount returns the number of events written, including meta-events
// and the terminal event.
func (s *FileSink) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Consume appends events to the report.
func (s *FileSink) Consume(events []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if !s.writeLocked(e, ",\n") {
			return
		}
		s.events++
	}
}

// Finish appends the meta-events and the terminal event, then closes the file.
func (s *FileSink) Finish(metaEvents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range metaEvents {
		if !s.writeLocked(e, ",\n") {
			return
		}
		s.events++
	}

	// The terminal event carries no separator, so no event ever has to
	// take back a trailing comma.
	buf := make([]byte, 0, 128)
	buf = append(buf, `{"name":"`+EndOfTraceName+`","ph":"X","pid":`...)
	buf = strconv.AppendInt(buf, ProcessID, 10)
	buf = append(buf, `,"tid":`...)
	buf = strconv.AppendUint(buf, goroutineID(), 10)
	buf = append(buf, `,"ts":`...)
	buf = strconv.AppendUint(buf, s.FinishedAt(), 10)
	buf = append(buf, `,"dur":1000}`...)
	if s.writeLocked(string(buf), "\n]\n}\n") {
		s.events++
	}

	s.closeLocked()
}

func (s *FileSink) write(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(str, "")
}

// writeLocked writes str and sep. A failed write makes the sink inert.
func (s *FileSink) writeLocked(str, sep string) bool {
	if s.file == nil {
		return false
	}
	if _, err := s.w.WriteString(str); err != nil {
		s.fail(err)
		return false
	}
	if _, err := s.w.WriteString(sep); err != nil {
		s.fail(err)
		return false
	}
	return true
}

func (s *FileSink) fail(err error) {
	s.logger.Error("trace file write failed, sink is inert", zap.Error(err))
	s.file.Close()
	s.file, s.zw, s.w = nil, nil, nil
}

func (s *FileSink) closeLocked() {
	if s.file == nil {
		return
	}
	if err := s.w.Flush(); err != nil {
		s.logger.Error("flush trace file", zap.Error(err))
	}
	if s.zw != nil {
		if err := s.zw.Close(); err != nil {
			s.logger.Error("close gzip stream", zap.Error(err))
		}
	}
	if err := s.file.Close(); err != nil {
		s.logger.Error("close trace file", zap.Error(err))
	}
	s.file, s.zw, s.w = nil, nil, nil
	s.logger.Info("closed trace file", zap.Int("events", s.events))
}
