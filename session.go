package teflib

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ErrSessionActive is returned by Session.Start while a trace file is still
// being written.
var ErrSessionActive = errors.New("trace session already active")

// Session drives one FileSink at a time on a Tracer. It is the usual way to
// embed tracing in a program with a main loop:
//
//	session := teflib.NewSession(tracer)
//	session.Start("", 5*time.Second)
//	for running {
//		...
//		session.Advance()
//	}
//	session.Shutdown()
type Session struct {
	tracer *Tracer
	logger *zap.Logger
	gzip   bool

	mu   sync.Mutex
	sink *FileSink
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionGzip makes every trace file the session writes gzip compressed.
func WithSessionGzip() SessionOption {
	return func(s *Session) { s.gzip = true }
}

// WithSessionLogger sets the logger passed to the session and its sinks.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession returns an idle session on tracer.
func NewSession(tracer *Tracer, opts ...SessionOption) *Session {
	s := &Session{
		tracer: tracer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")
	return s
}

// DefaultTracePath returns a fresh path in dir, or in the temp directory when
// dir is empty. Files are named by a ULID so they sort by creation time.
func DefaultTracePath(dir string, gzipped bool) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := ulid.Make().String() + "-trace.json"
	if gzipped {
		name += ".gz"
	}
	return filepath.Join(dir, name)
}

// Start begins writing a trace to path for lifetime. An empty path selects
// DefaultTracePath. If the file cannot be created the session stays active
// with an inert sink, exactly as a FileSink would.
func (s *Session) Start(path string, lifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink != nil {
		return ErrSessionActive
	}
	if path == "" {
		path = DefaultTracePath("", s.gzip)
	}

	opts := []FileSinkOption{WithFileLogger(s.logger)}
	if s.gzip {
		opts = append(opts, WithGzip())
	}
	sink := NewFileSink(path, lifetime, opts...)
	if err := s.tracer.AddSink(sink); err != nil {
		return fmt.Errorf("add file sink: %w", err)
	}
	s.sink = sink

	s.logger.Info("trace started",
		zap.String("path", path),
		zap.Duration("lifetime", sink.Lifetime()))
	return nil
}

// IsActive reports whether a trace file is being written.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink != nil
}

// StopEarly makes the next Advance finish the trace.
func (s *Session) StopEarly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		s.sink.Stop()
	}
}

// Filename returns the path being written, or "" when idle.
func (s *Session) Filename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return ""
	}
	return s.sink.Filename()
}

// Advance drains the tracer and releases the sink once it is complete.
// It returns the path of a trace that finished during this call, or "".
func (s *Session) Advance() string {
	s.tracer.Drain()
	return s.release()
}

// Shutdown finishes any trace in progress. It returns the path of the trace
// it finished, or "".
func (s *Session) Shutdown() string {
	s.tracer.Shutdown()
	return s.release()
}

func (s *Session) release() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil || !s.sink.IsComplete() {
		return ""
	}
	path := s.sink.Filename()
	s.logger.Info("trace complete",
		zap.String("path", path),
		zap.Int("events", s.sink.EventCount()))
	s.sink = nil
	return path
}
