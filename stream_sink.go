package teflib

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"go.uber.org/zap"
)

// Server-sent event types written by StreamSink.
const (
	StreamEventBatch = "events"
	StreamEventMeta  = "meta"
	StreamEventEnd   = "end"
)

// StreamSink publishes drained batches to HTTP subscribers as server-sent
// events. Each batch becomes one "events" event whose data is a JSON array of
// trace events. When the sink finishes, every subscriber receives a "meta"
// event with the meta-events, an "end" event, and is disconnected.
//
// Publishing never blocks Drain: a subscriber whose buffer is full misses
// the batch, and the miss is counted.
type StreamSink struct {
	Lifecycle

	logger  *zap.Logger
	sendBuf int

	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
	meta        []byte
	done        chan struct{}

	sends atomic.Uint64
	drops atomic.Uint64
}

// StreamSinkOption configures a StreamSink.
type StreamSinkOption func(*StreamSink)

// WithSendBuffer sets how many batches each subscriber may queue before
// batches are dropped. Defaults to 16.
func WithSendBuffer(n int) StreamSinkOption {
	return func(s *StreamSink) {
		if n > 0 {
			s.sendBuf = n
		}
	}
}

// WithStreamLogger sets the logger for subscriber activity.
func WithStreamLogger(logger *zap.Logger) StreamSinkOption {
	return func(s *StreamSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStreamSink returns a sink with the given lifetime, clamped like any
// other sink.
func NewStreamSink(lifetime time.Duration, opts ...StreamSinkOption) *StreamSink {
	s := &StreamSink{
		logger:      zap.NewNop(),
		sendBuf:     16,
		subscribers: map[chan []byte]struct{}{},
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("stream_sink")
	s.SetLifetime(lifetime)
	return s
}

// Consume broadcasts the batch to every subscriber.
func (s *StreamSink) Consume(events []string) {
	if len(events) == 0 {
		return
	}
	data := jsonArray(events)

	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- data:
			s.sends.Add(1)
		default:
			s.drops.Add(1)
		}
	}
}

// Finish sends the meta-events and closes every subscriber stream.
func (s *StreamSink) Finish(metaEvents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	s.meta = jsonArray(metaEvents)
	close(s.done)
	s.logger.Debug("stream finished", zap.Int("subscribers", len(s.subscribers)))
}

// Subscribers returns the number of connected subscribers.
func (s *StreamSink) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Done is closed once the sink has finished.
func (s *StreamSink) Done() <-chan struct{} { return s.done }

// Sends returns the number of batches queued to subscribers.
func (s *StreamSink) Sends() uint64 { return s.sends.Load() }

// Drops returns the number of batches subscribers missed.
func (s *StreamSink) Drops() uint64 { return s.drops.Load() }

func (s *StreamSink) subscribe() (chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return nil, false
	default:
	}
	ch := make(chan []byte, s.sendBuf)
	s.subscribers[ch] = struct{}{}
	return ch, true
}

func (s *StreamSink) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
}

// ServeHTTP streams the sink to the client as text/event-stream.
func (s *StreamSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}

	var (
		ctx    = r.Context()
		logger = s.logger.With(zap.String("remote", r.RemoteAddr))
	)

	ch, ok := s.subscribe()
	if ok {
		defer s.unsubscribe(ch)
	}
	logger.Debug("subscribed", zap.Bool("finished", !ok))

	eventsource.Handler(func(lastID string, enc *eventsource.Encoder, stop <-chan bool) {
		var seq uint64
		send := func(typ string, data []byte) bool {
			seq++
			if err := enc.Encode(eventsource.Event{
				Type: typ,
				ID:   strconv.FormatUint(seq, 10),
				Data: data,
			}); err != nil {
				logger.Debug("encode event", zap.String("type", typ), zap.Error(err))
				return false
			}
			return true
		}

		finish := func() {
			// Batches queued before Finish go out ahead of the meta-events.
			for pending := true; pending; {
				select {
				case data := <-ch:
					if !send(StreamEventBatch, data) {
						return
					}
				default:
					pending = false
				}
			}
			s.mu.Lock()
			meta := s.meta
			s.mu.Unlock()
			if send(StreamEventMeta, meta) {
				send(StreamEventEnd, []byte("{}"))
			}
		}

		if !ok {
			finish()
			return
		}

		for {
			select {
			case data := <-ch:
				if !send(StreamEventBatch, data) {
					return
				}
			case <-s.done:
				finish()
				return
			case <-ctx.Done():
				logger.Debug("stopping: context done", zap.Error(ctx.Err()))
				return
			case <-stop:
				logger.Debug("stopping: client gone")
				return
			}
		}
	}).ServeHTTP(w, r)
}

func jsonArray(items []string) []byte {
	n := 2
	for _, it := range items {
		n += len(it) + 1
	}
	var b strings.Builder
	b.Grow(n)
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(it)
	}
	b.WriteByte(']')
	return []byte(b.String())
}
