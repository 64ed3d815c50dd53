package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AndrewMeadows/teflib"
)

const (
	nameMainloop teflib.StringID = iota
	nameWork
	nameShuffle
	nameSort
	catPerf
	keyDataSize
	nameBuffered
	keyEvents
)

var demoStrings = map[teflib.StringID]string{
	nameMainloop: "mainloop",
	nameWork:     "work",
	nameShuffle:  "shuffle",
	nameSort:     "sort",
	catPerf:      "perf",
	keyDataSize:  "data_size",
	nameBuffered: "buffered",
	keyEvents:    "events",
}

func (cfg *config) run(ctx context.Context, stdout io.Writer) error {
	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	tcfg := teflib.DefaultConfig()
	tcfg.Logger = logger
	tracer, err := teflib.NewWithConfig(tcfg)
	if err != nil {
		return err
	}
	for id, text := range demoStrings {
		if err := tracer.RegisterString(id, text); err != nil {
			return fmt.Errorf("register %q: %w", text, err)
		}
	}
	tracer.RecordMeta(teflib.MetaProcessName, "tefdemo")
	tracer.RecordMeta(teflib.MetaThreadName, "main_thread")
	tracer.RecordMetaIndex(teflib.MetaThreadSortIndex, 0)

	var sessionOpts []teflib.SessionOption
	sessionOpts = append(sessionOpts, teflib.WithSessionLogger(logger))
	if cfg.gzip {
		sessionOpts = append(sessionOpts, teflib.WithSessionGzip())
	}
	session := teflib.NewSession(tracer, sessionOpts...)

	toggle := func() {
		if session.IsActive() {
			logger.Info("stopping trace early", zap.String("path", session.Filename()))
			session.StopEarly()
			return
		}
		if err := session.Start(teflib.DefaultTracePath(cfg.traceDir, cfg.gzip), cfg.lifetime); err != nil {
			logger.Warn("start trace", zap.Error(err))
		}
	}
	if cfg.traceOnBoot {
		toggle()
	}

	if len(toggleSignals) > 0 {
		fmt.Fprintf(stdout, "pid %d: send %s to toggle tracing\n", os.Getpid(), toggleSignalName)
	}

	var g run.Group

	// Signal handling.
	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	// Trace toggle.
	if len(toggleSignals) > 0 {
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, toggleSignals...)
			defer signal.Stop(c)
			for {
				select {
				case <-c:
					toggle()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	// Side workers.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			done := make(chan struct{})
			for i := 0; i < cfg.workers; i++ {
				go func(i int) {
					defer func() { done <- struct{}{} }()
					runWorker(ctx, tracer, i, 10000*(i+1))
				}(i)
			}
			for i := 0; i < cfg.workers; i++ {
				<-done
			}
			<-ctx.Done()
			return ctx.Err()
		}, func(error) {
			cancel()
		})
	}

	// Main loop.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return mainLoop(ctx, cfg, tracer, session, logger, stdout)
		}, func(error) {
			cancel()
		})
	}

	// HTTP.
	if cfg.httpAddr != "" {
		ln, err := net.Listen("tcp", cfg.httpAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			teflib.NewCollector(tracer, nil),
			collectors.NewGoCollector(),
		)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/stream", &streamHandler{tracer: tracer, lifetime: cfg.lifetime, logger: logger})
		server := &http.Server{Handler: mux}

		logger.Info("serving", zap.String("addr", ln.Addr().String()))
		g.Add(func() error {
			return server.Serve(ln)
		}, func(error) {
			server.Close()
		})
	}

	err = g.Run()
	if path := session.Shutdown(); path != "" {
		fmt.Fprintf(stdout, "trace written to %s\n", path)
	}
	tracer.Shutdown()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// mainLoop does its own share of work each period and advances the session.
func mainLoop(ctx context.Context, cfg *config, tracer *teflib.Tracer, session *teflib.Session, logger *zap.Logger, stdout io.Writer) error {
	data := newData(5000)
	ticker := time.NewTicker(cfg.loopEvery)
	defer ticker.Stop()

	logger.Info("start main loop", zap.Int("num_data", len(data)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		loop := tracer.Begin(nameMainloop, catPerf)
		func() {
			s := tracer.Begin(nameWork, catPerf)
			defer s.End()
			s.AddArgument(teflib.Int64Arg(keyDataSize, int64(doWork(tracer, data))))
		}()
		tracer.RecordCounter(nameBuffered, keyEvents, int64(tracer.NumEvents()))
		loop.End()

		if path := session.Advance(); path != "" {
			fmt.Fprintf(stdout, "trace written to %s\n", path)
		}
	}
}

// runWorker repeats traced work until ctx is done.
func runWorker(ctx context.Context, tracer *teflib.Tracer, id, size int) {
	if id == 0 {
		tracer.RecordMeta(teflib.MetaThreadName, "side_thread")
	}
	data := newData(size)
	for ctx.Err() == nil {
		s := tracer.Begin(nameWork, catPerf)
		n := doWork(tracer, data)
		s.AddArgument(teflib.Int64Arg(keyDataSize, int64(n)))
		s.End()
	}
}

// doWork burns CPU: a shuffle then a sort, each traced.
func doWork(tracer *teflib.Tracer, data []uint32) int {
	func() {
		s := tracer.Begin(nameShuffle, catPerf)
		defer s.End()
		rand.Shuffle(len(data), func(i, j int) { data[i], data[j] = data[j], data[i] })
	}()

	s := tracer.Begin(nameSort, catPerf)
	defer s.End()
	slices.Sort(data)
	return len(data)
}

func newData(n int) []uint32 {
	data := make([]uint32, n)
	for i := range data {
		data[i] = uint32(i)
	}
	return data
}

// streamHandler gives every client its own stream sink, which finishes after
// the configured lifetime like any other trace.
type streamHandler struct {
	tracer   *teflib.Tracer
	lifetime time.Duration
	logger   *zap.Logger
}

func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sink := teflib.NewStreamSink(h.lifetime, teflib.WithStreamLogger(h.logger))
	if err := h.tracer.AddSink(sink); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		// A client that leaves early takes its sink with it.
		if sink.IsActive() {
			h.tracer.RemoveSink(sink)
		}
	}()
	sink.ServeHTTP(w, r)
}
