// tefdemo runs CPU-bound workers instrumented with teflib. Send SIGUSR2 to
// start a trace file, and again to stop it early. With --http-addr set, live
// traces stream from /stream and tracer metrics are served on /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffval"
	"go.uber.org/zap"

	"github.com/AndrewMeadows/teflib"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	traceDir    string
	lifetime    time.Duration
	gzip        bool
	traceOnBoot bool
	httpAddr    string
	workers     int
	logLevel    string
	loopEvery   time.Duration
}

func (cfg *config) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'd',
		LongName:    "trace-dir",
		Value:       ffval.NewValueDefault(&cfg.traceDir, os.TempDir()),
		Usage:       "directory for trace files",
		Placeholder: "DIR",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName: 't',
		LongName:  "lifetime",
		Value:     ffval.NewValueDefault(&cfg.lifetime, teflib.MaxSinkLifetime),
		Usage:     "how long each trace collects events (capped at 10s)",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "gzip",
		Value:     ffval.NewValue(&cfg.gzip),
		Usage:     "gzip trace files",
		NoDefault: true,
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "trace-on-start",
		Value:     ffval.NewValue(&cfg.traceOnBoot),
		Usage:     "start a trace immediately",
		NoDefault: true,
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "http-addr",
		Value:       ffval.NewValue(&cfg.httpAddr),
		Usage:       "serve /stream and /metrics on this address",
		Placeholder: "ADDR",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName: 'w',
		LongName:  "workers",
		Value:     ffval.NewValueDefault(&cfg.workers, 2),
		Usage:     "number of side workers",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "loop-interval",
		Value:    ffval.NewValueDefault(&cfg.loopEvery, 10*time.Millisecond),
		Usage:    "main loop period",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "debug", "none"),
		Usage:       "log level: info, debug, none",
		Placeholder: "LEVEL",
	})
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	cfg := &config{}
	fs := ff.NewFlagSet("tefdemo")
	cfg.register(fs)

	cmd := &ff.Command{
		Name:      "tefdemo",
		ShortHelp: "trace CPU-bound workers to Trace Event Format files",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			return cfg.run(ctx, stdout)
		},
	}

	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(cmd))
		}
		if errHelp {
			err = nil
		}
	}()

	if err := cmd.Parse(args, ff.WithEnvVarPrefix("TEFDEMO")); err != nil {
		return err
	}
	if cfg.workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", cfg.workers)
	}
	if cfg.loopEvery <= 0 {
		return fmt.Errorf("loop interval must be positive, got %s", cfg.loopEvery)
	}

	showHelp = false
	return cmd.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	switch level {
	case "none":
		return zap.NewNop(), nil
	case "debug":
		return zap.NewDevelopmentConfig().Build()
	default:
		return zap.NewProductionConfig().Build()
	}
}
