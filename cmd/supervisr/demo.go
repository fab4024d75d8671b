package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/supervisr"
)

const (
	unstableName = "unstable_process"
	stableName   = "stable_process"
)

func runDemo(ctx context.Context, f DemoFlags, out io.Writer) error {
	if f.Interval <= 0 {
		f.Interval = 5 * time.Second
	}
	cfg := supervisr.DefaultConfig()
	if f.Strategy != "" {
		s, err := supervisr.ParseStrategy(f.Strategy)
		if err != nil {
			return err
		}
		cfg.Strategy = s
	}

	out = &lockedWriter{w: out}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, _ = fmt.Fprintln(out, "Starting supervision system...")
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sup, err := supervisr.New(cfg, supervisr.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sup.Shutdown()

	unstable := supervisr.FactoryFunc(func() supervisr.Handle {
		return supervisr.Go(ctx, func(ctx context.Context) error {
			_, _ = fmt.Fprintln(out, "Unstable process started")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.CrashAfter):
			}
			_, _ = fmt.Fprintln(out, "Unstable process failing!")
			panic("simulated error in unstable process")
		})
	})
	stable := supervisr.FactoryFunc(func() supervisr.Handle {
		return supervisr.Go(ctx, func(ctx context.Context) error {
			_, _ = fmt.Fprintln(out, "Stable process started")
			t := time.NewTicker(time.Second)
			defer t.Stop()
			for i := 1; ; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-t.C:
					_, _ = fmt.Fprintf(out, "Stable process running (iteration %d)\n", i)
				}
			}
		})
	})

	if err := sup.AddProcess(unstableName, unstable); err != nil {
		return err
	}
	if err := sup.AddProcess(stableName, stable); err != nil {
		return err
	}
	sup.AddDependency(stableName, unstableName)
	if err := sup.StartMonitoring(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Supervision started. Observing activity for %s...\n", f.Duration)
	start := time.Now()
	deadline := time.NewTimer(f.Duration)
	defer deadline.Stop()
	tick := time.NewTicker(f.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			_, _ = fmt.Fprintln(out, "Demo ended")
			return nil
		case <-tick.C:
			elapsed := time.Since(start).Round(time.Second)
			for _, n := range []string{unstableName, stableName} {
				if st, ok := sup.ProcessState(n); ok {
					_, _ = fmt.Fprintf(out, "%s state after %s: %s\n", n, elapsed, st)
				}
			}
		}
	}
}
