package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/supervisr"
)

func runServe(ctx context.Context, flags *ServeFlags, out io.Writer) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=supervisr.toml or provide as argument")
	}
	if err := checkPidFile(flags.PidFile); err != nil {
		return err
	}
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	cfg, err := supervisr.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if cfg.Metrics.Enabled {
		if err := supervisr.RegisterMetricsDefault(); err != nil {
			_, _ = fmt.Fprintf(out, "Warning: failed to register metrics: %v\n", err)
		}
	}

	sup, err := supervisr.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	defer sup.Shutdown()

	if cfg.Metrics.Enabled && cfg.Metrics.ProcessMetrics {
		if err := supervisr.RegisterResourceMetrics(prometheus.DefaultRegisterer, sup); err != nil {
			_, _ = fmt.Fprintf(out, "Warning: failed to register process metrics: %v\n", err)
		}
	}

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	var servers []*http.Server
	defer func() {
		for _, s := range servers {
			shutdownServer(s)
		}
	}()
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		ms, err := supervisr.ServeMetrics(cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		servers = append(servers, ms)
		_, _ = fmt.Fprintf(out, "Serving metrics on %s/metrics\n", ms.Addr)
	}
	if cfg.Server.Enabled {
		protocol := "HTTP"
		if cfg.Server.TLS.Enabled {
			protocol = "HTTPS"
		}
		api, err := supervisr.NewAPIServer(sup, cfg.Server)
		if err != nil {
			return fmt.Errorf("failed to create %s server: %w", protocol, err)
		}
		servers = append(servers, api)
		_, _ = fmt.Fprintf(out, "Starting supervisr %s server on %s%s\n", protocol, api.Addr, cfg.Server.BasePath)
	}

	if err := sup.StartMonitoring(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Supervising %d process(es) with %s\n", len(sup.Statuses()), sup.Config().Strategy)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	_, _ = fmt.Fprintln(out, "Shutting down...")
	return nil
}

func shutdownServer(s *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = s.Close()
	}
}
