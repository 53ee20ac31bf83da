// dnsanchor keeps a set of DNS A records pointed at the operator's current
// public IPv4 address. It polls external IP echo services on an interval,
// compares against the last-known address, and creates or updates provider
// records when the address changes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/dnsanchor/internal/config"
	"gitlab.bluewillows.net/root/dnsanchor/internal/detector"
	"gitlab.bluewillows.net/root/dnsanchor/internal/health"
	"gitlab.bluewillows.net/root/dnsanchor/internal/metrics"
	"gitlab.bluewillows.net/root/dnsanchor/internal/reconciler"
	"gitlab.bluewillows.net/root/dnsanchor/internal/scheduler"
	"gitlab.bluewillows.net/root/dnsanchor/internal/state"
	"gitlab.bluewillows.net/root/dnsanchor/pkg/linode"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-08-30"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration first (fail fast on bad config or missing token).
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("dnsanchor starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.Bool("once", cfg.Once),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Duration("interval", cfg.Interval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiClient := linode.NewClient(cfg.APIBaseURL, cfg.Token,
		linode.WithLogger(logger),
	)

	// HTTP echo sources in configured order, with the OpenDNS resolver as a
	// final fallback that works even when HTTPS egress is filtered.
	sources := detector.HTTPSources(cfg.EchoSources, logger)
	sources = append(sources, detector.NewDNSSource("", ""))
	det := detector.New(sources, detector.WithLogger(logger))

	store := state.New(cfg.StatePath, state.WithLogger(logger))

	rec := reconciler.New(apiClient, det, store,
		reconciler.WithLogger(logger),
		reconciler.WithConfig(reconciler.Config{
			TargetsPath: cfg.TargetsPath,
			DryRun:      cfg.DryRun,
		}),
	)

	sched := scheduler.New(passRunner(rec), cfg.Interval,
		scheduler.WithLogger(logger),
	)

	if cfg.Once {
		return sched.RunOnce(ctx)
	}

	var healthServer *health.Server
	if cfg.HealthPort > 0 {
		healthServer = health.New(cfg.HealthPort,
			health.WithLogger(logger),
		)
		healthServer.RegisterChecker("provider", apiClient.Ping)
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("starting health server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	err = g.Wait()

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := healthServer.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("health server shutdown error", slog.String("error", serr.Error()))
		}
	}

	logger.Info("dnsanchor shutdown complete")
	return err
}

// passRunner adapts the reconciler to the scheduler's result shape.
func passRunner(rec *reconciler.Reconciler) scheduler.RunFunc {
	return func(ctx context.Context) (*scheduler.PassResult, error) {
		result, err := rec.RunPass(ctx)
		if err != nil {
			return nil, err
		}
		return &scheduler.PassResult{
			Outcome:  string(result.Outcome()),
			Failed:   result.FailedCount(),
			Duration: result.Duration(),
		}, nil
	}
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
