// Package scheduler drives the reconciler either once or on a fixed
// interval, with signal-driven graceful shutdown.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrPassFailed indicates a pass completed but at least one target failed.
var ErrPassFailed = errors.New("pass reported failures")

// PassRunner executes a single reconciliation pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*PassResult, error)
}

// PassResult is the subset of a pass outcome the scheduler needs.
type PassResult struct {
	Outcome  string
	Failed   int
	Duration time.Duration
}

// RunFunc adapts a function to the PassRunner interface.
type RunFunc func(ctx context.Context) (*PassResult, error)

// RunPass implements PassRunner.
func (f RunFunc) RunPass(ctx context.Context) (*PassResult, error) {
	return f(ctx)
}

// Scheduler runs reconciliation passes. In continuous mode pass errors are
// logged and the loop carries on; the interval provides the retry cadence.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	logger   *slog.Logger
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger for the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scheduler that runs passes through runner every interval.
func New(runner PassRunner, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunOnce executes exactly one pass and propagates its outcome: a pass-fatal
// error, or ErrPassFailed when at least one target failed.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runPass(ctx)
}

// Run executes passes until ctx is cancelled. The first pass starts
// immediately; each subsequent pass starts one interval after the previous
// one finished. Pass failures never stop the loop. Returns nil on
// cancellation so signal-driven shutdown exits cleanly.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runPass(ctx); err != nil {
			s.logger.Error("pass failed",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) error {
	s.logger.Debug("starting pass")

	result, err := s.runner.RunPass(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("pass complete",
		slog.String("outcome", result.Outcome),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)

	if result.Failed > 0 {
		return ErrPassFailed
	}
	return nil
}
