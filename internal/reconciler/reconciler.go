package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gitlab.bluewillows.net/root/dnsanchor/internal/config"
	"gitlab.bluewillows.net/root/dnsanchor/internal/detector"
	"gitlab.bluewillows.net/root/dnsanchor/internal/metrics"
	"gitlab.bluewillows.net/root/dnsanchor/pkg/linode"
)

// ErrNoTargets indicates the targets file exists but configures nothing.
// The operator must populate it before the daemon can do useful work.
var ErrNoTargets = errors.New("no targets configured")

// Provider is the subset of the DNS provider API the reconciler uses.
type Provider interface {
	FindDomainID(ctx context.Context, domain string) (int, error)
	FindRecordID(ctx context.Context, domainID int, hostname string) (int, error)
	FindRecordTarget(ctx context.Context, domainID int, hostname string) (string, error)
	CreateRecord(ctx context.Context, domainID int, hostname, ip string) error
	UpdateRecord(ctx context.Context, domainID, recordID int, ip string) error
}

// IPDetector discovers the current public IPv4 address.
type IPDetector interface {
	Detect(ctx context.Context) (string, error)
}

// StateStore persists the last-known IP between passes.
type StateStore interface {
	Load() (ip string, ok bool, err error)
	Save(ip string) error
}

// Config holds reconciler configuration options.
type Config struct {
	// TargetsPath is the targets file, re-read fresh on every pass so
	// external edits take effect on the next cycle.
	TargetsPath string

	// DryRun if true, logs intended changes without calling the provider's
	// mutating endpoints or writing state.
	DryRun bool
}

// Reconciler drives one update pass: detect, compare, apply.
type Reconciler struct {
	provider Provider
	detector IPDetector
	state    StateStore
	config   Config
	logger   *slog.Logger
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfig sets the reconciler configuration.
func WithConfig(cfg Config) Option {
	return func(r *Reconciler) {
		r.config = cfg
	}
}

// New creates a Reconciler with the given dependencies.
func New(provider Provider, det IPDetector, state StateStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		provider: provider,
		detector: det,
		state:    state,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RunPass executes one full reconciliation pass.
//
// A non-nil error is pass-fatal: missing or empty target configuration,
// total IP detection failure, or unwritable state. Per-target provider
// failures are not pass-fatal; they are recorded in the Result and the pass
// continues with the remaining targets.
func (r *Reconciler) RunPass(ctx context.Context) (*Result, error) {
	result := NewResult(r.config.DryRun)

	// Step 1: load target configuration.
	targets, err := config.LoadTargets(r.config.TargetsPath)
	if err != nil {
		return nil, r.passFatal(fmt.Errorf("loading targets: %w", err))
	}
	if len(targets) == 0 {
		return nil, r.passFatal(fmt.Errorf("%w in %s", ErrNoTargets, r.config.TargetsPath))
	}

	// Step 2: detect the current public IP.
	currentIP, err := r.detector.Detect(ctx)
	if err != nil {
		return nil, r.passFatal(fmt.Errorf("detecting public IP: %w", err))
	}
	result.CurrentIP = currentIP

	// Step 3: load prior state, falling back to a provider baseline.
	lastIP, known, err := r.state.Load()
	if err != nil {
		return nil, r.passFatal(fmt.Errorf("loading state: %w", err))
	}
	if known && !detector.IsIPv4(lastIP) {
		r.logger.Warn("ignoring malformed state value",
			slog.String("value", lastIP),
		)
		known = false
	}

	if !known {
		if baseline, ok := r.discoverBaseline(ctx, targets[0]); ok {
			lastIP = baseline
			known = true
			result.BaselineAdopted = true
			r.logger.Info("adopted provider baseline",
				slog.String("baseline", baseline),
				slog.String("target", targets[0].String()),
			)
		}
	}
	result.PreviousIP = lastIP

	// Step 4: change detection.
	if known && currentIP == lastIP {
		// Persisting the freshly adopted baseline avoids re-querying the
		// provider on every future pass.
		if result.BaselineAdopted && !r.config.DryRun {
			if err := r.state.Save(currentIP); err != nil {
				return nil, r.passFatal(fmt.Errorf("saving state: %w", err))
			}
		}
		r.logger.Info("public IP unchanged",
			slog.String("ip", currentIP),
		)
		result.Complete()
		r.recordMetrics(result)
		return result, nil
	}

	result.Changed = true
	metrics.IPChangesTotal.Inc()
	r.logger.Info("public IP changed",
		slog.String("previous", lastIP),
		slog.String("current", currentIP),
		slog.Int("targets", len(targets)),
	)

	// The new IP is persisted before any record write so a persistently
	// failing provider does not get hammered with the same update on every
	// pass. A crash between here and the last write leaves records stale
	// until the IP changes again.
	if !r.config.DryRun {
		if err := r.state.Save(currentIP); err != nil {
			return nil, r.passFatal(fmt.Errorf("saving state: %w", err))
		}
	}

	// Step 5: apply to every target, sequentially and independently.
	// Domain IDs are cached per pass; multiple targets under one domain
	// resolve it once.
	domainIDs := make(map[string]int)
	for _, target := range targets {
		result.AddAction(r.applyTarget(ctx, target, currentIP, domainIDs))
	}

	result.Complete()
	r.recordMetrics(result)
	return result, nil
}

// passFatal counts a pass-fatal error in the pass metrics.
func (r *Reconciler) passFatal(err error) error {
	metrics.PassesTotal.WithLabelValues("error").Inc()
	return err
}

// discoverBaseline asks the provider for the current target of the first
// configured record. Returns ("", false) when the domain or record does not
// exist yet or the stored value is not a valid IPv4 address.
func (r *Reconciler) discoverBaseline(ctx context.Context, target config.Target) (string, bool) {
	domainID, err := r.provider.FindDomainID(ctx, target.Domain)
	if err != nil {
		r.logger.Debug("baseline domain lookup failed",
			slog.String("domain", target.Domain),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	baseline, err := r.provider.FindRecordTarget(ctx, domainID, target.Hostname)
	if err != nil {
		r.logger.Debug("baseline record lookup failed",
			slog.String("target", target.String()),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	if !detector.IsIPv4(baseline) {
		r.logger.Warn("provider baseline is not a valid IPv4 address",
			slog.String("target", target.String()),
			slog.String("value", baseline),
		)
		return "", false
	}

	return baseline, true
}

// applyTarget brings one configured record in line with ip. Lookup failures
// and write failures are reported in the returned action, never as an error,
// so one bad target cannot abort the pass.
func (r *Reconciler) applyTarget(ctx context.Context, target config.Target, ip string, domainIDs map[string]int) Action {
	domainID, cached := domainIDs[target.Domain]
	if !cached {
		var err error
		domainID, err = r.provider.FindDomainID(ctx, target.Domain)
		if err != nil {
			metrics.RecordFailuresTotal.WithLabelValues("lookup").Inc()
			r.logger.Error("domain lookup failed",
				slog.String("target", target.String()),
				slog.String("error", err.Error()),
			)
			return Action{
				Type:   ActionLookup,
				Status: StatusFailed,
				Target: target.String(),
				IP:     ip,
				Error:  err.Error(),
			}
		}
		domainIDs[target.Domain] = domainID
	}

	recordID, err := r.provider.FindRecordID(ctx, domainID, target.Hostname)
	switch {
	case linode.IsNotFound(err):
		return r.createRecord(ctx, target, domainID, ip)
	case err != nil:
		metrics.RecordFailuresTotal.WithLabelValues("lookup").Inc()
		r.logger.Error("record lookup failed",
			slog.String("target", target.String()),
			slog.String("error", err.Error()),
		)
		return Action{
			Type:   ActionLookup,
			Status: StatusFailed,
			Target: target.String(),
			IP:     ip,
			Error:  err.Error(),
		}
	}

	return r.updateRecord(ctx, target, domainID, recordID, ip)
}

func (r *Reconciler) createRecord(ctx context.Context, target config.Target, domainID int, ip string) Action {
	action := Action{
		Type:   ActionCreate,
		Target: target.String(),
		IP:     ip,
	}

	if r.config.DryRun {
		action.Status = StatusSuccess
		r.logger.Info("would create record (dry-run)",
			slog.String("target", target.String()),
			slog.String("ip", ip),
		)
		return action
	}

	if err := r.provider.CreateRecord(ctx, domainID, target.Hostname, ip); err != nil {
		action.Status = StatusFailed
		action.Error = err.Error()
		metrics.RecordFailuresTotal.WithLabelValues("create").Inc()
		r.logger.Error("failed to create record",
			slog.String("target", target.String()),
			slog.String("error", err.Error()),
		)
		return action
	}

	action.Status = StatusSuccess
	metrics.RecordWritesTotal.WithLabelValues("create").Inc()
	r.logger.Info("created record",
		slog.String("target", target.String()),
		slog.String("ip", ip),
	)
	return action
}

func (r *Reconciler) updateRecord(ctx context.Context, target config.Target, domainID, recordID int, ip string) Action {
	action := Action{
		Type:   ActionUpdate,
		Target: target.String(),
		IP:     ip,
	}

	if r.config.DryRun {
		action.Status = StatusSuccess
		r.logger.Info("would update record (dry-run)",
			slog.String("target", target.String()),
			slog.String("ip", ip),
		)
		return action
	}

	if err := r.provider.UpdateRecord(ctx, domainID, recordID, ip); err != nil {
		action.Status = StatusFailed
		action.Error = err.Error()
		metrics.RecordFailuresTotal.WithLabelValues("update").Inc()
		r.logger.Error("failed to update record",
			slog.String("target", target.String()),
			slog.String("error", err.Error()),
		)
		return action
	}

	action.Status = StatusSuccess
	metrics.RecordWritesTotal.WithLabelValues("update").Inc()
	r.logger.Info("updated record",
		slog.String("target", target.String()),
		slog.String("ip", ip),
	)
	return action
}

// recordMetrics records Prometheus metrics for a completed pass.
func (r *Reconciler) recordMetrics(result *Result) {
	metrics.PassesTotal.WithLabelValues(string(result.Outcome())).Inc()
	metrics.PassDuration.Observe(result.Duration().Seconds())

	if result.Changed && !result.HasErrors() && !result.DryRun {
		metrics.LastChangeTimestamp.Set(float64(result.EndTime.Unix()))
	}
}
