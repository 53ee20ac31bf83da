// Package detector discovers the operator's current public IPv4 address by
// querying an ordered list of external echo services.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/dnsanchor/internal/metrics"
	"gitlab.bluewillows.net/root/dnsanchor/pkg/httputil"
)

// ErrNoIPDetected indicates every configured source failed or returned
// unparseable data.
var ErrNoIPDetected = errors.New("no public IP detected")

// SourceTimeout bounds each individual source lookup.
const SourceTimeout = 10 * time.Second

// ipv4Pattern is a strict dotted-quad check: four dot-separated groups of
// 1-3 digits. No range validation beyond syntax.
var ipv4Pattern = regexp.MustCompile(`^[0-9]{1,3}(\.[0-9]{1,3}){3}$`)

// IsIPv4 reports whether s is a syntactically valid dotted-quad IPv4 string.
func IsIPv4(s string) bool {
	return ipv4Pattern.MatchString(s)
}

// Source is a single external IP echo service.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Lookup returns the raw address string reported by the service.
	Lookup(ctx context.Context) (string, error)
}

// Detector queries sources in order and returns the first valid answer.
type Detector struct {
	sources []Source
	logger  *slog.Logger
}

// Option is a functional option for configuring the Detector.
type Option func(*Detector)

// WithLogger sets a custom logger for the detector.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Detector over the given ordered sources.
func New(sources []Source, opts ...Option) *Detector {
	d := &Detector{
		sources: sources,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Detect tries each source in order and returns the first syntactically
// valid IPv4 address. Sources after the first success are not contacted.
// There is no retry within a call; the scheduler's interval provides the
// retry cadence. Returns ErrNoIPDetected when every source fails.
func (d *Detector) Detect(ctx context.Context) (string, error) {
	var errs []error

	for _, src := range d.sources {
		raw, err := src.Lookup(ctx)
		if err != nil {
			metrics.IPLookupsTotal.WithLabelValues(src.Name(), "error").Inc()
			d.logger.Warn("IP source failed",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		ip := strings.TrimSpace(raw)
		if !IsIPv4(ip) {
			metrics.IPLookupsTotal.WithLabelValues(src.Name(), "invalid").Inc()
			d.logger.Warn("IP source returned unparseable data",
				slog.String("source", src.Name()),
				slog.String("data", ip),
			)
			errs = append(errs, fmt.Errorf("%s: unparseable address %q", src.Name(), ip))
			continue
		}

		metrics.IPLookupsTotal.WithLabelValues(src.Name(), "success").Inc()
		d.logger.Debug("detected public IP",
			slog.String("source", src.Name()),
			slog.String("ip", ip),
		)
		return ip, nil
	}

	return "", fmt.Errorf("%w: %w", ErrNoIPDetected, errors.Join(errs...))
}

// HTTPSource queries a plain-text HTTP echo endpoint that returns a bare
// IPv4 address in the response body.
type HTTPSource struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSource creates an echo source for url. The client is bound to IPv4
// so the service reports an IPv4 address, with a short per-request timeout.
func NewHTTPSource(url string, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		url: url,
		httpClient: httputil.NewClient(&httputil.ClientConfig{
			Timeout:   SourceTimeout,
			ForceIPv4: true,
			Logger:    logger,
		}),
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string {
	return s.url
}

// Lookup implements Source.
func (s *HTTPSource) Lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// Echo responses are a single short line.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	return string(body), nil
}

// HTTPSources builds an ordered source list from echo service URLs.
func HTTPSources(urls []string, logger *slog.Logger) []Source {
	sources := make([]Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, NewHTTPSource(u, logger))
	}
	return sources
}
