// Package metrics provides Prometheus metrics for dnsanchor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the prefix for all dnsanchor metric names.
const Namespace = "dnsanchor"

var (
	// BuildInfo exposes version information as a constant gauge.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information (value is always 1).",
	}, []string{"version", "go_version"})

	// PassesTotal counts reconciliation passes by outcome.
	PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "passes_total",
		Help:      "Reconciliation passes by outcome (success, partial_failure, error, noop).",
	}, []string{"status"})

	// PassDuration observes how long each reconciliation pass takes.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "pass_duration_seconds",
		Help:      "Duration of reconciliation passes in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// IPLookupsTotal counts public IP source lookups by source and outcome.
	IPLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ip_lookups_total",
		Help:      "Public IP echo lookups by source and outcome (success, invalid, error).",
	}, []string{"source", "status"})

	// IPChangesTotal counts detected public IP changes.
	IPChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ip_changes_total",
		Help:      "Detected public IP address changes.",
	})

	// RecordWritesTotal counts successful record writes by action.
	RecordWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "record_writes_total",
		Help:      "Successful DNS record writes by action (create, update).",
	}, []string{"action"})

	// RecordFailuresTotal counts failed record writes by action.
	RecordFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "record_failures_total",
		Help:      "Failed DNS record writes by action (lookup, create, update).",
	}, []string{"action"})

	// ProviderAPIRequestsTotal counts provider API calls by operation and outcome.
	ProviderAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "provider_api_requests_total",
		Help:      "Provider API requests by operation and outcome (success, error).",
	}, []string{"operation", "status"})

	// LastChangeTimestamp records when the managed IP last changed.
	LastChangeTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "last_change_timestamp_seconds",
		Help:      "Unix timestamp of the last applied IP change.",
	})
)

// SetBuildInfo sets the build info metric. Call once at startup.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
