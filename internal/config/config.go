// Package config handles loading and validation of dnsanchor configuration
// from command-line flags, environment variables, and an optional YAML file.
// Flags take precedence over environment variables, which take precedence
// over the file.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Configuration defaults.
const (
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultAPIBaseURL = "https://api.linode.com/v4"
	DefaultTargets    = "/etc/dnsanchor/targets.conf"
	DefaultStateFile  = "/var/lib/dnsanchor/last_ip"
	DefaultInterval   = 300 * time.Second
	DefaultHealthPort = 0 // disabled
)

// DefaultEchoSources are the public IP echo services queried in order.
// Diverse operators so a single outage never blocks detection.
var DefaultEchoSources = []string{
	"https://ipv4.icanhazip.com",
	"https://api.ipify.org",
	"https://checkip.amazonaws.com",
}

// Config holds the complete runtime configuration.
type Config struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Provider credentials and endpoint
	Token      string
	APIBaseURL string

	// Paths
	TargetsPath string // targets file, re-read every pass
	StatePath   string // last-known-IP file

	// Scheduling
	Interval time.Duration // between passes in continuous mode
	Once     bool          // run a single pass and exit

	// Behavior
	DryRun bool

	// IP detection
	EchoSources []string

	// Health/metrics server port. Zero disables the server.
	HealthPort int
}

// Load builds the configuration from args (flags), the DNSANCHOR_*
// environment, and the optional YAML config file. It returns a
// *ValidationError aggregating every problem found.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dnsanchor", flag.ContinueOnError)
	flagConfig := fs.String("config", "", "path to YAML config file")
	flagTargets := fs.String("targets", "", "path to targets file")
	flagState := fs.String("state", "", "path to last-known-IP state file")
	flagInterval := fs.String("interval", "", "seconds between passes")
	flagOnce := fs.Bool("once", false, "run a single pass and exit")
	flagDryRun := fs.Bool("dry-run", false, "log intended changes without applying them")

	if err := fs.Parse(args); err != nil {
		return nil, &ValidationError{Errors: []string{err.Error()}}
	}

	cfg := &Config{
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		APIBaseURL:  DefaultAPIBaseURL,
		TargetsPath: DefaultTargets,
		StatePath:   DefaultStateFile,
		Interval:    DefaultInterval,
		HealthPort:  DefaultHealthPort,
		EchoSources: append([]string(nil), DefaultEchoSources...),
	}

	var errs []string

	// Layer 1: optional YAML file.
	filePath := *flagConfig
	if filePath == "" {
		filePath = getEnv("DNSANCHOR_CONFIG")
	}
	if filePath != "" {
		fileCfg, err := LoadFile(filePath)
		if err != nil {
			errs = append(errs, "config file: "+err.Error())
		} else {
			errs = append(errs, fileCfg.apply(cfg)...)
		}
	}

	// Layer 2: environment variables.
	errs = append(errs, applyEnv(cfg)...)

	// Layer 3: flags win.
	if *flagTargets != "" {
		cfg.TargetsPath = *flagTargets
	}
	if *flagState != "" {
		cfg.StatePath = *flagState
	}
	if *flagInterval != "" {
		if d, err := parseIntervalSeconds(*flagInterval); err != nil {
			errs = append(errs, "-interval: "+err.Error())
		} else {
			cfg.Interval = d
		}
	}
	if *flagOnce {
		cfg.Once = true
	}
	if *flagDryRun {
		cfg.DryRun = true
	}

	// Bearer token comes only from the environment (or a secrets file),
	// never from flags, so it does not leak into process listings.
	cfg.Token = getEnvOrFile("DNSANCHOR_TOKEN", "DNSANCHOR_TOKEN_FILE")

	errs = append(errs, validate(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// applyEnv overlays DNSANCHOR_* environment variables onto cfg.
func applyEnv(cfg *Config) []string {
	var errs []string

	if v := getEnv("DNSANCHOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("DNSANCHOR_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := getEnv("DNSANCHOR_API_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v := getEnv("DNSANCHOR_TARGETS"); v != "" {
		cfg.TargetsPath = v
	}
	if v := getEnv("DNSANCHOR_STATE_FILE"); v != "" {
		cfg.StatePath = v
	}
	if v := getEnv("DNSANCHOR_INTERVAL"); v != "" {
		if d, err := parseIntervalSeconds(v); err != nil {
			errs = append(errs, "DNSANCHOR_INTERVAL: "+err.Error())
		} else {
			cfg.Interval = d
		}
	}
	if v := getEnv("DNSANCHOR_ONCE"); v != "" {
		cfg.Once = parseBool(v, cfg.Once)
	}
	if v := getEnv("DNSANCHOR_DRY_RUN"); v != "" {
		cfg.DryRun = parseBool(v, cfg.DryRun)
	}
	if v := getEnv("DNSANCHOR_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err != nil || port < 0 || port > 65535 {
			errs = append(errs, "DNSANCHOR_HEALTH_PORT: invalid port number")
		} else {
			cfg.HealthPort = port
		}
	}
	if v := getEnv("DNSANCHOR_ECHO_SOURCES"); v != "" {
		cfg.EchoSources = splitList(v)
	}

	return errs
}

// parseIntervalSeconds parses the interval configuration surface: a positive
// integer number of seconds.
func parseIntervalSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (must be a positive integer of seconds)", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid interval %d (must be positive)", n)
	}
	return time.Duration(n) * time.Second, nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
