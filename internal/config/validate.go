package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validate performs cross-field validation on the complete configuration.
// Returns a list of validation errors.
func validate(cfg *Config) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("DNSANCHOR_LOG_LEVEL: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("DNSANCHOR_LOG_FORMAT: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.Token == "" {
		errs = append(errs, "DNSANCHOR_TOKEN: required but not set (or set DNSANCHOR_TOKEN_FILE)")
	}

	if cfg.APIBaseURL == "" {
		errs = append(errs, "DNSANCHOR_API_URL: must not be empty")
	}

	if cfg.TargetsPath == "" {
		errs = append(errs, "DNSANCHOR_TARGETS: must not be empty")
	}

	if cfg.StatePath == "" {
		errs = append(errs, "DNSANCHOR_STATE_FILE: must not be empty")
	}

	if len(cfg.EchoSources) == 0 {
		errs = append(errs, "DNSANCHOR_ECHO_SOURCES: at least one IP echo source is required")
	}

	return errs
}
