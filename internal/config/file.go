package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the YAML configuration file structure.
// This mirrors the runtime Config but uses YAML-friendly types.
type FileConfig struct {
	Logging  *FileLoggingConfig  `yaml:"logging,omitempty"`
	Provider *FileProviderConfig `yaml:"provider,omitempty"`
	Updater  *FileUpdaterConfig  `yaml:"updater,omitempty"`
	Detector *FileDetectorConfig `yaml:"detector,omitempty"`
	Server   *FileServerConfig   `yaml:"server,omitempty"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // json, text
}

// FileProviderConfig holds DNS provider API settings.
type FileProviderConfig struct {
	APIURL string `yaml:"api_url,omitempty"`
}

// FileUpdaterConfig holds reconciliation settings.
type FileUpdaterConfig struct {
	Targets   string `yaml:"targets,omitempty"`    // targets file path
	StateFile string `yaml:"state_file,omitempty"` // last-known-IP file path
	Interval  int    `yaml:"interval,omitempty"`   // seconds between passes
	Once      *bool  `yaml:"once,omitempty"`       // pointer to distinguish unset from false
	DryRun    *bool  `yaml:"dry_run,omitempty"`
}

// FileDetectorConfig holds public IP detection settings.
type FileDetectorConfig struct {
	EchoSources []string `yaml:"echo_sources,omitempty"`
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	Port int `yaml:"port,omitempty"`
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}

	return &cfg, nil
}

// apply overlays the file values onto cfg, returning validation errors.
func (c *FileConfig) apply(cfg *Config) []string {
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if c.Provider != nil && c.Provider.APIURL != "" {
		cfg.APIBaseURL = strings.TrimRight(c.Provider.APIURL, "/")
	}

	if c.Updater != nil {
		if c.Updater.Targets != "" {
			cfg.TargetsPath = c.Updater.Targets
		}
		if c.Updater.StateFile != "" {
			cfg.StatePath = c.Updater.StateFile
		}
		if c.Updater.Interval != 0 {
			if c.Updater.Interval < 0 {
				errs = append(errs, fmt.Sprintf("updater.interval: invalid value %d (must be positive)", c.Updater.Interval))
			} else {
				cfg.Interval = time.Duration(c.Updater.Interval) * time.Second
			}
		}
		if c.Updater.Once != nil {
			cfg.Once = *c.Updater.Once
		}
		if c.Updater.DryRun != nil {
			cfg.DryRun = *c.Updater.DryRun
		}
	}

	if c.Detector != nil && len(c.Detector.EchoSources) > 0 {
		cfg.EchoSources = append([]string(nil), c.Detector.EchoSources...)
	}

	if c.Server != nil {
		if c.Server.Port < 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port: invalid port %d", c.Server.Port))
		} else if c.Server.Port > 0 {
			cfg.HealthPort = c.Server.Port
		}
	}

	return errs
}
