// Package state persists the last-known public IP as a single-line file.
package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes the last-applied IP. The value is a single IPv4
// line rewritten whole on every save; no locking is needed because only one
// reconciliation pass runs at a time.
type Store struct {
	path   string
	logger *slog.Logger
}

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store backed by the file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored IP and true, or ("", false) when no value exists.
// A missing file means "unknown", not an error; anything else (permission
// problems, unreadable media) is returned as an error.
func (s *Store) Load() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading state file: %w", err)
	}

	ip := strings.TrimSpace(string(data))
	if ip == "" {
		return "", false, nil
	}

	return ip, true, nil
}

// Save overwrites the stored IP. The parent directory is created if needed.
func (s *Store) Save(ip string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, []byte(ip+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	s.logger.Debug("persisted last-known IP",
		slog.String("ip", ip),
		slog.String("path", s.path),
	)

	return nil
}
