package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Target identifies one DNS A record to manage: a domain plus an optional
// subdomain label. Apex is set when the hostname is empty, meaning the record
// for the bare domain itself.
type Target struct {
	Domain   string `yaml:"domain" toml:"domain"`
	Hostname string `yaml:"hostname" toml:"hostname"`
	Apex     bool   `yaml:"-" toml:"-"`
}

// String renders the target as "hostname.domain", or just the domain for
// apex targets.
func (t Target) String() string {
	if t.Apex {
		return t.Domain
	}
	return t.Hostname + "." + t.Domain
}

// targetsFile is the YAML/TOML targets file structure.
type targetsFile struct {
	Targets []Target `yaml:"targets" toml:"targets"`
}

// LoadTargets reads the ordered target list from path. The format is chosen
// by extension: .yaml/.yml and .toml are structured lists; anything else is
// the legacy line format "DOMAIN,HOSTNAME" with an empty hostname denoting
// the apex record and '#' starting a comment.
//
// Order is preserved. Duplicates are not collapsed; they cause redundant but
// idempotent provider calls.
func LoadTargets(path string) ([]Target, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadTargetsYAML(path)
	case ".toml":
		return loadTargetsTOML(path)
	default:
		return loadTargetsCSV(path)
	}
}

func loadTargetsYAML(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading targets file: %w", err)
	}

	var tf targetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing YAML targets: %w", err)
	}

	return finishTargets(path, tf.Targets)
}

func loadTargetsTOML(path string) ([]Target, error) {
	var tf targetsFile
	if _, err := toml.DecodeFile(path, &tf); err != nil {
		return nil, fmt.Errorf("parsing TOML targets: %w", err)
	}

	return finishTargets(path, tf.Targets)
}

func loadTargetsCSV(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading targets file: %w", err)
	}
	defer f.Close()

	var targets []Target
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		domain, hostname, _ := strings.Cut(line, ",")
		targets = append(targets, Target{
			Domain:   strings.TrimSpace(domain),
			Hostname: strings.TrimSpace(hostname),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading targets file: %w", err)
	}

	return finishTargets(path, targets)
}

// finishTargets sets the apex flag and validates each entry.
func finishTargets(path string, targets []Target) ([]Target, error) {
	for i := range targets {
		targets[i].Apex = targets[i].Hostname == ""

		if targets[i].Domain == "" {
			return nil, fmt.Errorf("%s: target %d: domain must not be empty", path, i+1)
		}
		if !strings.Contains(targets[i].Domain, ".") {
			return nil, fmt.Errorf("%s: target %d: domain %q must have at least one dot", path, i+1, targets[i].Domain)
		}
	}
	return targets, nil
}
