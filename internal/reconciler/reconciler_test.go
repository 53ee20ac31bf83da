package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitlab.bluewillows.net/root/dnsanchor/internal/state"
	"gitlab.bluewillows.net/root/dnsanchor/pkg/linode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTargets writes a CSV targets file and returns its path.
func writeTargets(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.conf")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeRecord struct {
	id     int
	target string
}

// fakeProvider is an in-memory provider. All fakes share a call log so tests
// can assert cross-component ordering.
type fakeProvider struct {
	domains   map[string]int        // domain name -> id
	records   map[string]fakeRecord // "domainID/hostname" -> record
	domainErr map[string]error      // domain name -> forced lookup error
	recordErr error                 // forced record lookup error
	createErr error
	updateErr error
	log       *[]string
}

func newFakeProvider(log *[]string) *fakeProvider {
	return &fakeProvider{
		domains:   make(map[string]int),
		records:   make(map[string]fakeRecord),
		domainErr: make(map[string]error),
		log:       log,
	}
}

func (p *fakeProvider) record(op string, args ...any) {
	*p.log = append(*p.log, fmt.Sprintf(op, args...))
}

func (p *fakeProvider) key(domainID int, hostname string) string {
	return fmt.Sprintf("%d/%s", domainID, hostname)
}

func (p *fakeProvider) FindDomainID(_ context.Context, domain string) (int, error) {
	p.record("find_domain %s", domain)
	if err := p.domainErr[domain]; err != nil {
		return 0, err
	}
	id, ok := p.domains[domain]
	if !ok {
		return 0, fmt.Errorf("domain %q: %w", domain, linode.ErrNotFound)
	}
	return id, nil
}

func (p *fakeProvider) FindRecordID(_ context.Context, domainID int, hostname string) (int, error) {
	p.record("find_record %d/%s", domainID, hostname)
	if p.recordErr != nil {
		return 0, p.recordErr
	}
	rec, ok := p.records[p.key(domainID, hostname)]
	if !ok {
		return 0, fmt.Errorf("A record %q: %w", hostname, linode.ErrNotFound)
	}
	return rec.id, nil
}

func (p *fakeProvider) FindRecordTarget(_ context.Context, domainID int, hostname string) (string, error) {
	p.record("find_target %d/%s", domainID, hostname)
	rec, ok := p.records[p.key(domainID, hostname)]
	if !ok {
		return "", fmt.Errorf("A record %q: %w", hostname, linode.ErrNotFound)
	}
	return rec.target, nil
}

func (p *fakeProvider) CreateRecord(_ context.Context, domainID int, hostname, ip string) error {
	p.record("create %d/%s=%s", domainID, hostname, ip)
	if p.createErr != nil {
		return p.createErr
	}
	p.records[p.key(domainID, hostname)] = fakeRecord{id: 1000 + len(p.records), target: ip}
	return nil
}

func (p *fakeProvider) UpdateRecord(_ context.Context, domainID, recordID int, ip string) error {
	p.record("update %d/%d=%s", domainID, recordID, ip)
	if p.updateErr != nil {
		return p.updateErr
	}
	for k, rec := range p.records {
		if rec.id == recordID {
			rec.target = ip
			p.records[k] = rec
		}
	}
	return nil
}

type fakeDetector struct {
	ip  string
	err error
}

func (d *fakeDetector) Detect(_ context.Context) (string, error) {
	return d.ip, d.err
}

// fakeState is an in-memory StateStore sharing the provider's call log.
type fakeState struct {
	ip  string
	ok  bool
	log *[]string
}

func (s *fakeState) Load() (string, bool, error) {
	return s.ip, s.ok, nil
}

func (s *fakeState) Save(ip string) error {
	*s.log = append(*s.log, "save "+ip)
	s.ip = ip
	s.ok = true
	return nil
}

func newReconciler(p Provider, d IPDetector, s StateStore, targetsPath string, dryRun bool) *Reconciler {
	return New(p, d, s,
		WithLogger(testLogger()),
		WithConfig(Config{TargetsPath: targetsPath, DryRun: dryRun}),
	)
}

func countCalls(log []string, prefix string) int {
	n := 0
	for _, entry := range log {
		if strings.HasPrefix(entry, prefix) {
			n++
		}
	}
	return n
}

func TestRunPass_MissingTargetsFile(t *testing.T) {
	var log []string
	rec := newReconciler(newFakeProvider(&log), &fakeDetector{ip: "203.0.113.5"},
		&fakeState{log: &log}, filepath.Join(t.TempDir(), "nope.conf"), false)

	if _, err := rec.RunPass(context.Background()); err == nil {
		t.Fatal("expected pass-fatal error for missing targets file")
	}
}

func TestRunPass_EmptyTargetsFile(t *testing.T) {
	var log []string
	targets := writeTargets(t, "# nothing configured")
	rec := newReconciler(newFakeProvider(&log), &fakeDetector{ip: "203.0.113.5"},
		&fakeState{log: &log}, targets, false)

	_, err := rec.RunPass(context.Background())
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestRunPass_DetectionFailureIsFatal(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	rec := newReconciler(provider, &fakeDetector{err: errors.New("all sources down")},
		&fakeState{log: &log}, targets, false)

	if _, err := rec.RunPass(context.Background()); err == nil {
		t.Fatal("expected pass-fatal error when detection fails")
	}
	if len(log) != 0 {
		t.Errorf("no provider or state calls expected, got %v", log)
	}
}

func TestRunPass_UnchangedIsNoop(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"},
		&fakeState{ip: "203.0.113.5", ok: true, log: &log}, targets, false)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if result.Changed {
		t.Error("expected no change")
	}
	if result.Outcome() != OutcomeNoop {
		t.Errorf("expected noop outcome, got %s", result.Outcome())
	}
	if len(log) != 0 {
		t.Errorf("no provider or state calls expected on a noop pass, got %v", log)
	}
}

func TestRunPass_BaselineAdoptedWhenEqual(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/www"] = fakeRecord{id: 10, target: "203.0.113.5"}

	st := &fakeState{log: &log}
	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"}, st, targets, false)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if !result.BaselineAdopted {
		t.Error("expected baseline adoption from provider")
	}
	if result.Changed {
		t.Error("baseline equals current IP, expected no change")
	}
	if countCalls(log, "update") != 0 || countCalls(log, "create") != 0 {
		t.Errorf("no record writes expected, got %v", log)
	}
	// The adopted baseline is persisted so future passes skip provider lookup.
	if st.ip != "203.0.113.5" {
		t.Errorf("expected baseline persisted, state holds %q", st.ip)
	}
}

func TestRunPass_FirstRunWithChange(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,", "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/"] = fakeRecord{id: 10, target: "203.0.113.1"}
	// www has no A record yet; it must be created.

	st := &fakeState{log: &log}
	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"}, st, targets, false)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected change against adopted baseline 203.0.113.1")
	}
	if result.Outcome() != OutcomeSuccess {
		t.Errorf("expected success outcome, got %s (actions: %v)", result.Outcome(), result.Actions)
	}

	if got := provider.records["123/"].target; got != "203.0.113.5" {
		t.Errorf("apex record = %q, want 203.0.113.5", got)
	}
	if got := provider.records["123/www"].target; got != "203.0.113.5" {
		t.Errorf("www record = %q, want 203.0.113.5 (created)", got)
	}
	if st.ip != "203.0.113.5" {
		t.Errorf("state = %q, want 203.0.113.5", st.ip)
	}
}

func TestRunPass_StateSavedBeforeRecordWrites(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/www"] = fakeRecord{id: 10, target: "203.0.113.1"}

	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"},
		&fakeState{ip: "203.0.113.1", ok: true, log: &log}, targets, false)

	if _, err := rec.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	saveIdx, updateIdx := -1, -1
	for i, entry := range log {
		switch {
		case strings.HasPrefix(entry, "save") && saveIdx < 0:
			saveIdx = i
		case strings.HasPrefix(entry, "update") && updateIdx < 0:
			updateIdx = i
		}
	}
	if saveIdx < 0 || updateIdx < 0 {
		t.Fatalf("expected both a save and an update, got %v", log)
	}
	if saveIdx > updateIdx {
		t.Errorf("state must be saved before record writes, got %v", log)
	}
}

func TestRunPass_PartialFailure(t *testing.T) {
	var log []string
	targets := writeTargets(t, "broken.example,www", "example.com,www")
	provider := newFakeProvider(&log)
	provider.domainErr["broken.example"] = errors.New("boom")
	provider.domains["example.com"] = 123
	provider.records["123/www"] = fakeRecord{id: 10, target: "203.0.113.1"}

	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"},
		&fakeState{ip: "203.0.113.1", ok: true, log: &log}, targets, false)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("per-target failures must not abort the pass: %v", err)
	}
	if result.Outcome() != OutcomePartialFailure {
		t.Errorf("expected partial failure, got %s", result.Outcome())
	}
	if result.FailedCount() != 1 {
		t.Errorf("expected 1 failed action, got %d", result.FailedCount())
	}
	// The healthy target is still brought up to date.
	if got := provider.records["123/www"].target; got != "203.0.113.5" {
		t.Errorf("healthy target not updated, record = %q", got)
	}
}

func TestRunPass_DomainIDResolvedOncePerPass(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,", "example.com,www", "example.com,vpn")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/"] = fakeRecord{id: 1, target: "203.0.113.1"}
	provider.records["123/www"] = fakeRecord{id: 2, target: "203.0.113.1"}
	provider.records["123/vpn"] = fakeRecord{id: 3, target: "203.0.113.1"}

	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"},
		&fakeState{ip: "203.0.113.1", ok: true, log: &log}, targets, false)

	if _, err := rec.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if n := countCalls(log, "find_domain"); n != 1 {
		t.Errorf("expected 1 domain lookup for 3 targets in one zone, got %d", n)
	}
	if n := countCalls(log, "update"); n != 3 {
		t.Errorf("expected 3 updates, got %d", n)
	}
}

func TestRunPass_DryRun(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/www"] = fakeRecord{id: 10, target: "203.0.113.1"}

	st := &fakeState{ip: "203.0.113.1", ok: true, log: &log}
	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"}, st, targets, true)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if !result.Changed {
		t.Error("dry-run still detects the change")
	}
	if countCalls(log, "update") != 0 || countCalls(log, "create") != 0 {
		t.Errorf("dry-run must not write records, got %v", log)
	}
	if countCalls(log, "save") != 0 {
		t.Errorf("dry-run must not persist state, got %v", log)
	}
	if st.ip != "203.0.113.1" {
		t.Errorf("state mutated in dry-run: %q", st.ip)
	}
}

func TestRunPass_MalformedStateTreatedAsAbsent(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/www"] = fakeRecord{id: 10, target: "203.0.113.5"}

	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"},
		&fakeState{ip: "not-an-ip", ok: true, log: &log}, targets, false)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if !result.BaselineAdopted {
		t.Error("malformed state should fall through to baseline discovery")
	}
	if result.Changed {
		t.Error("baseline equals current IP, expected no change")
	}
}

func TestRunPass_SecondPassIsNoop(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/www"] = fakeRecord{id: 10, target: "203.0.113.1"}

	st := &fakeState{log: &log}
	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"}, st, targets, false)

	if _, err := rec.RunPass(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	log = log[:0]
	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if result.Changed {
		t.Error("second pass with same IP should not change anything")
	}
	if len(log) != 0 {
		t.Errorf("second pass should make no provider or state calls, got %v", log)
	}
}

// End-to-end against the real state store: apex updated, www created, and the
// new address lands in the state file.
func TestRunPass_EndToEndWithFileState(t *testing.T) {
	var log []string
	targets := writeTargets(t, "example.com,", "example.com,www")
	provider := newFakeProvider(&log)
	provider.domains["example.com"] = 123
	provider.records["123/"] = fakeRecord{id: 10, target: "203.0.113.1"}

	statePath := filepath.Join(t.TempDir(), "last_ip")
	store := state.New(statePath, state.WithLogger(testLogger()))

	rec := newReconciler(provider, &fakeDetector{ip: "203.0.113.5"}, store, targets, false)

	result, err := rec.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if result.Outcome() != OutcomeSuccess {
		t.Fatalf("expected success, got %s", result.Outcome())
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("reading state file: %v", err)
	}
	if strings.TrimSpace(string(data)) != "203.0.113.5" {
		t.Errorf("state file = %q, want 203.0.113.5", string(data))
	}
	if provider.records["123/"].target != "203.0.113.5" {
		t.Error("apex record not updated")
	}
	if provider.records["123/www"].target != "203.0.113.5" {
		t.Error("www record not created")
	}
}
