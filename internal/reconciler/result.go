// Package reconciler implements the core update pass: detect the current
// public IP, compare it with the last-known value, and bring every
// configured DNS record in line when it changes.
package reconciler

import (
	"fmt"
	"strings"
	"time"
)

// ActionType represents the type of per-target action.
type ActionType string

const (
	// ActionCreate indicates an A record will be/was created.
	ActionCreate ActionType = "create"
	// ActionUpdate indicates an existing A record's target will be/was changed.
	ActionUpdate ActionType = "update"
	// ActionLookup indicates a domain or record lookup that failed before any
	// write was attempted.
	ActionLookup ActionType = "lookup"
)

// ActionStatus represents the outcome of an action.
type ActionStatus string

const (
	// StatusSuccess indicates the action completed successfully.
	StatusSuccess ActionStatus = "success"
	// StatusFailed indicates the action failed.
	StatusFailed ActionStatus = "failed"
)

// Outcome is the terminal state of a reconciliation pass.
type Outcome string

const (
	// OutcomeSuccess means every configured target was written without error.
	OutcomeSuccess Outcome = "success"
	// OutcomeNoop means no change was detected and no records were written.
	OutcomeNoop Outcome = "noop"
	// OutcomePartialFailure means at least one target failed; the others were
	// still processed.
	OutcomePartialFailure Outcome = "partial_failure"
)

// Action records what happened to a single configured target.
type Action struct {
	// Type is the action type (create, update, lookup).
	Type ActionType

	// Status is the outcome of the action.
	Status ActionStatus

	// Target is the record being managed, as "hostname.domain" or the bare
	// domain for apex records.
	Target string

	// IP is the address written (or that would have been written).
	IP string

	// Error contains the failure detail when Status is StatusFailed,
	// including HTTP status and response body for provider errors.
	Error string

	// DryRun indicates this action was not actually executed.
	DryRun bool
}

// String returns a human-readable representation of the action.
func (a Action) String() string {
	status := string(a.Status)
	if a.DryRun && a.Status == StatusSuccess {
		status = "dry-run"
	}

	if a.Error != "" {
		return fmt.Sprintf("[%s] %s %s -> %s: %s", status, a.Type, a.Target, a.IP, a.Error)
	}

	return fmt.Sprintf("[%s] %s %s -> %s", status, a.Type, a.Target, a.IP)
}

// Result holds the complete result of one reconciliation pass.
type Result struct {
	// StartTime is when the pass started.
	StartTime time.Time

	// EndTime is when the pass completed.
	EndTime time.Time

	// CurrentIP is the detected public IP for this pass.
	CurrentIP string

	// PreviousIP is the last-known IP the pass compared against; empty when
	// no prior state existed and no baseline could be adopted.
	PreviousIP string

	// BaselineAdopted is true when PreviousIP came from the provider rather
	// than local state.
	BaselineAdopted bool

	// Changed is true when the pass detected an IP change and attempted
	// record writes.
	Changed bool

	// Actions contains the per-target actions taken (or planned in dry-run).
	Actions []Action

	// DryRun indicates this pass did not apply changes.
	DryRun bool
}

// NewResult creates a Result with the start time set to now.
func NewResult(dryRun bool) *Result {
	return &Result{
		StartTime: time.Now(),
		DryRun:    dryRun,
	}
}

// Complete marks the result as complete with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the total pass duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// AddAction appends an action to the result.
func (r *Result) AddAction(action Action) {
	action.DryRun = r.DryRun
	r.Actions = append(r.Actions, action)
}

// Failed returns all failed actions.
func (r *Result) Failed() []Action {
	var failed []Action
	for _, a := range r.Actions {
		if a.Status == StatusFailed {
			failed = append(failed, a)
		}
	}
	return failed
}

// FailedCount returns the number of failed actions.
func (r *Result) FailedCount() int {
	return len(r.Failed())
}

// HasErrors returns true if any action failed.
func (r *Result) HasErrors() bool {
	return r.FailedCount() > 0
}

// Outcome returns the terminal state of the pass.
func (r *Result) Outcome() Outcome {
	if r.HasErrors() {
		return OutcomePartialFailure
	}
	if !r.Changed {
		return OutcomeNoop
	}
	return OutcomeSuccess
}

// Summary returns a human-readable summary of the pass.
func (r *Result) Summary() string {
	var sb strings.Builder

	mode := "applied"
	if r.DryRun {
		mode = "dry-run"
	}

	fmt.Fprintf(&sb, "Pass complete (%s, %s) in %s\n", r.Outcome(), mode, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Current IP: %s\n", r.CurrentIP)
	if r.PreviousIP != "" {
		fmt.Fprintf(&sb, "  Previous IP: %s\n", r.PreviousIP)
	}

	for _, a := range r.Actions {
		fmt.Fprintf(&sb, "  %s\n", a.String())
	}

	return sb.String()
}
