package reconciler

import (
	"strings"
	"testing"
)

func TestResultOutcome(t *testing.T) {
	noop := NewResult(false)
	if noop.Outcome() != OutcomeNoop {
		t.Errorf("unchanged pass outcome = %s, want noop", noop.Outcome())
	}

	success := NewResult(false)
	success.Changed = true
	success.AddAction(Action{Type: ActionUpdate, Status: StatusSuccess, Target: "www.example.com"})
	if success.Outcome() != OutcomeSuccess {
		t.Errorf("outcome = %s, want success", success.Outcome())
	}

	partial := NewResult(false)
	partial.Changed = true
	partial.AddAction(Action{Type: ActionUpdate, Status: StatusSuccess, Target: "www.example.com"})
	partial.AddAction(Action{Type: ActionCreate, Status: StatusFailed, Target: "vpn.example.com", Error: "boom"})
	if partial.Outcome() != OutcomePartialFailure {
		t.Errorf("outcome = %s, want partial_failure", partial.Outcome())
	}
	if partial.FailedCount() != 1 {
		t.Errorf("FailedCount = %d, want 1", partial.FailedCount())
	}
}

func TestActionString(t *testing.T) {
	ok := Action{Type: ActionUpdate, Status: StatusSuccess, Target: "www.example.com", IP: "203.0.113.5"}
	if got := ok.String(); got != "[success] update www.example.com -> 203.0.113.5" {
		t.Errorf("String() = %q", got)
	}

	dry := Action{Type: ActionCreate, Status: StatusSuccess, Target: "www.example.com", IP: "203.0.113.5", DryRun: true}
	if !strings.Contains(dry.String(), "dry-run") {
		t.Errorf("dry-run action should say so: %q", dry.String())
	}

	failed := Action{Type: ActionUpdate, Status: StatusFailed, Target: "www.example.com", IP: "203.0.113.5", Error: "API error: status 500"}
	if !strings.Contains(failed.String(), "API error") {
		t.Errorf("failed action should carry the error: %q", failed.String())
	}
}

func TestResultSummary(t *testing.T) {
	r := NewResult(true)
	r.CurrentIP = "203.0.113.5"
	r.PreviousIP = "203.0.113.1"
	r.Changed = true
	r.AddAction(Action{Type: ActionUpdate, Status: StatusSuccess, Target: "www.example.com", IP: "203.0.113.5"})
	r.Complete()

	summary := r.Summary()
	for _, want := range []string{"dry-run", "203.0.113.5", "203.0.113.1", "www.example.com"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
