package authz

import (
	"errors"
	"testing"

	"taskdeck/internal/domain"
)

var allStates = []domain.TaskState{
	domain.TaskNotStarted,
	domain.TaskInProgress,
	domain.TaskCompleted,
	domain.TaskCancelled,
}

func TestTransitionTable(t *testing.T) {
	type move struct {
		from, to    domain.TaskState
		hasAssignee bool
	}
	legal := []move{
		{domain.TaskNotStarted, domain.TaskInProgress, true},
		{domain.TaskInProgress, domain.TaskCompleted, false},
		{domain.TaskInProgress, domain.TaskCancelled, false},
		{domain.TaskInProgress, domain.TaskNotStarted, false},
		{domain.TaskCancelled, domain.TaskNotStarted, false},
	}
	for _, m := range legal {
		got, err := Transition(m.from, m.to, m.hasAssignee)
		if err != nil {
			t.Fatalf("transition %s -> %s: %v", m.from, m.to, err)
		}
		if got != m.to {
			t.Fatalf("transition %s -> %s returned %s", m.from, m.to, got)
		}
	}

	legalSet := map[[2]domain.TaskState]bool{}
	for _, m := range legal {
		legalSet[[2]domain.TaskState{m.from, m.to}] = true
	}
	// every pair outside the table is rejected, assignee or not
	for _, from := range allStates {
		for _, to := range allStates {
			if legalSet[[2]domain.TaskState{from, to}] {
				continue
			}
			for _, hasAssignee := range []bool{false, true} {
				got, err := Transition(from, to, hasAssignee)
				var ite IllegalTransitionError
				if !errors.As(err, &ite) {
					t.Fatalf("transition %s -> %s (assignee=%v): expected IllegalTransitionError, got %v", from, to, hasAssignee, err)
				}
				if got != from {
					t.Fatalf("rejected transition %s -> %s changed state to %s", from, to, got)
				}
			}
		}
	}
}

func TestStartRequiresAssignee(t *testing.T) {
	_, err := Transition(domain.TaskNotStarted, domain.TaskInProgress, false)
	var ite IllegalTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected IllegalTransitionError without assignee, got %v", err)
	}
	got, err := Transition(domain.TaskNotStarted, domain.TaskInProgress, true)
	if err != nil || got != domain.TaskInProgress {
		t.Fatalf("start with assignee: got %s, %v", got, err)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	for _, to := range allStates {
		if to == domain.TaskCompleted {
			continue
		}
		if _, err := Transition(domain.TaskCompleted, to, true); err == nil {
			t.Fatalf("expected completed -> %s to be rejected", to)
		}
	}
}

func TestCancelledIsRevertible(t *testing.T) {
	got, err := Transition(domain.TaskCancelled, domain.TaskNotStarted, false)
	if err != nil || got != domain.TaskNotStarted {
		t.Fatalf("revert cancelled: got %s, %v", got, err)
	}
	// but only to not_started
	if _, err := Transition(domain.TaskCancelled, domain.TaskInProgress, true); err == nil {
		t.Fatalf("expected cancelled -> in_progress to be rejected")
	}
}
