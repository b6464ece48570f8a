package authz

import "taskdeck/internal/domain"

// Transition validates a requested task state change and returns the new
// state. It is a pure function: persistence, authorization and lifecycle
// gating happen elsewhere, before it is invoked.
//
// Legal moves:
//
//	not_started -> in_progress   requires an assignee
//	in_progress -> completed
//	in_progress -> cancelled
//	in_progress -> not_started   explicit revert
//	cancelled   -> not_started   explicit revert
//
// Completed is terminal: finished work keeps its audit trail. Cancelled
// is revertible because cancellation is usually a pause, not an outcome.
func Transition(current, requested domain.TaskState, hasAssignee bool) (domain.TaskState, error) {
	switch current {
	case domain.TaskNotStarted:
		if requested == domain.TaskInProgress {
			if !hasAssignee {
				return current, IllegalTransitionError{
					From:   current,
					To:     requested,
					Reason: "task must be assigned before it is started",
				}
			}
			return domain.TaskInProgress, nil
		}
	case domain.TaskInProgress:
		switch requested {
		case domain.TaskCompleted:
			return domain.TaskCompleted, nil
		case domain.TaskCancelled:
			return domain.TaskCancelled, nil
		case domain.TaskNotStarted:
			return domain.TaskNotStarted, nil
		}
	case domain.TaskCancelled:
		if requested == domain.TaskNotStarted {
			return domain.TaskNotStarted, nil
		}
	}
	return current, IllegalTransitionError{From: current, To: requested}
}
