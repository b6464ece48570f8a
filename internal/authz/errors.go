package authz

import (
	"errors"
	"fmt"

	"taskdeck/internal/domain"
)

// ErrUnauthenticated is returned when no principal accompanies a call.
var ErrUnauthenticated = errors.New("authentication required")

// ForbiddenError indicates the principal is known but its role is
// insufficient, or the lifecycle gate is closed for the target entity.
type ForbiddenError struct {
	Op     Operation
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("operation %s forbidden", e.Op)
	}
	return fmt.Sprintf("operation %s forbidden: %s", e.Op, e.Reason)
}

// NotFoundError indicates the target entity is absent, or must appear
// absent to a caller who holds no role in the owning project.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IllegalTransitionError is returned by the task state machine for any
// (from, to) pair outside the transition table, or when a precondition
// for an allowed pair does not hold.
type IllegalTransitionError struct {
	From   domain.TaskState
	To     domain.TaskState
	Reason string
}

func (e IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal task transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("illegal task transition %s -> %s", e.From, e.To)
}

// InvalidRelationError indicates a structurally invalid edge, e.g. a
// self-relation or an unknown relation type.
type InvalidRelationError struct {
	Reason string
}

func (e InvalidRelationError) Error() string {
	return "invalid task relation: " + e.Reason
}

// ValidationError indicates structurally invalid input such as an empty
// or oversized title.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
