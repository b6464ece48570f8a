package authz

import "taskdeck/internal/domain"

// CanAssign validates a task assignment.
//
// The assigner must hold Member or better in the owning project, or be
// the task's creator (the creator override applies to the assigner side
// only). The assignee must hold some membership — any role — in the
// project; that requirement is unconditional, so self-assignment by a
// non-member creator still fails on the assignee side.
func CanAssign(assignerRole, assigneeRole domain.Role, assignerIsCreator bool) bool {
	if !assignerRole.AtLeast(domain.RoleMember) && !assignerIsCreator {
		return false
	}
	return assigneeRole.Valid()
}
