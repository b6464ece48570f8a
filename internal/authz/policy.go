package authz

import "taskdeck/internal/domain"

// Operation enumerates everything the facade can authorize. Handlers and
// the engine consult the facade by operation kind instead of re-deriving
// role and lifecycle rules inline.
type Operation string

const (
	OpCreateProject       Operation = "project.create"
	OpViewProject         Operation = "project.view"
	OpUpdateProject       Operation = "project.update"
	OpChangeProjectStatus Operation = "project.change_status"
	OpDeleteProject       Operation = "project.delete"

	OpViewMembers      Operation = "member.view"
	OpAddMember        Operation = "member.add"
	OpUpdateMemberRole Operation = "member.update_role"
	OpRemoveMember     Operation = "member.remove"

	OpCreateModule       Operation = "module.create"
	OpViewModule         Operation = "module.view"
	OpUpdateModule       Operation = "module.update"
	OpChangeModuleStatus Operation = "module.change_status"
	OpDeleteModule       Operation = "module.delete"

	OpCreateUseCase       Operation = "usecase.create"
	OpViewUseCase         Operation = "usecase.view"
	OpUpdateUseCase       Operation = "usecase.update"
	OpChangeUseCaseStatus Operation = "usecase.change_status"
	OpDeleteUseCase       Operation = "usecase.delete"

	OpCreateTask      Operation = "task.create"
	OpViewTask        Operation = "task.view"
	OpUpdateTask      Operation = "task.update"
	OpDeleteTask      Operation = "task.delete"
	OpAssignTask      Operation = "task.assign"
	OpChangeTaskState Operation = "task.change_state"

	OpCreateRelation Operation = "relation.create"
	OpDeleteRelation Operation = "relation.delete"
	OpViewRelations  Operation = "relation.view"

	OpViewEvents Operation = "event.view"
)

// minRole is the policy table: the weakest role that may perform each
// operation. Operations absent from the map require no project role.
var minRole = map[Operation]domain.Role{
	OpViewProject:         domain.RoleViewer,
	OpUpdateProject:       domain.RoleMember,
	OpChangeProjectStatus: domain.RoleMember,
	OpDeleteProject:       domain.RoleOwner,

	OpViewMembers:      domain.RoleViewer,
	OpAddMember:        domain.RoleOwner,
	OpUpdateMemberRole: domain.RoleOwner,
	OpRemoveMember:     domain.RoleOwner,

	OpCreateModule:       domain.RoleMember,
	OpViewModule:         domain.RoleViewer,
	OpUpdateModule:       domain.RoleMember,
	OpChangeModuleStatus: domain.RoleMember,
	OpDeleteModule:       domain.RoleMember,

	OpCreateUseCase:       domain.RoleMember,
	OpViewUseCase:         domain.RoleViewer,
	OpUpdateUseCase:       domain.RoleMember,
	OpChangeUseCaseStatus: domain.RoleMember,
	OpDeleteUseCase:       domain.RoleMember,

	OpCreateTask:      domain.RoleMember,
	OpViewTask:        domain.RoleViewer,
	OpUpdateTask:      domain.RoleMember,
	OpDeleteTask:      domain.RoleMember,
	OpAssignTask:      domain.RoleMember,
	OpChangeTaskState: domain.RoleMember,

	OpCreateRelation: domain.RoleMember,
	OpDeleteRelation: domain.RoleMember,
	OpViewRelations:  domain.RoleViewer,

	OpViewEvents: domain.RoleViewer,
}

// gated lists the mutations subject to the lifecycle gate. Reads are
// never gated; relation create/delete check role only.
var gated = map[Operation]bool{
	OpUpdateProject:       true,
	OpChangeProjectStatus: true,

	OpCreateModule:       true,
	OpUpdateModule:       true,
	OpChangeModuleStatus: true,
	OpDeleteModule:       true,

	OpCreateUseCase:       true,
	OpUpdateUseCase:       true,
	OpChangeUseCaseStatus: true,
	OpDeleteUseCase:       true,

	OpCreateTask:      true,
	OpUpdateTask:      true,
	OpDeleteTask:      true,
	OpAssignTask:      true,
	OpChangeTaskState: true,
}

// creatorOverridable lists the resource-scoped operations where the
// resource's creator acts with Member-equivalent rights even without a
// project membership. The override never widens general project access
// and never relaxes the assignee-membership law.
var creatorOverridable = map[Operation]bool{
	OpViewTask:        true,
	OpUpdateTask:      true,
	OpDeleteTask:      true,
	OpAssignTask:      true,
	OpChangeTaskState: true,
	OpCreateRelation:  true,
	OpDeleteRelation:  true,
	OpViewRelations:   true,
}

// Request carries everything the facade needs for one decision: the
// acting principal, its resolved role, whether it created the target
// resource, and the lifecycle chain of the target's ancestors. All
// fields are snapshots supplied by the caller; Authorize performs no
// lookups.
type Request struct {
	Op        Operation
	Principal string
	Role      domain.Role
	IsCreator bool
	Chain     StatusChain

	// ResourceKind and ResourceID shape the NotFound returned to callers
	// who hold no role at all, so that existence is not leaked.
	ResourceKind string
	ResourceID   string
}

// Authorize applies the policy table to a single request.
//
// Failure modes: ErrUnauthenticated when no principal is present;
// NotFoundError when the caller holds no role and no creator override
// (resource existence is hidden from outsiders); ForbiddenError when a
// role is established but insufficient, or when the lifecycle gate is
// closed.
func Authorize(req Request) error {
	if req.Principal == "" {
		return ErrUnauthenticated
	}
	effective := req.Role
	if req.IsCreator && creatorOverridable[req.Op] && !effective.AtLeast(domain.RoleMember) {
		effective = domain.RoleMember
	}
	if min, ok := minRole[req.Op]; ok && !effective.AtLeast(min) {
		if req.Role == domain.RoleNone && !req.IsCreator {
			return NotFoundError{Kind: req.ResourceKind, ID: req.ResourceID}
		}
		return ForbiddenError{Op: req.Op, Reason: "role " + string(req.Role) + " is insufficient"}
	}
	if gated[req.Op] && !CanMutate(req.Chain) {
		return ForbiddenError{Op: req.Op, Reason: "an ancestor entity is archived"}
	}
	return nil
}
