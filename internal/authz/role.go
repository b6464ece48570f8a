package authz

import "taskdeck/internal/domain"

// MembershipSet is a materialized snapshot of a project's memberships,
// keyed by user id. The resolver never fetches; callers load a consistent
// snapshot and hand it over.
type MembershipSet map[string]domain.Role

// ResolveRole returns the effective role of userID inside the project the
// snapshot was taken from. The project creator resolves to Owner even
// without a membership row; everyone else resolves from the snapshot, or
// to RoleNone when no row exists.
func ResolveRole(memberships MembershipSet, projectCreatorID, userID string) domain.Role {
	if userID == "" {
		return domain.RoleNone
	}
	if projectCreatorID != "" && userID == projectCreatorID {
		return domain.RoleOwner
	}
	if role, ok := memberships[userID]; ok && role.Valid() {
		return role
	}
	return domain.RoleNone
}
