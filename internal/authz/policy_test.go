package authz

import (
	"errors"
	"testing"

	"taskdeck/internal/domain"
)

func activeChain() StatusChain {
	p := domain.StatusActive
	m := domain.StatusActive
	uc := true
	return StatusChain{Project: &p, Module: &m, UseCase: &uc}
}

func TestResolveRole(t *testing.T) {
	set := MembershipSet{
		"alice": domain.RoleOwner,
		"bob":   domain.RoleMember,
		"viv":   domain.RoleViewer,
	}
	cases := []struct {
		user string
		want domain.Role
	}{
		{"alice", domain.RoleOwner},
		{"bob", domain.RoleMember},
		{"viv", domain.RoleViewer},
		{"stranger", domain.RoleNone},
		{"", domain.RoleNone},
	}
	for _, c := range cases {
		if got := ResolveRole(set, "creator", c.user); got != c.want {
			t.Fatalf("ResolveRole(%q) = %q, want %q", c.user, got, c.want)
		}
	}
	// project creator resolves to owner without a membership row
	if got := ResolveRole(set, "creator", "creator"); got != domain.RoleOwner {
		t.Fatalf("creator resolved to %q, want owner", got)
	}
}

func TestRoleMonotonicity(t *testing.T) {
	set := MembershipSet{}
	if got := ResolveRole(set, "", "u1"); got != domain.RoleNone {
		t.Fatalf("expected none for missing membership, got %q", got)
	}
	// granting a membership strictly increases resolvable rights
	set["u1"] = domain.RoleViewer
	if got := ResolveRole(set, "", "u1"); !got.AtLeast(domain.RoleViewer) || got == domain.RoleNone {
		t.Fatalf("expected at least viewer after grant, got %q", got)
	}
}

func TestLifecycleAND(t *testing.T) {
	chain := activeChain()
	if !CanMutate(chain) {
		t.Fatalf("all-active chain should permit mutation")
	}
	archived := domain.StatusArchived
	inactive := false

	flip := chain
	flip.Project = &archived
	if CanMutate(flip) {
		t.Fatalf("archived project should close the gate")
	}
	flip = chain
	flip.Module = &archived
	if CanMutate(flip) {
		t.Fatalf("archived module should close the gate")
	}
	flip = chain
	flip.UseCase = &inactive
	if CanMutate(flip) {
		t.Fatalf("inactive use case should close the gate")
	}
	// omitted levels are not consulted
	p := domain.StatusActive
	if !CanMutate(StatusChain{Project: &p}) {
		t.Fatalf("project-only chain with active project should be open")
	}
	if !CanMutate(StatusChain{}) {
		t.Fatalf("empty chain has nothing archived")
	}
}

func TestCanAssign(t *testing.T) {
	cases := []struct {
		name      string
		assigner  domain.Role
		assignee  domain.Role
		isCreator bool
		want      bool
	}{
		{"owner assigns member", domain.RoleOwner, domain.RoleMember, false, true},
		{"member assigns viewer", domain.RoleMember, domain.RoleViewer, false, true},
		{"member self-assigns", domain.RoleMember, domain.RoleMember, false, true},
		{"viewer cannot assign", domain.RoleViewer, domain.RoleMember, false, false},
		{"non-member cannot assign", domain.RoleNone, domain.RoleMember, false, false},
		{"creator override on assigner side", domain.RoleNone, domain.RoleMember, true, true},
		{"assignee must be a member", domain.RoleOwner, domain.RoleNone, false, false},
		{"creator override never relaxes assignee side", domain.RoleNone, domain.RoleNone, true, false},
	}
	for _, c := range cases {
		if got := CanAssign(c.assigner, c.assignee, c.isCreator); got != c.want {
			t.Fatalf("%s: CanAssign = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidateRelation(t *testing.T) {
	if err := ValidateRelation("t1", "t2", domain.RelationBlocks); err != nil {
		t.Fatalf("valid relation rejected: %v", err)
	}
	var ire InvalidRelationError
	for _, typ := range []domain.RelationType{
		domain.RelationBlocks, domain.RelationRelatesTo, domain.RelationFixes, domain.RelationDuplicates,
	} {
		err := ValidateRelation("t1", "t1", typ)
		if !errors.As(err, &ire) {
			t.Fatalf("self-relation with %s: expected InvalidRelationError, got %v", typ, err)
		}
	}
	if err := ValidateRelation("t1", "t2", "precedes"); !errors.As(err, &ire) {
		t.Fatalf("unknown type: expected InvalidRelationError, got %v", err)
	}
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	err := Authorize(Request{Op: OpViewTask, Role: domain.RoleOwner})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAuthorizeRoleTable(t *testing.T) {
	chain := activeChain()
	cases := []struct {
		op   Operation
		role domain.Role
		ok   bool
	}{
		{OpCreateTask, domain.RoleMember, true},
		{OpCreateTask, domain.RoleViewer, false},
		{OpViewTask, domain.RoleViewer, true},
		{OpAssignTask, domain.RoleViewer, false},
		{OpChangeTaskState, domain.RoleMember, true},
		{OpCreateRelation, domain.RoleMember, true},
		{OpCreateRelation, domain.RoleViewer, false},
		{OpViewRelations, domain.RoleViewer, true},
		{OpDeleteProject, domain.RoleMember, false},
		{OpDeleteProject, domain.RoleOwner, true},
		{OpAddMember, domain.RoleMember, false},
		{OpAddMember, domain.RoleOwner, true},
	}
	for _, c := range cases {
		err := Authorize(Request{Op: c.op, Principal: "u1", Role: c.role, Chain: chain})
		if c.ok && err != nil {
			t.Fatalf("%s as %s: unexpected %v", c.op, c.role, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%s as %s: expected error", c.op, c.role)
		}
	}
}

func TestAuthorizeLifecycleClosed(t *testing.T) {
	archived := domain.StatusArchived
	active := domain.StatusActive
	uc := true
	chain := StatusChain{Project: &active, Module: &archived, UseCase: &uc}
	err := Authorize(Request{Op: OpChangeTaskState, Principal: "u1", Role: domain.RoleMember, Chain: chain})
	var fe ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError for closed gate, got %v", err)
	}
	// reads stay open
	if err := Authorize(Request{Op: OpViewTask, Principal: "u1", Role: domain.RoleViewer, Chain: chain}); err != nil {
		t.Fatalf("view under archived module: %v", err)
	}
}

func TestAuthorizeHidesExistenceFromOutsiders(t *testing.T) {
	err := Authorize(Request{
		Op:           OpUpdateTask,
		Principal:    "stranger",
		Role:         domain.RoleNone,
		Chain:        activeChain(),
		ResourceKind: "task",
		ResourceID:   "t-9",
	})
	var nfe NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError for outsider, got %v", err)
	}
	// an established role, even viewer, gets forbidden instead
	err = Authorize(Request{Op: OpUpdateTask, Principal: "viv", Role: domain.RoleViewer, Chain: activeChain()})
	var fe ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError for viewer, got %v", err)
	}
}

func TestAuthorizeCreatorOverride(t *testing.T) {
	// the task creator acts with member-equivalent rights on that task
	err := Authorize(Request{
		Op:        OpChangeTaskState,
		Principal: "creator",
		Role:      domain.RoleNone,
		IsCreator: true,
		Chain:     activeChain(),
	})
	if err != nil {
		t.Fatalf("creator override: %v", err)
	}
	// the override is resource-scoped: it does not grant task creation
	err = Authorize(Request{
		Op:        OpCreateTask,
		Principal: "creator",
		Role:      domain.RoleNone,
		IsCreator: true,
		Chain:     activeChain(),
	})
	if err == nil {
		t.Fatalf("creator override must not widen general project access")
	}
	// and it never bypasses the lifecycle gate
	archived := domain.StatusArchived
	err = Authorize(Request{
		Op:        OpUpdateTask,
		Principal: "creator",
		Role:      domain.RoleNone,
		IsCreator: true,
		Chain:     StatusChain{Project: &archived},
	})
	var fe ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError under archived project, got %v", err)
	}
}
