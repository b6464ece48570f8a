package engine

import (
	"context"
	"errors"
	"testing"

	"taskdeck/internal/authz"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/migrate"
	"taskdeck/internal/repo"
)

const (
	alice = "alice" // project owner
	bob   = "bob"   // member
	vera  = "vera"  // viewer
	mallo = "mallo" // no role anywhere
)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn)
}

// fixture is a project with one module, one use case and one task,
// owned by alice with bob as member and vera as viewer.
type fixture struct {
	eng     Engine
	project domain.Project
	module  domain.Module
	usecase domain.UseCase
	task    domain.Task
}

func seed(t *testing.T, eng Engine) fixture {
	t.Helper()
	ctx := context.Background()
	p, err := eng.CreateProject(ctx, ProjectCreateOptions{Title: "Billing revamp", ActorID: alice})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := eng.AddMember(ctx, p.ID, bob, domain.RoleMember, alice); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := eng.AddMember(ctx, p.ID, vera, domain.RoleViewer, alice); err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	m, err := eng.CreateModule(ctx, ModuleCreateOptions{ProjectID: p.ID, Title: "Invoicing", ActorID: alice})
	if err != nil {
		t.Fatalf("create module: %v", err)
	}
	uc, err := eng.CreateUseCase(ctx, UseCaseCreateOptions{ModuleID: m.ID, Title: "Issue invoice", ActorID: alice})
	if err != nil {
		t.Fatalf("create usecase: %v", err)
	}
	task, err := eng.CreateTask(ctx, TaskCreateOptions{
		UseCaseID: uc.ID,
		Title:     "Render invoice PDF",
		Type:      domain.TaskTypeFeature,
		ActorID:   bob,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return fixture{eng: eng, project: p, module: m, usecase: uc, task: task}
}

func TestCreateProjectGrantsOwner(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	members, err := eng.ListMembers(ctx, fx.project.ID, alice)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	found := false
	for _, m := range members {
		if m.UserID == alice && m.Role == domain.RoleOwner {
			found = true
		}
	}
	if !found {
		t.Fatalf("creator did not receive an owner membership: %+v", members)
	}

	var nf authz.NotFoundError
	if _, err := eng.GetProject(ctx, fx.project.ID, mallo); !errors.As(err, &nf) {
		t.Fatalf("stranger should see not found, got %v", err)
	}
	if _, err := eng.GetProject(ctx, fx.project.ID, ""); !errors.Is(err, authz.ErrUnauthenticated) {
		t.Fatalf("anonymous should be unauthenticated, got %v", err)
	}
}

func TestStartRequiresAssignee(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var ill authz.IllegalTransitionError
	_, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob})
	if !errors.As(err, &ill) {
		t.Fatalf("starting an unassigned task should be illegal, got %v", err)
	}

	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, alice); err != nil {
		t.Fatalf("assign: %v", err)
	}
	task, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob})
	if err != nil {
		t.Fatalf("start after assignment: %v", err)
	}
	if task.State != domain.TaskInProgress {
		t.Fatalf("state = %s, want in_progress", task.State)
	}
	if task.StartedAt == nil {
		t.Fatal("started_at not stamped")
	}
}

func TestCompleteRecordsNoteAndResetClears(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, alice); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob}); err != nil {
		t.Fatalf("start: %v", err)
	}
	task, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskCompleted, CompletionNote: "shipped in v2", ActorID: bob})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletedAt == nil || task.CompletionNote != "shipped in v2" {
		t.Fatalf("completion not recorded: %+v", task)
	}

	// completed is terminal
	var ill authz.IllegalTransitionError
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob}); !errors.As(err, &ill) {
		t.Fatalf("completed task should be terminal, got %v", err)
	}
}

func TestCancelledTaskCanBeReset(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, alice); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskCancelled, ActorID: bob}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	task, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskNotStarted, ActorID: bob})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if task.StartedAt != nil || task.CompletedAt != nil || task.CompletionNote != "" {
		t.Fatalf("reset should clear workflow timestamps: %+v", task)
	}
}

func TestArchivedModuleBlocksTaskMutations(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, alice); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := eng.ChangeModuleStatus(ctx, fx.module.ID, domain.StatusArchived, alice); err != nil {
		t.Fatalf("archive module: %v", err)
	}

	var forb authz.ForbiddenError
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob}); !errors.As(err, &forb) {
		t.Fatalf("mutation under archived module should be forbidden, got %v", err)
	}

	// reads stay open
	if _, err := eng.GetTask(ctx, fx.task.ID, vera); err != nil {
		t.Fatalf("read under archived module: %v", err)
	}

	// reactivation is gated on the project only
	if _, err := eng.ChangeModuleStatus(ctx, fx.module.ID, domain.StatusActive, alice); err != nil {
		t.Fatalf("reactivate module: %v", err)
	}
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob}); err != nil {
		t.Fatalf("mutation after reactivation: %v", err)
	}
}

func TestViewerRelationRules(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	other, err := eng.CreateTask(ctx, TaskCreateOptions{UseCaseID: fx.usecase.ID, Title: "Write PDF tests", Type: domain.TaskTypeTest, ActorID: bob})
	if err != nil {
		t.Fatalf("create second task: %v", err)
	}

	var forb authz.ForbiddenError
	if _, err := eng.CreateRelation(ctx, fx.task.ID, other.ID, domain.RelationBlocks, vera); !errors.As(err, &forb) {
		t.Fatalf("viewer relation create should be forbidden, got %v", err)
	}

	rel, err := eng.CreateRelation(ctx, fx.task.ID, other.ID, domain.RelationBlocks, bob)
	if err != nil {
		t.Fatalf("member relation create: %v", err)
	}
	if _, err := eng.ListRelations(ctx, fx.task.ID, vera); err != nil {
		t.Fatalf("viewer relation list: %v", err)
	}

	// a second edge of the same type is allowed
	if _, err := eng.CreateRelation(ctx, fx.task.ID, other.ID, domain.RelationBlocks, bob); err != nil {
		t.Fatalf("duplicate edge: %v", err)
	}

	// deletes are idempotent
	if err := eng.DeleteRelation(ctx, fx.task.ID, rel.ID, bob); err != nil {
		t.Fatalf("delete relation: %v", err)
	}
	if err := eng.DeleteRelation(ctx, fx.task.ID, rel.ID, bob); err != nil {
		t.Fatalf("repeated delete should succeed, got %v", err)
	}
}

func TestRelationStructure(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var inv authz.InvalidRelationError
	if _, err := eng.CreateRelation(ctx, fx.task.ID, fx.task.ID, domain.RelationRelatesTo, bob); !errors.As(err, &inv) {
		t.Fatalf("self relation should be invalid, got %v", err)
	}
	var nf authz.NotFoundError
	if _, err := eng.CreateRelation(ctx, fx.task.ID, "ghost", domain.RelationFixes, bob); !errors.As(err, &nf) {
		t.Fatalf("missing target should be not found, got %v", err)
	}
}

func TestAssigneeMustHoldMembership(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var val authz.ValidationError
	if _, err := eng.AssignTask(ctx, fx.task.ID, mallo, alice); !errors.As(err, &val) {
		t.Fatalf("assigning a non-member should fail validation, got %v", err)
	}

	// bob created the task; once his membership is gone, the creator
	// override still lets him act on it, but he can no longer be the
	// assignee himself.
	if err := eng.RemoveMember(ctx, fx.project.ID, bob, alice); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, bob); !errors.As(err, &val) {
		t.Fatalf("non-member creator self-assignment should fail on the assignee side, got %v", err)
	}
	if _, err := eng.AssignTask(ctx, fx.task.ID, vera, bob); err != nil {
		t.Fatalf("creator assigning a project member: %v", err)
	}
}

func TestViewerCannotMutateHierarchy(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var forb authz.ForbiddenError
	if _, err := eng.CreateTask(ctx, TaskCreateOptions{UseCaseID: fx.usecase.ID, Title: "Sneaky task", Type: domain.TaskTypeBug, ActorID: vera}); !errors.As(err, &forb) {
		t.Fatalf("viewer task create should be forbidden, got %v", err)
	}
	if _, err := eng.UpdateModule(ctx, ModuleUpdateOptions{ID: fx.module.ID, Title: strptr("Renamed"), ActorID: vera}); !errors.As(err, &forb) {
		t.Fatalf("viewer module update should be forbidden, got %v", err)
	}

	// membership management is owner-only
	if _, err := eng.AddMember(ctx, fx.project.ID, mallo, domain.RoleMember, bob); !errors.As(err, &forb) {
		t.Fatalf("member adding members should be forbidden, got %v", err)
	}
}

func TestOwnerRoleIsImmutable(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var forb authz.ForbiddenError
	if _, err := eng.UpdateMemberRole(ctx, fx.project.ID, alice, domain.RoleViewer, alice); !errors.As(err, &forb) {
		t.Fatalf("demoting the owner should be forbidden, got %v", err)
	}
	if err := eng.RemoveMember(ctx, fx.project.ID, alice, alice); !errors.As(err, &forb) {
		t.Fatalf("removing the owner should be forbidden, got %v", err)
	}
}

func TestDeleteProjectIsOwnerOnly(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var forb authz.ForbiddenError
	if err := eng.DeleteProject(ctx, fx.project.ID, bob); !errors.As(err, &forb) {
		t.Fatalf("member deleting the project should be forbidden, got %v", err)
	}
	if err := eng.DeleteProject(ctx, fx.project.ID, alice); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	var nf authz.NotFoundError
	if _, err := eng.GetProject(ctx, fx.project.ID, alice); !errors.As(err, &nf) {
		t.Fatalf("deleted project should be gone, got %v", err)
	}
}

func TestDueDateValidation(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, alice); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := eng.ChangeTaskState(ctx, TaskStateOptions{ID: fx.task.ID, State: domain.TaskInProgress, ActorID: bob}); err != nil {
		t.Fatalf("start: %v", err)
	}

	var val authz.ValidationError
	past := "2000-01-01T00:00:00Z"
	if _, err := eng.UpdateTask(ctx, TaskUpdateOptions{ID: fx.task.ID, DueDate: &past, ActorID: bob}); !errors.As(err, &val) {
		t.Fatalf("due date before start should fail validation, got %v", err)
	}
	future := "2100-01-01T00:00:00Z"
	if _, err := eng.UpdateTask(ctx, TaskUpdateOptions{ID: fx.task.ID, DueDate: &future, ActorID: bob}); err != nil {
		t.Fatalf("future due date: %v", err)
	}
}

func TestTitleValidation(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var val authz.ValidationError
	if _, err := eng.CreateTask(ctx, TaskCreateOptions{UseCaseID: fx.usecase.ID, Title: "ab", Type: domain.TaskTypeBug, ActorID: bob}); !errors.As(err, &val) {
		t.Fatalf("short title should fail validation, got %v", err)
	}
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := eng.CreateProject(ctx, ProjectCreateOptions{Title: string(long), ActorID: alice}); !errors.As(err, &val) {
		t.Fatalf("oversized title should fail validation, got %v", err)
	}
}

func TestEventsAreRecorded(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	evts, err := eng.ListEvents(ctx, fx.project.ID, alice, 50)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	for _, want := range []string{"project.created", "member.added", "module.created", "usecase.created", "task.created"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}

func TestTaskListFilters(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	if _, err := eng.AssignTask(ctx, fx.task.ID, bob, alice); err != nil {
		t.Fatalf("assign: %v", err)
	}
	tasks, err := eng.ListTasks(ctx, repo.TaskFilters{UseCaseID: fx.usecase.ID, AssigneeID: bob}, vera)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != fx.task.ID {
		t.Fatalf("filter by assignee returned %+v", tasks)
	}
	tasks, err = eng.ListTasks(ctx, repo.TaskFilters{UseCaseID: fx.usecase.ID, State: domain.TaskCompleted}, vera)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("no task should be completed yet, got %+v", tasks)
	}
}

func TestAssignAndStart(t *testing.T) {
	eng := newTestEngine(t)
	fx := seed(t, eng)
	ctx := context.Background()

	var verr authz.ValidationError
	_, err := eng.AssignAndStart(ctx, fx.task.ID, mallo, bob)
	if !errors.As(err, &verr) {
		t.Fatalf("assigning a non-member should fail validation, got %v", err)
	}
	got, err := eng.GetTask(ctx, fx.task.ID, bob)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.State != domain.TaskNotStarted {
		t.Fatalf("failed assignment must not start the task, state = %s", got.State)
	}

	task, err := eng.AssignAndStart(ctx, fx.task.ID, bob, bob)
	if err != nil {
		t.Fatalf("assign and start: %v", err)
	}
	if task.State != domain.TaskInProgress {
		t.Fatalf("state = %s, want in_progress", task.State)
	}
	if task.AssigneeID == nil || *task.AssigneeID != bob {
		t.Fatalf("assignee = %v, want %s", task.AssigneeID, bob)
	}
	if task.StartedAt == nil {
		t.Fatal("started_at should be stamped")
	}
}

func strptr(s string) *string { return &s }
