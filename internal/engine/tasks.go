package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/authz"
	"taskdeck/internal/domain"
	"taskdeck/internal/events"
	"taskdeck/internal/repo"
)

// taskScope resolves a task's full ancestor chain plus the membership
// set. Assignment needs the raw set: an assignee must hold a real
// membership row, creator status does not count there.
type taskScope struct {
	project domain.Project
	module  domain.Module
	usecase domain.UseCase
	task    domain.Task
	members authz.MembershipSet
	role    domain.Role
}

func (e Engine) taskScope(ctx context.Context, taskID, userID string) (taskScope, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return taskScope{}, notFound("task", taskID, err)
	}
	uc, err := e.Repo.GetUseCase(ctx, t.UseCaseID)
	if err != nil {
		return taskScope{}, notFound("usecase", t.UseCaseID, err)
	}
	m, err := e.Repo.GetModule(ctx, uc.ModuleID)
	if err != nil {
		return taskScope{}, notFound("module", uc.ModuleID, err)
	}
	p, err := e.Repo.GetProject(ctx, m.ProjectID)
	if err != nil {
		return taskScope{}, notFound("project", m.ProjectID, err)
	}
	set, err := e.Repo.MembershipSet(ctx, p.ID)
	if err != nil {
		return taskScope{}, err
	}
	return taskScope{
		project: p,
		module:  m,
		usecase: uc,
		task:    t,
		members: set,
		role:    authz.ResolveRole(set, p.CreatorID, userID),
	}, nil
}

func (s taskScope) chain() authz.StatusChain {
	return authz.TaskChain(s.project, s.module, s.usecase)
}

func validTaskType(t domain.TaskType) bool {
	switch t {
	case domain.TaskTypeDocumentation, domain.TaskTypeFeature, domain.TaskTypeTest, domain.TaskTypeBug:
		return true
	}
	return false
}

func validateDate(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, *v); err != nil {
		return authz.ValidationError{Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	return nil
}

// checkDueDate rejects a due date earlier than the moment work started.
func checkDueDate(due, started *string) error {
	if due == nil || started == nil {
		return nil
	}
	d, err := time.Parse(time.RFC3339, *due)
	if err != nil {
		return authz.ValidationError{Field: "due_date", Reason: "must be an RFC 3339 timestamp"}
	}
	s, err := time.Parse(time.RFC3339, *started)
	if err != nil {
		return nil
	}
	if d.Before(s) {
		return authz.ValidationError{Field: "due_date", Reason: "cannot be before the task's start date"}
	}
	return nil
}

// --- tasks ---

type TaskCreateOptions struct {
	ID             string
	UseCaseID      string
	Title          string
	Description    string
	ImportantNotes string
	Type           domain.TaskType
	DueDate        *string
	ActorID        string
}

// CreateTask creates a task in the not_started state with no assignee.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	scope, err := e.usecaseScope(ctx, opts.UseCaseID, opts.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpCreateTask,
		Principal:    opts.ActorID,
		Role:         scope.role,
		Chain:        authz.TaskChain(scope.project, scope.module, scope.usecase),
		ResourceKind: "usecase",
		ResourceID:   opts.UseCaseID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := validateTitle(opts.Title); err != nil {
		return domain.Task{}, err
	}
	if err := validateDescription(opts.Description); err != nil {
		return domain.Task{}, err
	}
	if !validTaskType(opts.Type) {
		return domain.Task{}, authz.ValidationError{Field: "type", Reason: "must be documentation, feature, test or bug"}
	}
	if err := validateDate("due_date", opts.DueDate); err != nil {
		return domain.Task{}, err
	}
	now := e.nowStr()
	t := domain.Task{
		ID:             opts.ID,
		UseCaseID:      opts.UseCaseID,
		CreatorID:      opts.ActorID,
		Title:          opts.Title,
		Description:    opts.Description,
		ImportantNotes: opts.ImportantNotes,
		Type:           opts.Type,
		State:          domain.TaskNotStarted,
		DueDate:        opts.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", scope.project.ID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "type": string(t.Type)}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	scope, err := e.taskScope(ctx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewTask,
		Principal:    actorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == actorID,
		ResourceKind: "task",
		ResourceID:   taskID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	return scope.task, nil
}

func (e Engine) ListTasks(ctx context.Context, filters repo.TaskFilters, actorID string) ([]domain.Task, error) {
	scope, err := e.usecaseScope(ctx, filters.UseCaseID, actorID)
	if err != nil {
		return nil, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewTask,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "usecase",
		ResourceID:   filters.UseCaseID,
	})
	if err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, filters)
}

type TaskUpdateOptions struct {
	ID             string
	Title          *string
	Description    *string
	ImportantNotes *string
	Type           *domain.TaskType
	DueDate        *string
	ActorID        string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	scope, err := e.taskScope(ctx, opts.ID, opts.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpUpdateTask,
		Principal:    opts.ActorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == opts.ActorID,
		Chain:        scope.chain(),
		ResourceKind: "task",
		ResourceID:   opts.ID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	t := scope.task
	if opts.Title != nil {
		if err := validateTitle(*opts.Title); err != nil {
			return domain.Task{}, err
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		if err := validateDescription(*opts.Description); err != nil {
			return domain.Task{}, err
		}
		t.Description = *opts.Description
	}
	if opts.ImportantNotes != nil {
		t.ImportantNotes = *opts.ImportantNotes
	}
	if opts.Type != nil {
		if !validTaskType(*opts.Type) {
			return domain.Task{}, authz.ValidationError{Field: "type", Reason: "must be documentation, feature, test or bug"}
		}
		t.Type = *opts.Type
	}
	if opts.DueDate != nil {
		if err := validateDate("due_date", opts.DueDate); err != nil {
			return domain.Task{}, err
		}
		if err := checkDueDate(opts.DueDate, t.StartedAt); err != nil {
			return domain.Task{}, err
		}
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = opts.DueDate
		}
	}
	t.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", scope.project.ID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	scope, err := e.taskScope(ctx, taskID, actorID)
	if err != nil {
		return err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpDeleteTask,
		Principal:    actorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == actorID,
		Chain:        scope.chain(),
		ResourceKind: "task",
		ResourceID:   taskID,
	})
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", scope.project.ID, "task", taskID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// AssignTask sets or clears a task's assignee. An empty assignee clears
// the assignment; otherwise the assignee must hold a membership row in
// the project. Being the project's creator is not enough to be assigned.
func (e Engine) AssignTask(ctx context.Context, taskID, assigneeID, actorID string) (domain.Task, error) {
	scope, err := e.taskScope(ctx, taskID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	isCreator := scope.task.CreatorID == actorID
	err = authz.Authorize(authz.Request{
		Op:           authz.OpAssignTask,
		Principal:    actorID,
		Role:         scope.role,
		IsCreator:    isCreator,
		Chain:        scope.chain(),
		ResourceKind: "task",
		ResourceID:   taskID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	t := scope.task
	if assigneeID == "" {
		t.AssigneeID = nil
	} else {
		if !authz.CanAssign(scope.role, scope.members[assigneeID], isCreator) {
			return domain.Task{}, authz.ValidationError{Field: "assignee_id", Reason: "assignee holds no membership in the project"}
		}
		t.AssigneeID = &assigneeID
	}
	t.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.assigned", scope.project.ID, "task", t.ID, actorID, events.EventPayload{"assignee_id": assigneeID}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AssignAndStart assigns a task and moves it to in_progress in one
// step. Both halves apply their own checks, so an assignee without a
// membership or a task that cannot start fails before any state change
// is committed on the second half.
func (e Engine) AssignAndStart(ctx context.Context, taskID, assigneeID, actorID string) (domain.Task, error) {
	if _, err := e.AssignTask(ctx, taskID, assigneeID, actorID); err != nil {
		return domain.Task{}, err
	}
	return e.ChangeTaskState(ctx, TaskStateOptions{ID: taskID, State: domain.TaskInProgress, ActorID: actorID})
}

type TaskStateOptions struct {
	ID             string
	State          domain.TaskState
	CompletionNote string
	ActorID        string
}

// ChangeTaskState drives the workflow state machine and keeps the
// timestamps in step: started_at is stamped when work starts,
// completed_at and the completion note when it completes, and all three
// are cleared when the task is reset to not_started.
func (e Engine) ChangeTaskState(ctx context.Context, opts TaskStateOptions) (domain.Task, error) {
	scope, err := e.taskScope(ctx, opts.ID, opts.ActorID)
	if err != nil {
		return domain.Task{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpChangeTaskState,
		Principal:    opts.ActorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == opts.ActorID,
		Chain:        scope.chain(),
		ResourceKind: "task",
		ResourceID:   opts.ID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	t := scope.task
	next, err := authz.Transition(t.State, opts.State, t.HasAssignee())
	if err != nil {
		return domain.Task{}, err
	}
	now := e.nowStr()
	from := t.State
	t.State = next
	switch next {
	case domain.TaskInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case domain.TaskCompleted:
		t.CompletedAt = &now
		t.CompletionNote = opts.CompletionNote
	case domain.TaskNotStarted:
		t.StartedAt = nil
		t.CompletedAt = nil
		t.CompletionNote = ""
	}
	t.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.state_changed", scope.project.ID, "task", t.ID, opts.ActorID, events.EventPayload{"from": string(from), "to": string(next)}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
