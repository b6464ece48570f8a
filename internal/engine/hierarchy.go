package engine

import (
	"context"

	"github.com/google/uuid"

	"taskdeck/internal/authz"
	"taskdeck/internal/domain"
	"taskdeck/internal/events"
)

// moduleScope resolves a module plus its owning project and the actor's
// role, in one place so every module operation sees the same snapshot.
type moduleScope struct {
	project domain.Project
	module  domain.Module
	role    domain.Role
}

func (e Engine) moduleScope(ctx context.Context, moduleID, userID string) (moduleScope, error) {
	m, err := e.Repo.GetModule(ctx, moduleID)
	if err != nil {
		return moduleScope{}, notFound("module", moduleID, err)
	}
	p, err := e.Repo.GetProject(ctx, m.ProjectID)
	if err != nil {
		return moduleScope{}, notFound("project", m.ProjectID, err)
	}
	set, err := e.Repo.MembershipSet(ctx, p.ID)
	if err != nil {
		return moduleScope{}, err
	}
	return moduleScope{
		project: p,
		module:  m,
		role:    authz.ResolveRole(set, p.CreatorID, userID),
	}, nil
}

type usecaseScope struct {
	project domain.Project
	module  domain.Module
	usecase domain.UseCase
	role    domain.Role
}

func (e Engine) usecaseScope(ctx context.Context, usecaseID, userID string) (usecaseScope, error) {
	uc, err := e.Repo.GetUseCase(ctx, usecaseID)
	if err != nil {
		return usecaseScope{}, notFound("usecase", usecaseID, err)
	}
	ms, err := e.moduleScope(ctx, uc.ModuleID, userID)
	if err != nil {
		return usecaseScope{}, err
	}
	return usecaseScope{project: ms.project, module: ms.module, usecase: uc, role: ms.role}, nil
}

// --- modules ---

type ModuleCreateOptions struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	ActorID     string
}

func (e Engine) CreateModule(ctx context.Context, opts ModuleCreateOptions) (domain.Module, error) {
	scope, err := e.projectScope(ctx, opts.ProjectID, opts.ActorID)
	if err != nil {
		return domain.Module{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpCreateModule,
		Principal:    opts.ActorID,
		Role:         scope.role,
		Chain:        authz.ProjectChain(scope.project),
		ResourceKind: "project",
		ResourceID:   opts.ProjectID,
	})
	if err != nil {
		return domain.Module{}, err
	}
	if err := validateTitle(opts.Title); err != nil {
		return domain.Module{}, err
	}
	if err := validateDescription(opts.Description); err != nil {
		return domain.Module{}, err
	}
	now := e.nowStr()
	m := domain.Module{
		ID:          opts.ID,
		ProjectID:   opts.ProjectID,
		CreatorID:   opts.ActorID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Module{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertModule(ctx, tx, m); err != nil {
		return domain.Module{}, err
	}
	if err := e.Events.Append(ctx, tx, "module.created", m.ProjectID, "module", m.ID, opts.ActorID, events.EventPayload{"title": m.Title}); err != nil {
		return domain.Module{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Module{}, err
	}
	return m, nil
}

func (e Engine) GetModule(ctx context.Context, moduleID, actorID string) (domain.Module, error) {
	scope, err := e.moduleScope(ctx, moduleID, actorID)
	if err != nil {
		return domain.Module{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewModule,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "module",
		ResourceID:   moduleID,
	})
	if err != nil {
		return domain.Module{}, err
	}
	return scope.module, nil
}

func (e Engine) ListModules(ctx context.Context, projectID, actorID string) ([]domain.Module, error) {
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewModule,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return nil, err
	}
	return e.Repo.ListModules(ctx, projectID)
}

type ModuleUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	ActorID     string
}

func (e Engine) UpdateModule(ctx context.Context, opts ModuleUpdateOptions) (domain.Module, error) {
	scope, err := e.moduleScope(ctx, opts.ID, opts.ActorID)
	if err != nil {
		return domain.Module{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpUpdateModule,
		Principal:    opts.ActorID,
		Role:         scope.role,
		Chain:        authz.ModuleChain(scope.project, scope.module),
		ResourceKind: "module",
		ResourceID:   opts.ID,
	})
	if err != nil {
		return domain.Module{}, err
	}
	m := scope.module
	if opts.Title != nil {
		if err := validateTitle(*opts.Title); err != nil {
			return domain.Module{}, err
		}
		m.Title = *opts.Title
	}
	if opts.Description != nil {
		if err := validateDescription(*opts.Description); err != nil {
			return domain.Module{}, err
		}
		m.Description = *opts.Description
	}
	m.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Module{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateModule(ctx, tx, m); err != nil {
		return domain.Module{}, err
	}
	if err := e.Events.Append(ctx, tx, "module.updated", m.ProjectID, "module", m.ID, opts.ActorID, events.EventPayload{"title": m.Title}); err != nil {
		return domain.Module{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Module{}, err
	}
	return m, nil
}

// ChangeModuleStatus is gated on the project only, so an archived module
// can be reactivated while its project is active.
func (e Engine) ChangeModuleStatus(ctx context.Context, moduleID string, status domain.LifecycleStatus, actorID string) (domain.Module, error) {
	if status != domain.StatusActive && status != domain.StatusArchived {
		return domain.Module{}, authz.ValidationError{Field: "status", Reason: "must be active or archived"}
	}
	scope, err := e.moduleScope(ctx, moduleID, actorID)
	if err != nil {
		return domain.Module{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpChangeModuleStatus,
		Principal:    actorID,
		Role:         scope.role,
		Chain:        authz.ProjectChain(scope.project),
		ResourceKind: "module",
		ResourceID:   moduleID,
	})
	if err != nil {
		return domain.Module{}, err
	}
	m := scope.module
	if m.Status == status {
		return m, nil
	}
	m.Status = status
	m.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Module{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateModule(ctx, tx, m); err != nil {
		return domain.Module{}, err
	}
	if err := e.Events.Append(ctx, tx, "module.status_changed", m.ProjectID, "module", m.ID, actorID, events.EventPayload{"status": string(status)}); err != nil {
		return domain.Module{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Module{}, err
	}
	return m, nil
}

func (e Engine) DeleteModule(ctx context.Context, moduleID, actorID string) error {
	scope, err := e.moduleScope(ctx, moduleID, actorID)
	if err != nil {
		return err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpDeleteModule,
		Principal:    actorID,
		Role:         scope.role,
		Chain:        authz.ProjectChain(scope.project),
		ResourceKind: "module",
		ResourceID:   moduleID,
	})
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteModule(ctx, tx, moduleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "module.deleted", scope.project.ID, "module", moduleID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- use cases ---

type UseCaseCreateOptions struct {
	ID             string
	ModuleID       string
	Title          string
	Description    string
	ImportantNotes string
	ActorID        string
}

func (e Engine) CreateUseCase(ctx context.Context, opts UseCaseCreateOptions) (domain.UseCase, error) {
	scope, err := e.moduleScope(ctx, opts.ModuleID, opts.ActorID)
	if err != nil {
		return domain.UseCase{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpCreateUseCase,
		Principal:    opts.ActorID,
		Role:         scope.role,
		Chain:        authz.ModuleChain(scope.project, scope.module),
		ResourceKind: "module",
		ResourceID:   opts.ModuleID,
	})
	if err != nil {
		return domain.UseCase{}, err
	}
	if err := validateTitle(opts.Title); err != nil {
		return domain.UseCase{}, err
	}
	if err := validateDescription(opts.Description); err != nil {
		return domain.UseCase{}, err
	}
	now := e.nowStr()
	uc := domain.UseCase{
		ID:             opts.ID,
		ModuleID:       opts.ModuleID,
		CreatorID:      opts.ActorID,
		Title:          opts.Title,
		Description:    opts.Description,
		ImportantNotes: opts.ImportantNotes,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if uc.ID == "" {
		uc.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UseCase{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUseCase(ctx, tx, uc); err != nil {
		return domain.UseCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "usecase.created", scope.project.ID, "usecase", uc.ID, opts.ActorID, events.EventPayload{"title": uc.Title}); err != nil {
		return domain.UseCase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UseCase{}, err
	}
	return uc, nil
}

func (e Engine) GetUseCase(ctx context.Context, usecaseID, actorID string) (domain.UseCase, error) {
	scope, err := e.usecaseScope(ctx, usecaseID, actorID)
	if err != nil {
		return domain.UseCase{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewUseCase,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "usecase",
		ResourceID:   usecaseID,
	})
	if err != nil {
		return domain.UseCase{}, err
	}
	return scope.usecase, nil
}

func (e Engine) ListUseCases(ctx context.Context, moduleID, actorID string) ([]domain.UseCase, error) {
	scope, err := e.moduleScope(ctx, moduleID, actorID)
	if err != nil {
		return nil, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewUseCase,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "module",
		ResourceID:   moduleID,
	})
	if err != nil {
		return nil, err
	}
	return e.Repo.ListUseCases(ctx, moduleID)
}

type UseCaseUpdateOptions struct {
	ID             string
	Title          *string
	Description    *string
	ImportantNotes *string
	ActorID        string
}

func (e Engine) UpdateUseCase(ctx context.Context, opts UseCaseUpdateOptions) (domain.UseCase, error) {
	scope, err := e.usecaseScope(ctx, opts.ID, opts.ActorID)
	if err != nil {
		return domain.UseCase{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpUpdateUseCase,
		Principal:    opts.ActorID,
		Role:         scope.role,
		Chain:        authz.TaskChain(scope.project, scope.module, scope.usecase),
		ResourceKind: "usecase",
		ResourceID:   opts.ID,
	})
	if err != nil {
		return domain.UseCase{}, err
	}
	uc := scope.usecase
	if opts.Title != nil {
		if err := validateTitle(*opts.Title); err != nil {
			return domain.UseCase{}, err
		}
		uc.Title = *opts.Title
	}
	if opts.Description != nil {
		if err := validateDescription(*opts.Description); err != nil {
			return domain.UseCase{}, err
		}
		uc.Description = *opts.Description
	}
	if opts.ImportantNotes != nil {
		uc.ImportantNotes = *opts.ImportantNotes
	}
	uc.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UseCase{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUseCase(ctx, tx, uc); err != nil {
		return domain.UseCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "usecase.updated", scope.project.ID, "usecase", uc.ID, opts.ActorID, events.EventPayload{"title": uc.Title}); err != nil {
		return domain.UseCase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UseCase{}, err
	}
	return uc, nil
}

// ChangeUseCaseStatus is gated on project and module only, never on the
// use case's own flag, so deactivated use cases can be reactivated.
func (e Engine) ChangeUseCaseStatus(ctx context.Context, usecaseID string, active bool, actorID string) (domain.UseCase, error) {
	scope, err := e.usecaseScope(ctx, usecaseID, actorID)
	if err != nil {
		return domain.UseCase{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpChangeUseCaseStatus,
		Principal:    actorID,
		Role:         scope.role,
		Chain:        authz.ModuleChain(scope.project, scope.module),
		ResourceKind: "usecase",
		ResourceID:   usecaseID,
	})
	if err != nil {
		return domain.UseCase{}, err
	}
	uc := scope.usecase
	if uc.IsActive == active {
		return uc, nil
	}
	uc.IsActive = active
	uc.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UseCase{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUseCase(ctx, tx, uc); err != nil {
		return domain.UseCase{}, err
	}
	if err := e.Events.Append(ctx, tx, "usecase.status_changed", scope.project.ID, "usecase", uc.ID, actorID, events.EventPayload{"is_active": active}); err != nil {
		return domain.UseCase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UseCase{}, err
	}
	return uc, nil
}

func (e Engine) DeleteUseCase(ctx context.Context, usecaseID, actorID string) error {
	scope, err := e.usecaseScope(ctx, usecaseID, actorID)
	if err != nil {
		return err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpDeleteUseCase,
		Principal:    actorID,
		Role:         scope.role,
		Chain:        authz.ModuleChain(scope.project, scope.module),
		ResourceKind: "usecase",
		ResourceID:   usecaseID,
	})
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUseCase(ctx, tx, usecaseID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "usecase.deleted", scope.project.ID, "usecase", usecaseID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
