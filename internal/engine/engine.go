package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/authz"
	"taskdeck/internal/domain"
	"taskdeck/internal/events"
	"taskdeck/internal/repo"
)

// Engine owns every mutation of the project hierarchy. Each operation
// reads a consistent snapshot of the ancestor chain and membership set,
// asks the authz facade for a decision, then mutates inside one
// transaction and appends an audit event.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

const (
	minTitleLen = 3
	maxTitleLen = 200
	maxDescLen  = 2000
)

func validateTitle(title string) error {
	if len(title) < minTitleLen {
		return authz.ValidationError{Field: "title", Reason: fmt.Sprintf("must be at least %d characters", minTitleLen)}
	}
	if len(title) > maxTitleLen {
		return authz.ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLen)}
	}
	return nil
}

func validateDescription(desc string) error {
	if len(desc) > maxDescLen {
		return authz.ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", maxDescLen)}
	}
	return nil
}

// notFound translates the repo sentinel into the typed core error so
// handlers see one taxonomy.
func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return authz.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// projectScope is the snapshot a project-level decision needs.
type projectScope struct {
	project domain.Project
	role    domain.Role
}

func (e Engine) projectScope(ctx context.Context, projectID, userID string) (projectScope, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return projectScope{}, notFound("project", projectID, err)
	}
	set, err := e.Repo.MembershipSet(ctx, projectID)
	if err != nil {
		return projectScope{}, err
	}
	return projectScope{
		project: p,
		role:    authz.ResolveRole(set, p.CreatorID, userID),
	}, nil
}

// --- projects ---

type ProjectCreateOptions struct {
	ID          string
	Title       string
	Description string
	ActorID     string
}

// CreateProject creates an active project and gives the creator an
// Owner membership row.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if err := authz.Authorize(authz.Request{Op: authz.OpCreateProject, Principal: opts.ActorID}); err != nil {
		return domain.Project{}, err
	}
	if err := validateTitle(opts.Title); err != nil {
		return domain.Project{}, err
	}
	if err := validateDescription(opts.Description); err != nil {
		return domain.Project{}, err
	}
	now := e.nowStr()
	p := domain.Project{
		ID:          opts.ID,
		CreatorID:   opts.ActorID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertMembership(ctx, tx, domain.Membership{
		ProjectID: p.ID,
		UserID:    opts.ActorID,
		Role:      domain.RoleOwner,
		JoinedAt:  now,
	}); err != nil {
		return domain.Project{}, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewProject,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return domain.Project{}, err
	}
	return scope.project, nil
}

func (e Engine) ListProjects(ctx context.Context, actorID string) ([]domain.Project, error) {
	if actorID == "" {
		return nil, authz.ErrUnauthenticated
	}
	return e.Repo.ListProjectsFor(ctx, actorID)
}

type ProjectUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	ActorID     string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	scope, err := e.projectScope(ctx, opts.ID, opts.ActorID)
	if err != nil {
		return domain.Project{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpUpdateProject,
		Principal:    opts.ActorID,
		Role:         scope.role,
		Chain:        authz.ProjectChain(scope.project),
		ResourceKind: "project",
		ResourceID:   opts.ID,
	})
	if err != nil {
		return domain.Project{}, err
	}
	p := scope.project
	if opts.Title != nil {
		if err := validateTitle(*opts.Title); err != nil {
			return domain.Project{}, err
		}
		p.Title = *opts.Title
	}
	if opts.Description != nil {
		if err := validateDescription(*opts.Description); err != nil {
			return domain.Project{}, err
		}
		p.Description = *opts.Description
	}
	p.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ChangeProjectStatus archives or reactivates a project. The gate is not
// consulted against the project's own status, otherwise an archived
// project could never be reactivated.
func (e Engine) ChangeProjectStatus(ctx context.Context, projectID string, status domain.LifecycleStatus, actorID string) (domain.Project, error) {
	if status != domain.StatusActive && status != domain.StatusArchived {
		return domain.Project{}, authz.ValidationError{Field: "status", Reason: "must be active or archived"}
	}
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpChangeProjectStatus,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return domain.Project{}, err
	}
	p := scope.project
	if p.Status == status {
		return p, nil
	}
	p.Status = status
	p.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.status_changed", p.ID, "project", p.ID, actorID, events.EventPayload{"status": string(status)}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, projectID, actorID string) error {
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpDeleteProject,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", projectID, "project", projectID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- memberships ---

// AddMember grants a role; one membership per (project, user), so a
// second add for the same user updates the role in place.
func (e Engine) AddMember(ctx context.Context, projectID, userID string, role domain.Role, actorID string) (domain.Membership, error) {
	if !role.Valid() {
		return domain.Membership{}, authz.ValidationError{Field: "role", Reason: "must be owner, member or viewer"}
	}
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpAddMember,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return domain.Membership{}, err
	}
	m := domain.Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertMembership(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", projectID, "membership", userID, actorID, events.EventPayload{"role": string(role)}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

// UpdateMemberRole changes an existing member's role. The Owner role is
// fixed at project creation: it is neither granted nor revoked here.
func (e Engine) UpdateMemberRole(ctx context.Context, projectID, userID string, role domain.Role, actorID string) (domain.Membership, error) {
	if role != domain.RoleMember && role != domain.RoleViewer {
		return domain.Membership{}, authz.ValidationError{Field: "role", Reason: "must be member or viewer"}
	}
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpUpdateMemberRole,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return domain.Membership{}, err
	}
	m, err := e.Repo.GetMembership(ctx, projectID, userID)
	if err != nil {
		return domain.Membership{}, notFound("membership", userID, err)
	}
	if m.Role == domain.RoleOwner {
		return domain.Membership{}, authz.ForbiddenError{Op: authz.OpUpdateMemberRole, Reason: "owner role cannot be changed"}
	}
	m.Role = role
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertMembership(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.role_changed", projectID, "membership", userID, actorID, events.EventPayload{"role": string(role)}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, projectID, userID, actorID string) error {
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpRemoveMember,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return err
	}
	m, err := e.Repo.GetMembership(ctx, projectID, userID)
	if err != nil {
		return notFound("membership", userID, err)
	}
	if m.Role == domain.RoleOwner {
		return authz.ForbiddenError{Op: authz.OpRemoveMember, Reason: "the owner cannot be removed"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMembership(ctx, tx, projectID, userID); err != nil {
		return notFound("membership", userID, err)
	}
	if err := e.Events.Append(ctx, tx, "member.removed", projectID, "membership", userID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListMembers(ctx context.Context, projectID, actorID string) ([]domain.Membership, error) {
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewMembers,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return nil, err
	}
	return e.Repo.ListMemberships(ctx, projectID)
}

func (e Engine) ListEvents(ctx context.Context, projectID, actorID string, limit int) ([]domain.Event, error) {
	scope, err := e.projectScope(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewEvents,
		Principal:    actorID,
		Role:         scope.role,
		ResourceKind: "project",
		ResourceID:   projectID,
	})
	if err != nil {
		return nil, err
	}
	return e.Repo.ListEvents(ctx, projectID, limit)
}
