package engine

import (
	"context"

	"github.com/google/uuid"

	"taskdeck/internal/authz"
	"taskdeck/internal/domain"
	"taskdeck/internal/events"
)

// CreateRelation adds a directed edge from one task to another. The
// target must exist and live in the same project. Parallel edges are
// allowed, including a second edge of the same type.
func (e Engine) CreateRelation(ctx context.Context, sourceTaskID, targetTaskID string, relType domain.RelationType, actorID string) (domain.TaskRelation, error) {
	scope, err := e.taskScope(ctx, sourceTaskID, actorID)
	if err != nil {
		return domain.TaskRelation{}, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpCreateRelation,
		Principal:    actorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == actorID,
		ResourceKind: "task",
		ResourceID:   sourceTaskID,
	})
	if err != nil {
		return domain.TaskRelation{}, err
	}
	if err := authz.ValidateRelation(sourceTaskID, targetTaskID, relType); err != nil {
		return domain.TaskRelation{}, err
	}
	target, err := e.Repo.GetTask(ctx, targetTaskID)
	if err != nil {
		return domain.TaskRelation{}, notFound("task", targetTaskID, err)
	}
	targetProject, err := e.taskProjectID(ctx, target)
	if err != nil {
		return domain.TaskRelation{}, err
	}
	if targetProject != scope.project.ID {
		return domain.TaskRelation{}, authz.InvalidRelationError{Reason: "tasks belong to different projects"}
	}
	rel := domain.TaskRelation{
		ID:           uuid.New().String(),
		SourceTaskID: sourceTaskID,
		TargetTaskID: targetTaskID,
		RelationType: relType,
		CreatedAt:    e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskRelation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRelation(ctx, tx, rel); err != nil {
		return domain.TaskRelation{}, err
	}
	if err := e.Events.Append(ctx, tx, "relation.created", scope.project.ID, "relation", rel.ID, actorID, events.EventPayload{
		"source_task_id": sourceTaskID,
		"target_task_id": targetTaskID,
		"relation_type":  string(relType),
	}); err != nil {
		return domain.TaskRelation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskRelation{}, err
	}
	return rel, nil
}

// DeleteRelation removes an edge by id, scoped to its source task.
// Deleting an id that is already gone succeeds.
func (e Engine) DeleteRelation(ctx context.Context, sourceTaskID, relationID, actorID string) error {
	scope, err := e.taskScope(ctx, sourceTaskID, actorID)
	if err != nil {
		return err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpDeleteRelation,
		Principal:    actorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == actorID,
		ResourceKind: "task",
		ResourceID:   sourceTaskID,
	})
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRelation(ctx, tx, sourceTaskID, relationID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "relation.deleted", scope.project.ID, "relation", relationID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListRelations(ctx context.Context, sourceTaskID, actorID string) ([]domain.TaskRelation, error) {
	scope, err := e.taskScope(ctx, sourceTaskID, actorID)
	if err != nil {
		return nil, err
	}
	err = authz.Authorize(authz.Request{
		Op:           authz.OpViewRelations,
		Principal:    actorID,
		Role:         scope.role,
		IsCreator:    scope.task.CreatorID == actorID,
		ResourceKind: "task",
		ResourceID:   sourceTaskID,
	})
	if err != nil {
		return nil, err
	}
	return e.Repo.ListRelations(ctx, sourceTaskID)
}

// taskProjectID walks a task's ancestry up to its project.
func (e Engine) taskProjectID(ctx context.Context, t domain.Task) (string, error) {
	uc, err := e.Repo.GetUseCase(ctx, t.UseCaseID)
	if err != nil {
		return "", notFound("usecase", t.UseCaseID, err)
	}
	m, err := e.Repo.GetModule(ctx, uc.ModuleID)
	if err != nil {
		return "", notFound("module", uc.ModuleID, err)
	}
	return m.ProjectID, nil
}
