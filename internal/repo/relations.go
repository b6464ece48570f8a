package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

func (r Repo) InsertRelation(ctx context.Context, tx *sql.Tx, rel domain.TaskRelation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_relations(id,source_task_id,target_task_id,relation_type,created_at) VALUES (?,?,?,?,?)`,
		rel.ID, rel.SourceTaskID, rel.TargetTaskID, rel.RelationType, rel.CreatedAt)
	return err
}

func (r Repo) ListRelations(ctx context.Context, sourceTaskID string) ([]domain.TaskRelation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,source_task_id,target_task_id,relation_type,created_at FROM task_relations WHERE source_task_id=? ORDER BY created_at`, sourceTaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRelation
	for rows.Next() {
		var rel domain.TaskRelation
		if err := rows.Scan(&rel.ID, &rel.SourceTaskID, &rel.TargetTaskID, &rel.RelationType, &rel.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rel)
	}
	return res, rows.Err()
}

// DeleteRelation removes the edge scoped to its source task. Deleting an
// id that does not exist is not an error; relation deletes are
// idempotent.
func (r Repo) DeleteRelation(ctx context.Context, tx *sql.Tx, sourceTaskID, relationID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM task_relations WHERE id=? AND source_task_id=?`, relationID, sourceTaskID)
	return err
}

func (r Repo) ListEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE project_id=? ORDER BY id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
