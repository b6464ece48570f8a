package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

const taskCols = `id,usecase_id,creator_id,assignee_id,title,description,important_notes,type,state,due_date,started_at,completed_at,completion_note,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UseCaseID, t.CreatorID, nullableP(t.AssigneeID), t.Title, nullable(t.Description), nullable(t.ImportantNotes),
		t.Type, t.State, nullableP(t.DueDate), nullableP(t.StartedAt), nullableP(t.CompletedAt), nullable(t.CompletionNote),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignee, desc, notes, due, started, completed, note sql.NullString
	err := scan(&t.ID, &t.UseCaseID, &t.CreatorID, &assignee, &t.Title, &desc, &notes,
		&t.Type, &t.State, &due, &started, &completed, &note, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.AssigneeID = optString(assignee)
	if desc.Valid {
		t.Description = desc.String
	}
	if notes.Valid {
		t.ImportantNotes = notes.String
	}
	t.DueDate = optString(due)
	t.StartedAt = optString(started)
	t.CompletedAt = optString(completed)
	if note.Valid {
		t.CompletionNote = note.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

// TaskFilters narrows ListTasks. Zero values mean "any".
type TaskFilters struct {
	UseCaseID  string
	State      domain.TaskState
	AssigneeID string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	q := `SELECT ` + taskCols + ` FROM tasks WHERE usecase_id=?`
	args := []any{f.UseCaseID}
	if f.State != "" {
		q += ` AND state=?`
		args = append(args, f.State)
	}
	if f.AssigneeID != "" {
		q += ` AND assignee_id=?`
		args = append(args, f.AssigneeID)
	}
	q += ` ORDER BY created_at`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `
UPDATE tasks SET assignee_id=?,title=?,description=?,important_notes=?,state=?,due_date=?,
started_at=?,completed_at=?,completion_note=?,updated_at=? WHERE id=?`,
		nullableP(t.AssigneeID), t.Title, nullable(t.Description), nullable(t.ImportantNotes), t.State,
		nullableP(t.DueDate), nullableP(t.StartedAt), nullableP(t.CompletedAt), nullable(t.CompletionNote),
		t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
