package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

const moduleCols = `id,project_id,creator_id,title,description,status,created_at,updated_at`

func (r Repo) InsertModule(ctx context.Context, tx *sql.Tx, m domain.Module) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO modules(`+moduleCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.CreatorID, m.Title, nullable(m.Description), m.Status, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetModule(ctx context.Context, id string) (domain.Module, error) {
	var m domain.Module
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT `+moduleCols+` FROM modules WHERE id=?`, id).
		Scan(&m.ID, &m.ProjectID, &m.CreatorID, &m.Title, &desc, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if desc.Valid {
		m.Description = desc.String
	}
	return m, err
}

func (r Repo) ListModules(ctx context.Context, projectID string) ([]domain.Module, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,creator_id,title,COALESCE(description,''),status,created_at,updated_at FROM modules WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Module
	for rows.Next() {
		var m domain.Module
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.CreatorID, &m.Title, &m.Description, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateModule(ctx context.Context, tx *sql.Tx, m domain.Module) error {
	res, err := tx.ExecContext(ctx, `UPDATE modules SET title=?,description=?,status=?,updated_at=? WHERE id=?`,
		m.Title, nullable(m.Description), m.Status, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteModule(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
