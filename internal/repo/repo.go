package repo

import (
	"context"
	"database/sql"
	"errors"

	"taskdeck/internal/domain"
)

// Repo wraps all SQL access. Reads run on the shared handle; writes take
// the caller's transaction so the engine can mutate against the same
// snapshot it authorized.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.CreatorID, &p.Title, &desc, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

const projectCols = `id,creator_id,title,description,status,created_at,updated_at`

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.CreatorID, p.Title, nullable(p.Description), p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

// ListProjectsFor returns the projects a user can see: those they
// created plus those they hold any membership in.
func (r Repo) ListProjectsFor(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT DISTINCT p.id,p.creator_id,p.title,COALESCE(p.description,''),p.status,p.created_at,p.updated_at
FROM projects p
LEFT JOIN memberships m ON m.project_id=p.id
WHERE p.creator_id=? OR m.user_id=?
ORDER BY p.created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.CreatorID, &p.Title, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SingleProject returns the workspace's only project, or ErrNotFound
// when there are zero or several.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n); err != nil {
		return domain.Project{}, err
	}
	if n != 1 {
		return domain.Project{}, ErrNotFound
	}
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT ` + projectCols + ` FROM projects LIMIT 1`))
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET title=?,description=?,status=?,updated_at=? WHERE id=?`,
		p.Title, nullable(p.Description), p.Status, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes the project; memberships, modules, use cases,
// tasks and relations underneath cascade via foreign keys.
func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableP(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func optString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
