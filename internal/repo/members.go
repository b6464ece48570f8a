package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

func (r Repo) UpsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO memberships(project_id,user_id,role,joined_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`,
		m.ProjectID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) DeleteMembership(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMembership(ctx context.Context, projectID, userID string) (domain.Membership, error) {
	var m domain.Membership
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,user_id,role,joined_at FROM memberships WHERE project_id=? AND user_id=?`,
		projectID, userID).Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMemberships(ctx context.Context, projectID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,role,joined_at FROM memberships WHERE project_id=? ORDER BY joined_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MembershipSet materializes a project's membership snapshot for the
// role resolver.
func (r Repo) MembershipSet(ctx context.Context, projectID string) (map[string]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,role FROM memberships WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := map[string]domain.Role{}
	for rows.Next() {
		var user string
		var role domain.Role
		if err := rows.Scan(&user, &role); err != nil {
			return nil, err
		}
		set[user] = role
	}
	return set, rows.Err()
}
