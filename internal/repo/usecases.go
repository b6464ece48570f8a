package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

const usecaseCols = `id,module_id,creator_id,title,description,important_notes,is_active,created_at,updated_at`

func (r Repo) InsertUseCase(ctx context.Context, tx *sql.Tx, uc domain.UseCase) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO usecases(`+usecaseCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		uc.ID, uc.ModuleID, uc.CreatorID, uc.Title, nullable(uc.Description), nullable(uc.ImportantNotes), boolToInt(uc.IsActive), uc.CreatedAt, uc.UpdatedAt)
	return err
}

func (r Repo) GetUseCase(ctx context.Context, id string) (domain.UseCase, error) {
	var uc domain.UseCase
	var desc, notes sql.NullString
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT `+usecaseCols+` FROM usecases WHERE id=?`, id).
		Scan(&uc.ID, &uc.ModuleID, &uc.CreatorID, &uc.Title, &desc, &notes, &active, &uc.CreatedAt, &uc.UpdatedAt)
	if err == sql.ErrNoRows {
		return uc, ErrNotFound
	}
	if desc.Valid {
		uc.Description = desc.String
	}
	if notes.Valid {
		uc.ImportantNotes = notes.String
	}
	uc.IsActive = active != 0
	return uc, err
}

func (r Repo) ListUseCases(ctx context.Context, moduleID string) ([]domain.UseCase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,module_id,creator_id,title,COALESCE(description,''),COALESCE(important_notes,''),is_active,created_at,updated_at FROM usecases WHERE module_id=? ORDER BY created_at`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UseCase
	for rows.Next() {
		var uc domain.UseCase
		var active int
		if err := rows.Scan(&uc.ID, &uc.ModuleID, &uc.CreatorID, &uc.Title, &uc.Description, &uc.ImportantNotes, &active, &uc.CreatedAt, &uc.UpdatedAt); err != nil {
			return nil, err
		}
		uc.IsActive = active != 0
		res = append(res, uc)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUseCase(ctx context.Context, tx *sql.Tx, uc domain.UseCase) error {
	res, err := tx.ExecContext(ctx, `UPDATE usecases SET title=?,description=?,important_notes=?,is_active=?,updated_at=? WHERE id=?`,
		uc.Title, nullable(uc.Description), nullable(uc.ImportantNotes), boolToInt(uc.IsActive), uc.UpdatedAt, uc.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteUseCase(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM usecases WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
