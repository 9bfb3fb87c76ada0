// repository/user/repo.go
package userrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/CheropS/backend-library/model"
)

type Repo interface {
	Create(ctx context.Context, u *model.User) error
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByUsername(ctx context.Context, username string) (*model.User, error)
	All(ctx context.Context) ([]model.User, error)
	Promote(ctx context.Context, username string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) Create(ctx context.Context, u *model.User) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO users(email, username, first_name, last_name, password_hash)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, joined`,
		u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash,
	).Scan(&u.ID, &u.Joined)
}

const userCols = `id, email, username, first_name, last_name, password_hash, is_admin, joined`

func (r *repo) ByID(ctx context.Context, id int64) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+userCols+`
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsAdmin, &u.Joined)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *repo) ByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+userCols+`
		FROM users
		WHERE lower(username) = lower($1)`,
		username,
	).Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsAdmin, &u.Joined)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *repo) All(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userCols+`
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsAdmin, &u.Joined); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repo) Promote(ctx context.Context, username string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET is_admin = TRUE
		WHERE lower(username) = lower($1)`,
		username)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE id = $1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return errors.New("user not found")
	}
	return nil
}
