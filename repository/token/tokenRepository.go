package tokenrepo

import (
	"context"
	"database/sql"
	"time"
)

// Repo stores revoked JWTs so logout actually invalidates a token before
// it expires.
type Repo interface {
	Revoke(ctx context.Context, token string, at time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) Revoke(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token, date_revoked)
		VALUES ($1, $2)`,
		token, at)
	return err
}

func (r *repo) IsRevoked(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM revoked_tokens WHERE token = $1
		)`, token).Scan(&exists)
	return exists, err
}
