package usersvc

import (
	"context"
	"database/sql"
	"errors"

	"github.com/CheropS/backend-library/model"
)

type ErrCode string

const (
	ErrNotFound ErrCode = "USER_NOT_FOUND"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Repo interface {
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByUsername(ctx context.Context, username string) (*model.User, error)
	All(ctx context.Context) ([]model.User, error)
	Promote(ctx context.Context, username string) error
}

type Service interface {
	Get(ctx context.Context, id int64) (*model.User, error)
	All(ctx context.Context) ([]model.User, error)

	// PromoteToAdmin grants the admin role; an explicit operation, not a
	// side effect of reading a field.
	PromoteToAdmin(ctx context.Context, username string) error
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func (s *service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.r.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	return u, nil
}

func (s *service) All(ctx context.Context) ([]model.User, error) {
	return s.r.All(ctx)
}

func (s *service) PromoteToAdmin(ctx context.Context, username string) error {
	if err := s.r.Promote(ctx, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		return err
	}
	return nil
}
