package authsvc

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/CheropS/backend-library/model"
	tokenrepo "github.com/CheropS/backend-library/repository/token"
	userrepo "github.com/CheropS/backend-library/repository/user"
	"github.com/CheropS/backend-library/util/hash"
	jwtutil "github.com/CheropS/backend-library/util/jwt"
)

type ErrCode string

const (
	ErrEmailTaken    ErrCode = "EMAIL_TAKEN"
	ErrUsernameTaken ErrCode = "USERNAME_TAKEN"
	ErrBadInput      ErrCode = "BAD_INPUT"
	ErrInvalidCreds  ErrCode = "INVALID_CREDENTIALS"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Service interface {
	Register(ctx context.Context, req model.RegisterReq) (*model.User, string, error)
	Login(ctx context.Context, req model.LoginReq) (*model.User, string, error)
	Logout(ctx context.Context, rawToken string) error
	ResetPassword(ctx context.Context, userID int64, req model.ResetPasswordReq) error
}

type service struct {
	ur     userrepo.Repo
	tr     tokenrepo.Repo
	secret string
}

func New(ur userrepo.Repo, tr tokenrepo.Repo, secret string) Service {
	return &service{ur: ur, tr: tr, secret: secret}
}

func (s *service) Register(ctx context.Context, req model.RegisterReq) (*model.User, string, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" || len(req.Password) < 6 {
		return nil, "", makeErr(ErrBadInput)
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return nil, "", makeErr(ErrBadInput)
	}

	hashed, err := hash.HashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}

	u := &model.User{
		Email:        email,
		Username:     username,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hashed,
	}

	if err := s.ur.Create(ctx, u); err != nil {
		if derr := mapDuplicateErr(err); derr != nil {
			return nil, "", derr
		}
		return nil, "", err
	}

	token, err := jwtutil.Issue(s.secret, u.ID, roleOf(u), 24)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *service) Login(ctx context.Context, req model.LoginReq) (*model.User, string, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, "", makeErr(ErrBadInput)
	}

	u, err := s.ur.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", makeErr(ErrInvalidCreds)
		}
		return nil, "", err
	}
	if !hash.Check(u.PasswordHash, req.Password) {
		return nil, "", makeErr(ErrInvalidCreds)
	}

	token, err := jwtutil.Issue(s.secret, u.ID, roleOf(u), 24)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Logout stores the token in the revocation list; the auth middleware
// rejects it from then on, even though its signature stays valid.
func (s *service) Logout(ctx context.Context, rawToken string) error {
	tok := jwtutil.StripBearer(rawToken)
	if tok == "" {
		return makeErr(ErrBadInput)
	}
	return s.tr.Revoke(ctx, tok, time.Now().UTC())
}

func (s *service) ResetPassword(ctx context.Context, userID int64, req model.ResetPasswordReq) error {
	if len(req.NewPassword) < 6 {
		return makeErr(ErrBadInput)
	}
	u, err := s.ur.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrInvalidCreds)
		}
		return err
	}
	if !hash.Check(u.PasswordHash, req.OldPassword) {
		return makeErr(ErrInvalidCreds)
	}
	hashed, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.ur.UpdatePassword(ctx, userID, hashed)
}

func roleOf(u *model.User) string {
	if u.IsAdmin {
		return "admin"
	}
	return "user"
}

func mapDuplicateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		cn := strings.ToLower(pgErr.ConstraintName)
		msg := strings.ToLower(pgErr.Message)

		if strings.Contains(cn, "users_email") || strings.Contains(msg, "email") {
			return makeErr(ErrEmailTaken)
		}
		if strings.Contains(cn, "users_username") || strings.Contains(msg, "username") {
			return makeErr(ErrUsernameTaken)
		}
		return makeErr(ErrBadInput)
	}
	return nil
}
