package booksvc

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/CheropS/backend-library/model"
	isbnrepo "github.com/CheropS/backend-library/repository/isbn"
)

type ErrCode string

const (
	ErrNotFound      ErrCode = "BOOK_NOT_FOUND"
	ErrDuplicateISBN ErrCode = "DUPLICATE_ISBN"
	ErrBadInput      ErrCode = "BAD_INPUT"
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
	Create(ctx context.Context, b *model.Book) error
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Book, error)
	GetByID(ctx context.Context, id int64) (*model.Book, error)
}

type Service interface {
	Add(ctx context.Context, b model.Book) (*model.Book, error)
	Update(ctx context.Context, b model.Book) (*model.Book, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct {
	r    Repo
	isbn isbnrepo.Repo
}

func New(r Repo, isbn isbnrepo.Repo) Service { return &service{r: r, isbn: isbn} }

func (s *service) Add(ctx context.Context, b model.Book) (*model.Book, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.ISBN = strings.TrimSpace(b.ISBN)
	if b.Title == "" || b.ISBN == "" || b.Quantity < 0 {
		return nil, makeErr(ErrBadInput)
	}

	// Backfill author/publisher from the metadata service when the admin
	// left them blank. A failed lookup is not a failed add.
	if s.isbn != nil && (b.Author == "" || b.Publisher == "") {
		if info, err := s.isbn.Lookup(b.ISBN); err == nil {
			if b.Author == "" {
				b.Author = info.Author
			}
			if b.Publisher == "" {
				b.Publisher = info.Publisher
			}
		}
	}

	if err := s.r.Create(ctx, &b); err != nil {
		if isUniqueViolation(err) {
			return nil, makeErr(ErrDuplicateISBN)
		}
		return nil, err
	}
	return &b, nil
}

func (s *service) Update(ctx context.Context, b model.Book) (*model.Book, error) {
	if b.Title == "" || b.Author == "" || b.ISBN == "" || b.Publisher == "" || b.Quantity < 0 {
		return nil, makeErr(ErrBadInput)
	}
	if err := s.r.Update(ctx, &b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		if isUniqueViolation(err) {
			return nil, makeErr(ErrDuplicateISBN)
		}
		return nil, err
	}
	return &b, nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	if err := s.r.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]model.Book, error) {
	return s.r.List(ctx)
}

func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
