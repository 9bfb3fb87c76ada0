package reviewsvc

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/CheropS/backend-library/model"
	reviewrepo "github.com/CheropS/backend-library/repository/review"
)

// errors used by controllers

type ErrCode string

const (
	ErrUserNotFound    ErrCode = "USER_NOT_FOUND"
	ErrBookNotFound    ErrCode = "BOOK_NOT_FOUND"
	ErrUnavailable     ErrCode = "BOOK_UNAVAILABLE"
	ErrAlreadyBorrowed ErrCode = "ALREADY_BORROWED"
	ErrNotBorrowed     ErrCode = "NOT_BORROWED"
	ErrAlreadyReturned ErrCode = "ALREADY_RETURNED"
	ErrConflict        ErrCode = "CONFLICT"
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

// HistoryRow = repository shape
type HistoryRow = reviewrepo.HistoryRow

// Store runs a callback inside one transaction; commit and rollback are
// all-or-nothing.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type Users interface {
	ByID(ctx context.Context, id int64) (*model.User, error)
}

type Catalog interface {
	GetByID(ctx context.Context, id int64) (*model.Book, error)
	DecrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
	IncrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
}

type Ledger interface {
	FindOpen(ctx context.Context, tx *sql.Tx, userID, bookID int64) (*model.ReviewRecord, error)
	Create(ctx context.Context, tx *sql.Tx, userID, bookID int64, date time.Time) (*model.ReviewRecord, error)
	Close(ctx context.Context, tx *sql.Tx, recordID int64, date time.Time) error
	HistoryFor(ctx context.Context, userID int64) ([]HistoryRow, error)
	OpenFor(ctx context.Context, userID int64) ([]HistoryRow, error)
	OverdueAsOf(ctx context.Context, asOf time.Time) ([]HistoryRow, error)
}

type Service interface {
	// Borrow opens a loan and takes one copy off the shelf, atomically.
	Borrow(ctx context.Context, userID, bookID int64) (*model.Book, error)

	// Return closes the open loan for the pair and restocks the copy.
	Return(ctx context.Context, userID, bookID int64) error

	History(ctx context.Context, userID int64) ([]HistoryRow, error)
	Open(ctx context.Context, userID int64) ([]HistoryRow, error)
	Overdue(ctx context.Context) ([]HistoryRow, error)
}

// ----- Service implementation -----

type service struct {
	store  Store
	users  Users
	books  Catalog
	ledger Ledger
	now    func() time.Time
}

func New(store Store, users Users, books Catalog, ledger Ledger) Service {
	return &service{store: store, users: users, books: books, ledger: ledger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) Borrow(ctx context.Context, userID, bookID int64) (*model.Book, error) {
	book, err := s.resolve(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	// Fast-path check; the conditional decrement inside the transaction is
	// the authoritative one.
	if !book.Available() {
		return nil, makeErr(ErrUnavailable)
	}

	var snapshot *model.Book
	err = s.withRetry(ctx, func(tx *sql.Tx) error {
		// Reject a duplicate borrow up front for a clean error. The real
		// race guard is the partial unique index on open records: two
		// borrows that both pass this check cannot both insert.
		if _, err := s.ledger.FindOpen(ctx, tx, userID, bookID); err == nil {
			return makeErr(ErrAlreadyBorrowed)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := s.ledger.Create(ctx, tx, userID, bookID, s.now()); err != nil {
			if isUniqueViolation(err) {
				return makeErr(ErrAlreadyBorrowed)
			}
			return err
		}

		b, err := s.books.DecrementQuantity(ctx, tx, bookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrUnavailable)
			}
			return err
		}
		snapshot = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *service) Return(ctx context.Context, userID, bookID int64) error {
	if _, err := s.resolve(ctx, userID, bookID); err != nil {
		return err
	}

	return s.withRetry(ctx, func(tx *sql.Tx) error {
		rec, err := s.ledger.FindOpen(ctx, tx, userID, bookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrNotBorrowed)
			}
			return err
		}

		if err := s.ledger.Close(ctx, tx, rec.ID, s.now()); err != nil {
			// Lost the race against a concurrent return of the same loan.
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrAlreadyReturned)
			}
			return err
		}

		_, err = s.books.IncrementQuantity(ctx, tx, bookID)
		return err
	})
}

func (s *service) History(ctx context.Context, userID int64) ([]HistoryRow, error) {
	if _, err := s.users.ByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrUserNotFound)
		}
		return nil, err
	}
	return s.ledger.HistoryFor(ctx, userID)
}

func (s *service) Open(ctx context.Context, userID int64) ([]HistoryRow, error) {
	if _, err := s.users.ByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrUserNotFound)
		}
		return nil, err
	}
	return s.ledger.OpenFor(ctx, userID)
}

func (s *service) Overdue(ctx context.Context) ([]HistoryRow, error) {
	return s.ledger.OverdueAsOf(ctx, s.now())
}

// resolve checks the collaborator lookups shared by Borrow and Return.
func (s *service) resolve(ctx context.Context, userID, bookID int64) (*model.Book, error) {
	if _, err := s.users.ByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrUserNotFound)
		}
		return nil, err
	}
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrBookNotFound)
		}
		return nil, err
	}
	return book, nil
}

// withRetry reruns the transaction once after a commit-time conflict
// (serialization failure or deadlock); business-rule failures are never
// retried. A second conflict surfaces as Conflict.
func (s *service) withRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	err := s.store.WithinTx(ctx, fn)
	if err != nil && isRetryable(err) {
		err = s.store.WithinTx(ctx, fn)
		if err != nil && isRetryable(err) {
			return makeErr(ErrConflict)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}
