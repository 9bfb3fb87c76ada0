// repository/review/repo.go
package reviewrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/CheropS/backend-library/model"
)

// HistoryRow is one line of a user's loan history: the book summary plus
// either the due date (open loan) or the return date (closed loan).
type HistoryRow struct {
	RecordID   int64      `json:"record_id"`
	BookID     int64      `json:"book_id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	ISBN       string     `json:"isbn"`
	ReviewDate time.Time  `json:"review_date"`
	Status     string     `json:"status"` // OPEN | RETURNED
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
}

type Repo interface {
	// FindOpen returns the single open record for the pair, or sql.ErrNoRows.
	FindOpen(ctx context.Context, tx *sql.Tx, userID, bookID int64) (*model.ReviewRecord, error)

	// Create inserts a new open record; due date is fixed at creation.
	// A second open record for the same pair violates the partial unique
	// index and surfaces as a pgerrcode.UniqueViolation.
	Create(ctx context.Context, tx *sql.Tx, userID, bookID int64, date time.Time) (*model.ReviewRecord, error)

	// Close marks a record returned. Zero rows affected means it was
	// already closed.
	Close(ctx context.Context, tx *sql.Tx, recordID int64, date time.Time) error

	HistoryFor(ctx context.Context, userID int64) ([]HistoryRow, error)
	OpenFor(ctx context.Context, userID int64) ([]HistoryRow, error)
	OverdueAsOf(ctx context.Context, asOf time.Time) ([]HistoryRow, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) FindOpen(ctx context.Context, tx *sql.Tx, userID, bookID int64) (*model.ReviewRecord, error) {
	const q = `
		SELECT id, user_id, book_id, date_reviewed, due_date, returned, date_of_return
		FROM reviews
		WHERE user_id = $1
		AND book_id = $2
		AND NOT returned`
	rec := &model.ReviewRecord{}
	err := tx.QueryRowContext(ctx, q, userID, bookID).
		Scan(&rec.ID, &rec.UserID, &rec.BookID, &rec.DateReviewed, &rec.DueDate, &rec.Returned, &rec.DateOfReturn)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repo) Create(ctx context.Context, tx *sql.Tx, userID, bookID int64, date time.Time) (*model.ReviewRecord, error) {
	const q = `
		INSERT INTO reviews (user_id, book_id, date_reviewed, due_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	rec := &model.ReviewRecord{
		UserID:       userID,
		BookID:       bookID,
		DateReviewed: date,
		DueDate:      date.Add(model.LoanPeriod),
	}
	if err := tx.QueryRowContext(ctx, q, userID, bookID, rec.DateReviewed, rec.DueDate).Scan(&rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repo) Close(ctx context.Context, tx *sql.Tx, recordID int64, date time.Time) error {
	// Idempotence guard: closing twice affects zero rows.
	const q = `
		UPDATE reviews
		SET returned = TRUE,
			date_of_return = $2
		WHERE id = $1
		AND NOT returned`
	res, err := tx.ExecContext(ctx, q, recordID, date)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const historySelect = `
	SELECT
		r.id            AS record_id,
		r.book_id       AS book_id,
		b.title         AS title,
		b.author        AS author,
		b.isbn          AS isbn,
		r.date_reviewed AS review_date,
		r.returned      AS returned,
		r.due_date      AS due_date,
		r.date_of_return AS return_date
	FROM reviews r
	JOIN books b ON b.id = r.book_id`

func (r *repo) HistoryFor(ctx context.Context, userID int64) ([]HistoryRow, error) {
	const q = historySelect + `
	WHERE r.user_id = $1
	ORDER BY r.id`
	return r.queryRows(ctx, q, userID)
}

func (r *repo) OpenFor(ctx context.Context, userID int64) ([]HistoryRow, error) {
	const q = historySelect + `
	WHERE r.user_id = $1
	AND NOT r.returned
	ORDER BY r.id`
	return r.queryRows(ctx, q, userID)
}

func (r *repo) OverdueAsOf(ctx context.Context, asOf time.Time) ([]HistoryRow, error) {
	const q = historySelect + `
	WHERE NOT r.returned
	AND r.due_date < $1
	ORDER BY r.due_date, r.id`
	return r.queryRows(ctx, q, asOf)
}

func (r *repo) queryRows(ctx context.Context, q string, arg any) ([]HistoryRow, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var (
			h        HistoryRow
			returned bool
			due      time.Time
		)
		if err := rows.Scan(
			&h.RecordID, &h.BookID, &h.Title, &h.Author, &h.ISBN,
			&h.ReviewDate, &returned, &due, &h.ReturnDate,
		); err != nil {
			return nil, err
		}
		if returned {
			h.Status = "RETURNED"
		} else {
			h.Status = "OPEN"
			h.DueDate = &due
			h.ReturnDate = nil
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
