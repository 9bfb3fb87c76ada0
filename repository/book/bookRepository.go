package bookrepo

import (
	"context"
	"database/sql"

	"github.com/CheropS/backend-library/model"
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Book, error)
	GetByID(ctx context.Context, id int64) (*model.Book, error)

	// Quantity mutators run inside the caller's transaction so the ledger
	// write and the stock change commit or roll back together.
	// DecrementQuantity returns sql.ErrNoRows when no copy is left; the
	// conditional UPDATE is the only stock check.
	DecrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
	IncrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

const bookCols = `id, title, author, isbn, publisher, quantity, created`

func (r *repo) Create(ctx context.Context, b *model.Book) error {
	const q = `
		INSERT INTO books (title, author, isbn, publisher, quantity)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created`
	return r.db.QueryRowContext(ctx, q, b.Title, b.Author, b.ISBN, b.Publisher, b.Quantity).
		Scan(&b.ID, &b.Created)
}

func (r *repo) Update(ctx context.Context, b *model.Book) error {
	const q = `
		UPDATE books
		SET title = $2, author = $3, isbn = $4, publisher = $5, quantity = $6
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, b.ID, b.Title, b.Author, b.ISBN, b.Publisher, b.Quantity)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookCols+`
		FROM books
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Publisher, &b.Quantity, &b.Created); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	var b model.Book
	err := r.db.QueryRowContext(ctx, `
		SELECT `+bookCols+`
		FROM books
		WHERE id = $1`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Publisher, &b.Quantity, &b.Created)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) DecrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
	// Guard: only decrement while stock remains. Zero rows means out of stock.
	const q = `
		UPDATE books
		SET quantity = quantity - 1
		WHERE id = $1
		AND quantity > 0
		RETURNING ` + bookCols
	var b model.Book
	err := tx.QueryRowContext(ctx, q, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Publisher, &b.Quantity, &b.Created)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) IncrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
	const q = `
		UPDATE books
		SET quantity = quantity + 1
		WHERE id = $1
		RETURNING ` + bookCols
	var b model.Book
	err := tx.QueryRowContext(ctx, q, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Publisher, &b.Quantity, &b.Created)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
