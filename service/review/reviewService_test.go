package reviewsvc

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/CheropS/backend-library/model"
)

// memStore backs the whole service in memory for tests. WithinTx holds the
// mutex for the duration of the callback and restores a snapshot on error,
// so transactions are serialized and all-or-nothing, the same contract the
// real store gives via Postgres.
type memStore struct {
	mu      sync.Mutex
	users   map[int64]model.User
	books   map[int64]model.Book
	records []model.ReviewRecord
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[int64]model.User{},
		books:  map[int64]model.Book{},
		nextID: 1,
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	booksSnap := make(map[int64]model.Book, len(m.books))
	for k, v := range m.books {
		booksSnap[k] = v
	}
	recordsSnap := make([]model.ReviewRecord, len(m.records))
	copy(recordsSnap, m.records)
	idSnap := m.nextID

	if err := fn(nil); err != nil {
		m.books = booksSnap
		m.records = recordsSnap
		m.nextID = idSnap
		return err
	}
	return nil
}

func (m *memStore) ByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m *memStore) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

// Catalog mutators run inside WithinTx, which already holds the mutex.

func (m *memStore) DecrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
	b, ok := m.books[id]
	if !ok || b.Quantity <= 0 {
		return nil, sql.ErrNoRows
	}
	b.Quantity--
	m.books[id] = b
	return &b, nil
}

func (m *memStore) IncrementQuantity(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
	b, ok := m.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	b.Quantity++
	m.books[id] = b
	return &b, nil
}

func (m *memStore) FindOpen(ctx context.Context, tx *sql.Tx, userID, bookID int64) (*model.ReviewRecord, error) {
	for i := range m.records {
		r := m.records[i]
		if r.UserID == userID && r.BookID == bookID && !r.Returned {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) Create(ctx context.Context, tx *sql.Tx, userID, bookID int64, date time.Time) (*model.ReviewRecord, error) {
	for _, r := range m.records {
		if r.UserID == userID && r.BookID == bookID && !r.Returned {
			return nil, uniqueViolationErr()
		}
	}
	rec := model.ReviewRecord{
		ID:           m.nextID,
		UserID:       userID,
		BookID:       bookID,
		DateReviewed: date,
		DueDate:      date.Add(model.LoanPeriod),
	}
	m.nextID++
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *memStore) Close(ctx context.Context, tx *sql.Tx, recordID int64, date time.Time) error {
	for i := range m.records {
		if m.records[i].ID == recordID {
			if m.records[i].Returned {
				return sql.ErrNoRows
			}
			m.records[i].Returned = true
			d := date
			m.records[i].DateOfReturn = &d
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) HistoryFor(ctx context.Context, userID int64) ([]HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rowsFor(userID, false), nil
}

func (m *memStore) OpenFor(ctx context.Context, userID int64) ([]HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rowsFor(userID, true), nil
}

func (m *memStore) OverdueAsOf(ctx context.Context, asOf time.Time) ([]HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryRow
	for _, r := range m.records {
		if !r.Returned && r.DueDate.Before(asOf) {
			out = append(out, m.toRow(r))
		}
	}
	return out, nil
}

func (m *memStore) rowsFor(userID int64, openOnly bool) []HistoryRow {
	var out []HistoryRow
	for _, r := range m.records {
		if r.UserID != userID {
			continue
		}
		if openOnly && r.Returned {
			continue
		}
		out = append(out, m.toRow(r))
	}
	return out
}

func (m *memStore) toRow(r model.ReviewRecord) HistoryRow {
	b := m.books[r.BookID]
	row := HistoryRow{
		RecordID:   r.ID,
		BookID:     r.BookID,
		Title:      b.Title,
		Author:     b.Author,
		ISBN:       b.ISBN,
		ReviewDate: r.DateReviewed,
	}
	if r.Returned {
		row.Status = "RETURNED"
		row.ReturnDate = r.DateOfReturn
	} else {
		row.Status = "OPEN"
		due := r.DueDate
		row.DueDate = &due
	}
	return row
}

// openCount is the invariant helper: open records for a book.
func (m *memStore) openCount(bookID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.BookID == bookID && !r.Returned {
			n++
		}
	}
	return n
}

func (m *memStore) quantity(bookID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[bookID].Quantity
}

// uniqueViolationErr mimics what Postgres raises when the partial unique
// index on open records is hit.
func uniqueViolationErr() error {
	return &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: "reviews_open_user_book",
		Message:        "duplicate key value violates unique constraint",
	}
}

func fixture(t *testing.T) (*memStore, Service) {
	t.Helper()
	st := newMemStore()
	st.users[1] = model.User{ID: 1, Username: "achieng"}
	st.users[2] = model.User{ID: 2, Username: "brian"}
	st.books[1] = model.Book{ID: 1, Title: "The River and the Source", ISBN: "9789966882059", Quantity: 1}
	st.books[2] = model.Book{ID: 2, Title: "Siku Njema", ISBN: "9789966467953", Quantity: 3}
	svc := New(st, st, st, st)
	return st, svc
}

func TestBorrow_Success(t *testing.T) {
	st, svc := fixture(t)

	book, err := svc.Borrow(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), book.Quantity)

	require.Equal(t, 1, st.openCount(2))
	require.Equal(t, int64(2), st.quantity(2))
}

func TestBorrow_UserNotFound(t *testing.T) {
	_, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 99, 1)
	require.Error(t, err)
	require.Equal(t, ErrUserNotFound, Code(err))
}

func TestBorrow_BookNotFound(t *testing.T) {
	_, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 1, 99)
	require.Error(t, err)
	require.Equal(t, ErrBookNotFound, Code(err))
}

func TestBorrow_Unavailable(t *testing.T) {
	st, svc := fixture(t)
	st.books[3] = model.Book{ID: 3, Title: "Out of Stock", ISBN: "x", Quantity: 0}

	_, err := svc.Borrow(context.Background(), 1, 3)
	require.Error(t, err)
	require.Equal(t, ErrUnavailable, Code(err))
	require.Equal(t, 0, st.openCount(3))
}

func TestBorrow_AlreadyBorrowed(t *testing.T) {
	st, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 1, 2)
	require.NoError(t, err)

	_, err = svc.Borrow(context.Background(), 1, 2)
	require.Error(t, err)
	require.Equal(t, ErrAlreadyBorrowed, Code(err))

	// The failed borrow must not leak a record or touch the stock.
	require.Equal(t, 1, st.openCount(2))
	require.Equal(t, int64(2), st.quantity(2))
}

func TestReturn_Success(t *testing.T) {
	st, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), st.quantity(1))

	err = svc.Return(context.Background(), 1, 1)
	require.NoError(t, err)

	require.Equal(t, 0, st.openCount(1))
	require.Equal(t, int64(1), st.quantity(1))
	require.True(t, st.records[0].Returned)
	require.NotNil(t, st.records[0].DateOfReturn)
}

func TestReturn_NotBorrowed(t *testing.T) {
	_, svc := fixture(t)

	err := svc.Return(context.Background(), 1, 1)
	require.Error(t, err)
	require.Equal(t, ErrNotBorrowed, Code(err))
}

func TestReturn_Twice(t *testing.T) {
	_, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Return(context.Background(), 1, 1))

	err = svc.Return(context.Background(), 1, 1)
	require.Error(t, err)
	require.Equal(t, ErrNotBorrowed, Code(err))
}

func TestBorrowReturnBorrowAgain(t *testing.T) {
	st, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Return(context.Background(), 1, 1))
	_, err = svc.Borrow(context.Background(), 1, 1)
	require.NoError(t, err)

	// Two distinct records: the first closed, the second open.
	require.Len(t, st.records, 2)
	require.True(t, st.records[0].Returned)
	require.False(t, st.records[1].Returned)
	require.NotEqual(t, st.records[0].ID, st.records[1].ID)
}

func TestConcurrentBorrow_LastCopy(t *testing.T) {
	st, svc := fixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Borrow(context.Background(), int64(i+1), 1)
		}(i)
	}
	wg.Wait()

	ok, failed := 0, 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		failed++
		code := Code(err)
		require.Contains(t, []ErrCode{ErrUnavailable, ErrConflict}, code)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, failed)
	require.Equal(t, int64(0), st.quantity(1))
	require.Equal(t, 1, st.openCount(1))
}

// racyLedger simulates the window where two borrows both pass the
// duplicate precheck: FindOpen claims there is no open record, so the
// partial unique index is the only thing standing.
type racyLedger struct{ *memStore }

func (r racyLedger) FindOpen(ctx context.Context, tx *sql.Tx, userID, bookID int64) (*model.ReviewRecord, error) {
	return nil, sql.ErrNoRows
}

func TestBorrow_UniqueIndexCatchesRace(t *testing.T) {
	st, svc := fixture(t)

	_, err := svc.Borrow(context.Background(), 1, 2)
	require.NoError(t, err)

	racy := New(st, st, st, racyLedger{st})
	_, err = racy.Borrow(context.Background(), 1, 2)
	require.Error(t, err)
	require.Equal(t, ErrAlreadyBorrowed, Code(err))

	require.Equal(t, 1, st.openCount(2))
	require.Equal(t, int64(2), st.quantity(2))
}

// flakyStore fails the first n transactions with a serialization error.
type flakyStore struct {
	inner    Store
	failures int
}

func (f *flakyStore) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if f.failures > 0 {
		f.failures--
		return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	}
	return f.inner.WithinTx(ctx, fn)
}

func TestBorrow_RetriesCommitConflictOnce(t *testing.T) {
	st, _ := fixture(t)

	svc := New(&flakyStore{inner: st, failures: 1}, st, st, st)
	book, err := svc.Borrow(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), book.Quantity)
}

func TestBorrow_ConflictAfterRetryBudget(t *testing.T) {
	st, _ := fixture(t)

	svc := New(&flakyStore{inner: st, failures: 2}, st, st, st)
	_, err := svc.Borrow(context.Background(), 1, 2)
	require.Error(t, err)
	require.Equal(t, ErrConflict, Code(err))
	require.Equal(t, int64(3), st.quantity(2))
	require.Equal(t, 0, st.openCount(2))
}

func TestQuantityLedgerInvariant(t *testing.T) {
	st, svc := fixture(t)
	ctx := context.Background()
	const initial = 3 // book 2

	_, _ = svc.Borrow(ctx, 1, 2)
	_, _ = svc.Borrow(ctx, 2, 2)
	_ = svc.Return(ctx, 1, 2)
	_, _ = svc.Borrow(ctx, 1, 2)
	_, _ = svc.Borrow(ctx, 1, 2) // duplicate, must fail
	_ = svc.Return(ctx, 2, 2)

	require.Equal(t, int64(initial), st.quantity(2)+int64(st.openCount(2)))
	require.LessOrEqual(t, st.openCount(2), 2)
}

func TestLastCopyScenario(t *testing.T) {
	st, svc := fixture(t)
	ctx := context.Background()

	// User A takes the only copy.
	book, err := svc.Borrow(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), book.Quantity)

	// User B is turned away.
	_, err = svc.Borrow(ctx, 2, 1)
	require.Equal(t, ErrUnavailable, Code(err))

	// A returns, shelf restocked.
	require.NoError(t, svc.Return(ctx, 1, 1))
	require.Equal(t, int64(1), st.quantity(1))

	// Now B can borrow.
	_, err = svc.Borrow(ctx, 2, 1)
	require.NoError(t, err)
}

func TestHistoryAndOpenViews(t *testing.T) {
	_, svc := fixture(t)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, 1, 1)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 1, 2)
	require.NoError(t, err)
	require.NoError(t, svc.Return(ctx, 1, 1))

	hist, err := svc.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	require.Equal(t, "RETURNED", hist[0].Status)
	require.NotNil(t, hist[0].ReturnDate)
	require.Nil(t, hist[0].DueDate)

	require.Equal(t, "OPEN", hist[1].Status)
	require.NotNil(t, hist[1].DueDate)
	require.Nil(t, hist[1].ReturnDate)

	open, err := svc.Open(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(2), open[0].BookID)
}

func TestHistory_UserNotFound(t *testing.T) {
	_, svc := fixture(t)

	_, err := svc.History(context.Background(), 99)
	require.Equal(t, ErrUserNotFound, Code(err))
}

func TestDueDateFixedAtCreation(t *testing.T) {
	st, svc := fixture(t)

	before := time.Now().UTC()
	_, err := svc.Borrow(context.Background(), 1, 1)
	require.NoError(t, err)
	after := time.Now().UTC()

	due := st.records[0].DueDate
	require.False(t, due.Before(before.Add(model.LoanPeriod)))
	require.False(t, due.After(after.Add(model.LoanPeriod)))
}

func TestOverdue(t *testing.T) {
	st, svc := fixture(t)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, 1, 1)
	require.NoError(t, err)

	rows, err := svc.Overdue(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	// Age the loan past its due date.
	st.mu.Lock()
	st.records[0].DueDate = time.Now().UTC().Add(-time.Hour)
	st.mu.Unlock()

	rows, err = svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "OPEN", rows[0].Status)
}
