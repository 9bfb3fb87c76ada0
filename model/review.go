// model/review.go
package model

import "time"

// LoanPeriod is how long a borrowed book may be kept.
const LoanPeriod = 30 * 24 * time.Hour

// ReviewRecord links a user and a book for one borrow. It is append-only:
// a record is created Open when a borrow succeeds, closed exactly once when
// the book comes back, and never deleted. The store's `returned` column was
// historically named `reviewed`; Open means returned == false.
type ReviewRecord struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	BookID       int64      `json:"book_id"`
	DateReviewed time.Time  `json:"date_reviewed"`
	DueDate      time.Time  `json:"due_date"`
	Returned     bool       `json:"returned"`
	DateOfReturn *time.Time `json:"date_of_return,omitempty"`
}

// Open reports whether the loan is still outstanding.
func (r ReviewRecord) Open() bool { return !r.Returned }
