// model/book.go
package model

import "time"

type Book struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn"`
	Publisher string    `json:"publisher"`
	Quantity  int64     `json:"quantity"`
	Created   time.Time `json:"created"`
}

// Available reports whether at least one copy is on the shelf.
func (b Book) Available() bool { return b.Quantity > 0 }

// BookResp is the catalog response shape; `available` is derived, never stored.
type BookResp struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn"`
	Publisher string `json:"publisher"`
	Quantity  int64  `json:"quantity"`
	Available bool   `json:"available"`
}

func (b Book) Resp() BookResp {
	return BookResp{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		ISBN:      b.ISBN,
		Publisher: b.Publisher,
		Quantity:  b.Quantity,
		Available: b.Available(),
	}
}
