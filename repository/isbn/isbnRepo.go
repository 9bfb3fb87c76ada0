package isbnrepo

// BookInfo is the subset of metadata the catalog can backfill from an
// ISBN lookup.
type BookInfo struct {
	Title     string
	Author    string
	Publisher string
}

type Repo interface {
	Lookup(isbn string) (*BookInfo, error)
}
