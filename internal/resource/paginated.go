package resource

// Paginated pairs the primary page with the "more" cursor. The two halves are
// updated independently by the producer and are never reconciled here.
type Paginated[T any] struct {
	Page Resource[[]T]
	More Resource[struct{}]
}

// NewPaginated returns a snapshot with an idle page and an idle cursor.
func NewPaginated[T any]() Paginated[T] {
	return Paginated[T]{Page: Idle[[]T](), More: Idle[struct{}]()}
}

// Items returns the page's carried list, which may be nil.
func (p Paginated[T]) Items() ([]T, bool) {
	return p.Page.Value()
}

// MoreAvailable reports whether another page may still be fetched.
func (p Paginated[T]) MoreAvailable() bool { return !p.More.IsExhausted() }

// MoreLoading reports whether the next page is being fetched.
func (p Paginated[T]) MoreLoading() bool { return p.More.IsLoading() }

// MoreErr returns the cause of the last failed "more" fetch, or nil.
func (p Paginated[T]) MoreErr() error {
	if p.More.IsError() {
		return p.More.Err()
	}
	return nil
}

func (p Paginated[T]) String() string {
	return "page=" + p.Page.String() + " more=" + p.More.String()
}
