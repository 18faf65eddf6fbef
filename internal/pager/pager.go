// Package pager slices an ordered result set into fixed-size pages.
package pager

// Page is one slice of a paginated sequence.
type Page[T any] struct {
	Items      []T
	Page       int
	TotalPages int
}

// HasPrev reports whether a previous page exists.
func (p Page[T]) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages }

// TotalPages returns ceil(n/size). It is 0 for an empty sequence.
func TotalPages(n, size int) int {
	if size < 1 {
		size = 1
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Clamp moves page into [1, total]. With zero pages the result is 1.
func Clamp(page, total int) int {
	if page > total {
		page = total
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate returns the requested page of items. Out-of-range pages clamp to
// the nearest bound instead of failing.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size < 1 {
		size = 1
	}
	total := TotalPages(len(items), size)
	page = Clamp(page, total)

	start := (page - 1) * size
	if start >= len(items) {
		return Page[T]{Items: []T{}, Page: page, TotalPages: total}
	}
	end := min(start+size, len(items))
	return Page[T]{Items: items[start:end], Page: page, TotalPages: total}
}
