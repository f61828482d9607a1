// Package utils provides small, generic helpers shared by the HTTP layer.
// Nothing here knows about the clinic domain.
package utils

import "strconv"

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty or
// not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage bounds a 1-based page number and a page size. A page below 1
// becomes 1; a size below 1 becomes 1 and a size above maxSize becomes
// maxSize.
func ClampPage(page, size, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return page, size
}

// Page returns the 1-based page of items holding at most size elements.
// Pages past the end are empty, never nil.
func Page[T any](items []T, page, size int) []T {
	page, size = ClampPage(page, size, 0)
	lo := (page - 1) * size
	if lo >= len(items) {
		return []T{}
	}
	hi := lo + size
	if hi > len(items) {
		hi = len(items)
	}
	return items[lo:hi]
}
