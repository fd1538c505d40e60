// Package listing holds the paging and search-term rules shared by every
// list endpoint.
package listing

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps Offset far from overflow; pages past it are empty anyway
	MaxPage = 1_000_000
)

// Page is a 1-based page request
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps page and limit into their valid ranges
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// SearchTerm trims s and converts it to NFC so that Hangul typed on macOS
// (decomposed jamo) matches rows stored in composed form.
func SearchTerm(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
