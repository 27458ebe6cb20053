package auth

import (
	"strconv"
	"strings"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListQuery describes one page of a sorted listing.
type ListQuery struct {
	Page   int
	Limit  int
	SortBy string
	Desc   bool
	// Search filters on name-like columns (case-insensitive substring).
	Search string
	// Filters holds per-column substring filters; all of them must match.
	// Keys the store does not know are ignored.
	Filters map[string]string
	// ID restricts the listing to one row when positive.
	ID int64
}

// Filter sets a per-column filter. Blank values are dropped.
func (q *ListQuery) Filter(column, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if q.Filters == nil {
		q.Filters = make(map[string]string)
	}
	q.Filters[column] = value
}

// NewListQuery parses raw request values. sortBy must be one of allowed;
// anything else falls back to allowed[0]. Invalid numbers fall back to
// the defaults.
func NewListQuery(page, limit, sortBy, order string, allowed []string) ListQuery {
	q := ListQuery{Page: 1, Limit: DefaultPageLimit}
	if n, err := strconv.Atoi(strings.TrimSpace(page)); err == nil && n > 0 {
		q.Page = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && n > 0 {
		q.Limit = min(n, MaxPageLimit)
	}
	if len(allowed) > 0 {
		q.SortBy = allowed[0]
		sortBy = strings.TrimSpace(sortBy)
		for _, a := range allowed {
			if a == sortBy {
				q.SortBy = a
				break
			}
		}
	}
	q.Desc = strings.EqualFold(strings.TrimSpace(order), "desc")
	return q
}

// Offset is the number of rows to skip.
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.limit()
}

func (q ListQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultPageLimit
	}
	return q.Limit
}

// Order returns "ASC" or "DESC".
func (q ListQuery) Order() string {
	if q.Desc {
		return "DESC"
	}
	return "ASC"
}

// Page is one page of a listing.
type Page[T any] struct {
	List  []T `json:"list"`
	Count int `json:"count"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Limit int `json:"limit"`
}

// NewPage wraps items, count being the total number of matching rows.
func NewPage[T any](items []T, count int, q ListQuery) Page[T] {
	if items == nil {
		items = []T{}
	}
	limit := q.limit()
	page := q.Page
	if page < 1 {
		page = 1
	}
	return Page[T]{
		List:  items,
		Count: count,
		Page:  page,
		Pages: (count + limit - 1) / limit,
		Limit: limit,
	}
}

// MapPage converts the items of a page, keeping its counters.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.List))
	for _, item := range p.List {
		out = append(out, fn(item))
	}
	return Page[U]{List: out, Count: p.Count, Page: p.Page, Pages: p.Pages, Limit: p.Limit}
}
