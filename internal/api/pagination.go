package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams holds parsed pagination query parameters.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination extracts page and per_page from the query. Missing or
// invalid values fall back to page 1 and 50 per page; per_page is capped at 200.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{Page: defaultPage, PerPage: defaultPerPage}
	q := r.URL.Query()

	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		p.PerPage = min(n, maxPerPage)
	}
	return p
}

// Offset returns the database offset for the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages calculates the total number of pages for a given total count.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	return int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// Paginate wraps one page of data with its metadata
func (p PaginationParams) Paginate(data interface{}, total int64) PaginatedResponse {
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      total,
			TotalPages: p.TotalPages(total),
		},
	}
}
