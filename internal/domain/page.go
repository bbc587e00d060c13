package domain

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a window of a notification listing, newest first.
type PageRequest struct {
	Page    int `json:"page" query:"page"`
	PerPage int `json:"per_page" query:"per_page"`
}

// Normalize clamps the request to page >= 1 and 1 <= per_page <= MaxPageSize.
// A missing per_page falls back to DefaultPageSize.
func (r PageRequest) Normalize() PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PerPage < 1:
		r.PerPage = DefaultPageSize
	case r.PerPage > MaxPageSize:
		r.PerPage = MaxPageSize
	}
	return r
}

func (r PageRequest) Limit() int {
	return r.PerPage
}

func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PerPage
}

// Page is one window of a listing with the totals clients page on.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// NewPage wraps items fetched for req. Items is never nil so an empty
// listing encodes as [].
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	var pages int
	if req.PerPage > 0 {
		pages = int((total + int64(req.PerPage) - 1) / int64(req.PerPage))
	}
	return Page[T]{
		Items:      items,
		Page:       req.Page,
		PerPage:    req.PerPage,
		Total:      total,
		TotalPages: pages,
		HasMore:    req.Page < pages,
	}
}
