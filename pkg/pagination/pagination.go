package pagination

import (
	"net/http"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100
)

// Params holds pagination parameters for a list query. Offset is derived
// from Page and PerPage and is what repositories feed into LIMIT/OFFSET.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{
		Page:    defaultPage,
		PerPage: defaultPerPage,
		Offset:  0,
	}
}

// New builds Params from raw page/perPage values, falling back to defaults
// for anything out of bounds. Out-of-range per_page falls back rather than
// clamping so a caller asking for 5000 rows gets the default page size, not
// the maximum.
func New(page, perPage int) Params {
	p := DefaultParams()
	if page > 0 {
		p.Page = page
	}
	if perPage > 0 && perPage <= maxPerPage {
		p.PerPage = perPage
	}
	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// FromRequest extracts pagination parameters from the request's query string.
// Missing or invalid values fall back to defaults.
func FromRequest(r *http.Request) Params {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return New(page, perPage)
}

// Result wraps one page of a list response.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a paginated result from one page of data and the total
// row count.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	totalPages := totalCount / params.PerPage
	if totalCount%params.PerPage > 0 {
		totalPages++
	}

	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
