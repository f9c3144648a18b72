// Package pagination handles 1-indexed page windows over in-memory lists.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is a 1-indexed page and a positive page size.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams returns page 1 of 20.
func DefaultParams() Params {
	return Params{Page: DefaultPage, PerPage: DefaultPerPage}
}

// New clamps page below 1 to 1 and rejects a non-positive perPage with a
// validation error.
func New(page, perPage int) (Params, error) {
	if perPage <= 0 {
		return Params{}, apperrors.Validation(fmt.Sprintf("page size must be positive, got %d", perPage))
	}
	if page < 1 {
		page = 1
	}
	return Params{Page: page, PerPage: perPage}, nil
}

// FromValues reads page and per_page. Missing values take the defaults,
// per_page above MaxPerPage is capped, and non-numeric values are invalid input.
func FromValues(q url.Values) (Params, error) {
	page, err := intParam(q, "page", DefaultPage)
	if err != nil {
		return Params{}, err
	}
	perPage, err := intParam(q, "per_page", DefaultPerPage)
	if err != nil {
		return Params{}, err
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return New(page, perPage)
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be an integer, got %q", key, raw))
	}
	return v, nil
}

// Offset is the index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Window returns the [start, end) bounds of the page within total items. Both
// are total when the page lies past the end.
func (p Params) Window(total int) (start, end int) {
	if total <= 0 || p.PerPage <= 0 {
		return 0, 0
	}
	skipped := max(p.Page-1, 0)
	if skipped > (total-1)/p.PerPage {
		return total, total
	}
	start = skipped * p.PerPage
	return start, start + min(p.PerPage, total-start)
}

// Values encodes p as query parameters.
func (p Params) Values() url.Values {
	return url.Values{
		"page":     {strconv.Itoa(p.Page)},
		"per_page": {strconv.Itoa(p.PerPage)},
	}
}

// Slice returns the page of items. The result never aliases spare capacity of
// items and is empty, not nil, past the last page.
func Slice[T any](items []T, p Params) []T {
	start, end := p.Window(len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

// Result is a page of data with its totals.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult builds a Result for one page of data out of totalCount.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	totalPages := 0
	if params.PerPage > 0 {
		totalPages = (totalCount + params.PerPage - 1) / params.PerPage
	}
	if data == nil {
		data = []T{}
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
