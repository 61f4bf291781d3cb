package pagination

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is the standard page size when one is not provided.
	DefaultPageSize = 25
	// MaxPageSize caps how many rows any list query can request.
	MaxPageSize = 100
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
	Ordering string
	Search   string
}

// FromRequest extracts pagination parameters from query string values.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return Normalize(Params{
		Page:     page,
		PageSize: pageSize,
		Ordering: strings.TrimSpace(q.Get("ordering")),
		Search:   strings.TrimSpace(q.Get("search")),
	})
}

// Normalize enforces the default and maximum page sizes.
func Normalize(p Params) Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return (page - 1) * p.Limit()
}

// Limit returns the normalized page size.
func (p Params) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// OrderClause maps the ordering parameter onto a SQL order expression using
// the allowed column set. Unknown fields fall back to the provided default.
func OrderClause(ordering string, allowed map[string]string, fallback string) string {
	field := strings.TrimSpace(ordering)
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")

	column, ok := allowed[field]
	if !ok {
		return fallback
	}
	if desc {
		return column + " DESC"
	}
	return column + " ASC"
}

// Page wraps a result slice with the total row count for list responses.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Pg    int `json:"page"`
	Size  int `json:"page_size"`
}

// NewPage builds a Page envelope from normalized params.
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Pg: p.Page, Size: p.Limit()}
}
