// Package paging holds the page request and page result types shared by the
// list operations of every repository.
package paging

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Page selects a window of results. Number is 1-based.
type Page struct {
	Number  int
	PerPage int
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the SQL OFFSET for a normalized page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// Result is one page of items plus totals.
type Result[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// NewResult builds a Result for a normalized page.
func NewResult[T any](items []T, total int, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Result[T]{
		Items:      items,
		Total:      total,
		Page:       p.Number,
		PerPage:    p.PerPage,
		TotalPages: pages,
	}
}
