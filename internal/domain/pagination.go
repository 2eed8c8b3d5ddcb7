package domain

// Pagination limits. Limit is clamped to [1, maxPageSize]; page defaults to 1.
const (
	DefaultPageSize = 10
	maxPageSize     = 100
)

// Pagination carries normalized page parameters for list queries.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// NormalizePagination clamps raw page/limit values to their legal ranges.
// page <= 0 defaults to 1; limit <= 0 defaults to DefaultPageSize;
// limit > 100 is clamped to 100.
func NormalizePagination(page, limit int) Pagination {
	if page <= 0 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return Pagination{Page: page, Limit: limit}
}

// Offset returns the row offset for the normalized page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages computes ceil(total/limit) for the normalized limit.
func (p Pagination) Pages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Paginated is the standard envelope for list results.
type Paginated[T any] struct {
	Data  []T `json:"data"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPaginated assembles a result envelope from a page of rows and the total count.
func NewPaginated[T any](data []T, p Pagination, total int) Paginated[T] {
	if data == nil {
		data = []T{}
	}
	return Paginated[T]{
		Data:  data,
		Page:  p.Page,
		Limit: p.Limit,
		Total: total,
		Pages: p.Pages(total),
	}
}
