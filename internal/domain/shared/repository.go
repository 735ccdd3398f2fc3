package shared

// MaxPageSize caps list queries
const MaxPageSize = 200

// Filter is the list query shape shared by ledger repositories. Filters keys
// are repository specific; unknown keys are ignored.
type Filter struct {
	Page     int
	PageSize int
	Search   string
	OrderBy  string
	OrderDir string
	Filters  map[string]any
}

// Window returns offset and limit, ok is false when the filter is unpaged
func (f Filter) Window() (offset, limit int, ok bool) {
	if f.Page <= 0 || f.PageSize <= 0 {
		return 0, 0, false
	}
	limit = min(f.PageSize, MaxPageSize)
	return (f.Page - 1) * limit, limit, true
}

// Paginated is one page of a list result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	p := Paginated[T]{Items: items, Total: total, Page: page, PageSize: pageSize}
	if pageSize > 0 {
		p.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return p
}
