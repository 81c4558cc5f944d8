package pagination

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

// Pagination is an offset/limit page request.
type Pagination struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20" validate:"gte=1,lte=250"`
}

// PageInfo describes the page that was returned. Total counts every row
// matching the filter, not just the rows on this page.
type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// Normalize clamps the request to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
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

func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

func (p Pagination) Limit() int {
	return p.Normalize().PageSize
}

func BuildPageInfo(page Pagination, total int64) PageInfo {
	page = page.Normalize()
	return PageInfo{
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    total,
	}
}
