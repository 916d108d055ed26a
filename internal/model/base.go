package model

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps Offset well inside int range on every platform.
	MaxPage = 1_000_000
)

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1,max=1000000"`
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Normalize applies defaults and clamps the page and page size.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
