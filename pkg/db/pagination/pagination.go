package pagination

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

type Pagination struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

type PageInfo struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// Normalize clamps the page to >= 1 and the limit to [1, MaxLimit].
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

func BuildPageInfo(p Pagination, total int64) *PageInfo {
	n := p.Normalize()
	return &PageInfo{
		Page:    n.Page,
		Limit:   n.Limit,
		Total:   total,
		HasMore: int64(n.Page*n.Limit) < total,
	}
}
