package option

import (
	"licensing-controlplane/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		n := p.Normalize()
		return db.Offset(n.Offset()).Limit(n.Limit)
	}
}

func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	}
}

func WithWhere(query any, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	}
}

func WithPreload(association string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Preload(association, args...)
	}
}

func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}
