package option

import (
	"github.com/datavista/metrica/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a GORM statement before it is executed.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(stmt *gorm.DB) *gorm.DB {
	return f(stmt)
}

// ApplyPagination applies offset/limit from the page request.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		return stmt.Offset(page.Offset()).Limit(page.Limit())
	})
}

// OrderBy appends an ORDER BY expression.
func OrderBy(expr string) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		return stmt.Order(expr)
	})
}
