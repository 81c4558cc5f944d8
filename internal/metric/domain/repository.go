package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, metric *MetricDefinition) error
	// Update writes the edited fields only while the row still holds the
	// status it was read with; the bool result reports whether it applied.
	Update(ctx context.Context, db *gorm.DB, metric *MetricDefinition) (bool, error)
	// UpdateStatus moves the row from the expected prior status to the next
	// one. A concurrent transition that got there first leaves the row
	// untouched and the result false.
	UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to Status, updatedBy string) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*MetricDefinition, error)
	FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*MetricDefinition, error)
	Search(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter SearchFilter, page pagination.Pagination) ([]MetricDefinition, int64, error)
	ListByStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status Status, sourceID snowflake.ID) ([]MetricDefinition, error)
}
