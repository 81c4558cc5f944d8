package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert adds the usage row unless the (metric_id, resource_type,
	// resource_id) key already exists. Returns whether a row was inserted.
	Insert(ctx context.Context, db *gorm.DB, usage *MetricUsage) (bool, error)
	// Delete removes the matching row. Returns whether a row was deleted.
	Find(ctx context.Context, db *gorm.DB, metricID snowflake.ID, resourceType ResourceType, resourceID string) (*MetricUsage, error)
	Delete(ctx context.Context, db *gorm.DB, metricID snowflake.ID, resourceType ResourceType, resourceID string) (bool, error)
	DeleteByMetric(ctx context.Context, db *gorm.DB, metricID snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, orgID, metricID snowflake.ID, page pagination.Pagination) ([]MetricUsage, int64, error)
	CountByMetric(ctx context.Context, db *gorm.DB, metricID snowflake.ID) (int64, error)
	// AdjustUsageCount shifts the cached usage_count on the owning
	// definition. Call it in the same transaction as the row mutation.
	AdjustUsageCount(ctx context.Context, db *gorm.DB, metricID snowflake.ID, delta int64) error
}
