package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/internal/usage/domain"
	"github.com/datavista/metrica/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert is idempotent on (metric_id, resource_type, resource_id); it
// reports whether a new row was actually written. The conflict clause is
// rendered per dialect, so the same call works on postgres, sqlite and
// mysql.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, usage *domain.MetricUsage) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "metric_id"},
				{Name: "resource_type"},
				{Name: "resource_id"},
			},
			DoNothing: true,
		}).
		Create(usage)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, metricID snowflake.ID, resourceType domain.ResourceType, resourceID string) (*domain.MetricUsage, error) {
	var usage domain.MetricUsage
	err := db.WithContext(ctx).
		Where("metric_id = ? AND resource_type = ? AND resource_id = ?", metricID, resourceType, resourceID).
		Limit(1).
		Find(&usage).Error
	if err != nil {
		return nil, err
	}
	if usage.ID == 0 {
		return nil, nil
	}
	return &usage, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, metricID snowflake.ID, resourceType domain.ResourceType, resourceID string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM metric_usage
		WHERE metric_id = ? AND resource_type = ? AND resource_id = ?`,
		metricID, resourceType, resourceID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeleteByMetric(ctx context.Context, db *gorm.DB, metricID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM metric_usage WHERE metric_id = ?`,
		metricID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID, metricID snowflake.ID, page pagination.Pagination) ([]domain.MetricUsage, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.MetricUsage{}).
		Where("org_id = ?", orgID).
		Where("metric_id = ?", metricID)

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var usages []domain.MetricUsage
	err := stmt.
		Order("created_at desc, id desc").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&usages).Error
	if err != nil {
		return nil, 0, err
	}
	return usages, total, nil
}

func (r *repo) CountByMetric(ctx context.Context, db *gorm.DB, metricID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.MetricUsage{}).
		Where("metric_id = ?", metricID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AdjustUsageCount moves the denormalized counter on the definition row.
// It must run inside the same transaction as the usage row mutation.
func (r *repo) AdjustUsageCount(ctx context.Context, db *gorm.DB, metricID snowflake.ID, delta int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE metric_definition
		SET usage_count = CASE WHEN usage_count + ? < 0 THEN 0 ELSE usage_count + ? END
		WHERE id = ?`,
		delta, delta, metricID,
	).Error
}
