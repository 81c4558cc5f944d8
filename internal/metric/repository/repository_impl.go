package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	"github.com/datavista/metrica/pkg/db/option"
	"github.com/datavista/metrica/pkg/db/pagination"
	"gorm.io/gorm"
)

const selectColumns = `id, org_id, code, name, description, unit, data_type, expression, source_id, status, owner, usage_count, created_by, created_at, updated_by, updated_at`

type repo struct{}

func Provide() metricdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *metricdomain.MetricDefinition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO metric_definition (id, org_id, code, name, description, unit, data_type, expression, source_id, status, owner, usage_count, created_by, created_at, updated_by, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.OrgID,
		m.Code,
		m.Name,
		m.Description,
		m.Unit,
		m.DataType,
		m.Expression,
		m.SourceID,
		m.Status,
		m.Owner,
		m.UsageCount,
		m.CreatedBy,
		m.CreatedAt,
		m.UpdatedBy,
		m.UpdatedAt,
	).Error
}

// Update guards on the status the caller read the row with, so an edit
// racing a lifecycle transition cannot land on a row that already left it.
func (r *repo) Update(ctx context.Context, db *gorm.DB, m *metricdomain.MetricDefinition) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE metric_definition
		 SET code = ?, name = ?, description = ?, unit = ?, data_type = ?, expression = ?, source_id = ?, owner = ?, updated_by = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		m.Code,
		m.Name,
		m.Description,
		m.Unit,
		m.DataType,
		m.Expression,
		m.SourceID,
		m.Owner,
		m.UpdatedBy,
		m.UpdatedAt,
		m.OrgID,
		m.ID,
		m.Status,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatus writes the next status only while the row still holds the
// expected prior one. RowsAffected decides concurrent transitions, so a
// later write can never rewind an earlier one.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to metricdomain.Status, updatedBy string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE metric_definition
		 SET status = ?, updated_by = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		to,
		updatedBy,
		time.Now().UTC(),
		orgID,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM metric_definition WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*metricdomain.MetricDefinition, error) {
	var metric metricdomain.MetricDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM metric_definition WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&metric).Error
	if err != nil {
		return nil, err
	}
	if metric.ID == 0 {
		return nil, nil
	}
	return &metric, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*metricdomain.MetricDefinition, error) {
	var metric metricdomain.MetricDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM metric_definition WHERE org_id = ? AND code = ?`,
		orgID,
		code,
	).Scan(&metric).Error
	if err != nil {
		return nil, err
	}
	if metric.ID == 0 {
		return nil, nil
	}
	return &metric, nil
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter metricdomain.SearchFilter, page pagination.Pagination) ([]metricdomain.MetricDefinition, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&metricdomain.MetricDefinition{}).
		Where("org_id = ?", orgID)

	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + strings.ToLower(keyword) + "%"
		stmt = stmt.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.SourceID != 0 {
		stmt = stmt.Where("source_id = ?", filter.SourceID)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var metrics []metricdomain.MetricDefinition
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&metrics).Error
	if err != nil {
		return nil, 0, err
	}
	return metrics, total, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status metricdomain.Status, sourceID snowflake.ID) ([]metricdomain.MetricDefinition, error) {
	var metrics []metricdomain.MetricDefinition
	stmt := db.WithContext(ctx).
		Model(&metricdomain.MetricDefinition{}).
		Where("org_id = ? AND status = ?", orgID, status)
	if sourceID != 0 {
		stmt = stmt.Where("source_id = ?", sourceID)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}
