package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MetricUsage records that a visual resource consumes a metric definition.
// Rows are created on bind and deleted on unbind; they are never updated.
type MetricUsage struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	MetricID     snowflake.ID `json:"metric_id" gorm:"column:metric_id;not null;uniqueIndex:ux_metric_usage_key,priority:1"`
	ResourceType ResourceType `json:"resource_type" gorm:"type:text;not null;uniqueIndex:ux_metric_usage_key,priority:2"`
	ResourceID   string       `json:"resource_id" gorm:"type:text;not null;uniqueIndex:ux_metric_usage_key,priority:3"`
	ResourceName string       `json:"resource_name" gorm:"type:text;not null"`
	OrgID        snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	CreatedBy    string       `json:"created_by" gorm:"type:text;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MetricUsage) TableName() string { return "metric_usage" }
