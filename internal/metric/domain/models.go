package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MetricDefinition is a named, typed, expression-backed computed value
// registered for reuse by charts, dashboards, widgets and storyboards.
type MetricDefinition struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_metric_definition_org_code,priority:1"`
	Code        string       `json:"code" gorm:"type:text;not null;uniqueIndex:ux_metric_definition_org_code,priority:2"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text"`
	Unit        string       `json:"unit" gorm:"type:text"`
	DataType    DataType     `json:"data_type" gorm:"type:text;not null"`
	Expression  string       `json:"expression" gorm:"type:text;not null"`
	SourceID    snowflake.ID `json:"source_id" gorm:"column:source_id;not null;index"`
	Status      Status       `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	Owner       string       `json:"owner" gorm:"type:text;not null"`

	// UsageCount caches the number of active usage rows for this metric.
	// It is maintained by the usage tracker inside the same transaction as
	// the usage row mutation and is never written by callers.
	UsageCount int64 `json:"usage_count" gorm:"not null;default:0"`

	CreatedBy string    `json:"created_by" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedBy string    `json:"updated_by" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MetricDefinition) TableName() string { return "metric_definition" }
