package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/pkg/db/pagination"
)

// ResourceType identifies the kind of resource consuming a metric.
type ResourceType string

const (
	ResourceDashboard  ResourceType = "DASHBOARD"
	ResourceDatachart  ResourceType = "DATACHART"
	ResourceWidget     ResourceType = "WIDGET"
	ResourceStoryboard ResourceType = "STORYBOARD"
)

var resourceTypes = map[ResourceType]bool{
	ResourceDashboard:  true,
	ResourceDatachart:  true,
	ResourceWidget:     true,
	ResourceStoryboard: true,
}

func (t ResourceType) Valid() bool {
	return resourceTypes[t]
}

func ParseResourceType(raw string) (ResourceType, bool) {
	resourceType := ResourceType(strings.ToUpper(strings.TrimSpace(raw)))
	if !resourceType.Valid() {
		return "", false
	}
	return resourceType, true
}

type RecordRequest struct {
	MetricID     string `json:"metric_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ResourceName string `json:"resource_name"`
}

type RemoveRequest struct {
	MetricID     string `json:"metric_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

type ListRequest struct {
	pagination.Pagination
	MetricID string
}

type ListResponse struct {
	pagination.PageInfo
	Usages []Response `json:"usages"`
}

type Response struct {
	ID             string    `json:"id"`
	MetricID       string    `json:"metric_id"`
	ResourceType   string    `json:"resource_type"`
	ResourceID     string    `json:"resource_id"`
	ResourceName   string    `json:"resource_name"`
	OrganizationID string    `json:"organization_id"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type Service interface {
	// Record upserts the usage row; repeated calls with the same key are
	// no-ops. The bool result reports whether a row was actually inserted.
	Record(ctx context.Context, req RecordRequest) (*Response, bool, error)
	// Remove deletes the usage row if present. Absent rows are not an error.
	Remove(ctx context.Context, req RemoveRequest) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// GuardDeletion fails with an InUseError when the metric still has
	// active consumers and force is false.
	GuardDeletion(ctx context.Context, metricID string, force bool) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidMetric       = errors.New("invalid_metric")
	ErrInvalidResourceType = errors.New("invalid_resource_type")
	ErrInvalidResourceID   = errors.New("invalid_resource_id")
	ErrInvalidResourceName = errors.New("invalid_resource_name")
)

// InUseError blocks deletion of a metric that still has active consumers.
// The count lets the operator inspect usages before retrying with force.
type InUseError struct {
	MetricID   snowflake.ID
	UsageCount int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("metric in use by %d resource(s)", e.UsageCount)
}

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
