package domain

import (
	"context"
	"errors"
	"time"

	usagedomain "github.com/datavista/metrica/internal/usage/domain"
)

// SelectableMetric is the trimmed view of a published definition offered
// to resource editors when they pick a metric to bind.
type SelectableMetric struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Unit        string `json:"unit,omitempty"`
	DataType    string `json:"data_type"`
	SourceID    string `json:"source_id"`
}

type ListSelectableRequest struct {
	SourceID string
}

type ListSelectableResponse struct {
	Metrics []SelectableMetric `json:"metrics"`
}

type BindRequest struct {
	MetricID     string `json:"metric_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ResourceName string `json:"resource_name"`
}

type BindResponse struct {
	Usage     usagedomain.Response `json:"usage"`
	Bound     bool                 `json:"bound"`
	CreatedAt time.Time            `json:"created_at"`
}

type UnbindRequest struct {
	MetricID     string `json:"metric_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

type Service interface {
	// ListSelectable returns the published definitions a resource may bind,
	// optionally narrowed to one data source.
	ListSelectable(ctx context.Context, req ListSelectableRequest) (ListSelectableResponse, error)
	Bind(ctx context.Context, req BindRequest) (*BindResponse, error)
	Unbind(ctx context.Context, req UnbindRequest) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidMetric       = errors.New("invalid_metric")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrMetricNotFound      = errors.New("metric_not_found")
)
