package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/pkg/db/pagination"
)

type CreateRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	DataType    string `json:"data_type"`
	Expression  string `json:"expression"`
	SourceID    string `json:"source_id"`
	Owner       string `json:"owner"`
}

type UpdateRequest struct {
	ID          string  `json:"id"`
	Code        *string `json:"code,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	DataType    *string `json:"data_type,omitempty"`
	Expression  *string `json:"expression,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
	Owner       *string `json:"owner,omitempty"`
}

type SearchRequest struct {
	pagination.Pagination
	Keyword  string
	Status   string
	SourceID string
}

type SearchFilter struct {
	Keyword  string
	Status   Status
	SourceID snowflake.ID
}

type SearchResponse struct {
	pagination.PageInfo
	Metrics []Response `json:"metrics"`
}

type Response struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Unit           string    `json:"unit"`
	DataType       string    `json:"data_type"`
	Expression     string    `json:"expression"`
	SourceID       string    `json:"source_id"`
	Status         string    `json:"status"`
	Owner          string    `json:"owner"`
	UsageCount     int64     `json:"usage_count"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedBy      string    `json:"updated_by,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
	Delete(ctx context.Context, id string, force bool) error
	Publish(ctx context.Context, id string) (*Response, error)
	Archive(ctx context.Context, id string) (*Response, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidDataType     = errors.New("invalid_data_type")
	ErrInvalidExpression   = errors.New("invalid_expression")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrCodeExists          = errors.New("code_exists")
	ErrNotEditable         = errors.New("not_editable")
)

// StateError reports an illegal lifecycle operation together with the
// definition's current status so the caller can diagnose it.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s metric in status %s", e.Op, e.Status)
}

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
