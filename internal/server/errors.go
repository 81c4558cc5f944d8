package server

import (
	"errors"
	"net/http"
	"strings"

	auditdomain "github.com/datavista/metrica/internal/audit/domain"
	"github.com/datavista/metrica/internal/authorization"
	catalogdomain "github.com/datavista/metrica/internal/catalog/domain"
	"github.com/datavista/metrica/internal/expr"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var exprErr *expr.ValidationError
	if errors.As(err, &exprErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "expression",
					Code:    "invalid_expression",
					Message: exprErr.Message,
				},
			},
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var stateErr *metricdomain.StateError
	if errors.As(err, &stateErr) {
		return http.StatusConflict, errorPayload{
			Type:    "state_error",
			Message: stateErr.Error(),
			Details: map[string]any{
				"operation": stateErr.Op,
				"status":    string(stateErr.Status),
			},
		}
	}

	var inUseErr *usagedomain.InUseError
	if errors.As(err, &inUseErr) {
		return http.StatusConflict, errorPayload{
			Type:    "metric_in_use",
			Message: inUseErr.Error(),
			Details: map[string]any{
				"metric_id":   inUseErr.MetricID.String(),
				"usage_count": inUseErr.UsageCount,
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, metricdomain.ErrCodeExists),
		errors.Is(err, metricdomain.ErrNotEditable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isMetricValidationError(err),
		isUsageValidationError(err),
		isCatalogValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isMetricValidationError(err error) bool {
	switch {
	case errors.Is(err, metricdomain.ErrInvalidOrganization),
		errors.Is(err, metricdomain.ErrInvalidCode),
		errors.Is(err, metricdomain.ErrInvalidName),
		errors.Is(err, metricdomain.ErrInvalidDataType),
		errors.Is(err, metricdomain.ErrInvalidExpression),
		errors.Is(err, metricdomain.ErrInvalidSource),
		errors.Is(err, metricdomain.ErrInvalidStatus),
		errors.Is(err, metricdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isUsageValidationError(err error) bool {
	switch {
	case errors.Is(err, usagedomain.ErrInvalidOrganization),
		errors.Is(err, usagedomain.ErrInvalidMetric),
		errors.Is(err, usagedomain.ErrInvalidResourceType),
		errors.Is(err, usagedomain.ErrInvalidResourceID),
		errors.Is(err, usagedomain.ErrInvalidResourceName):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrInvalidOrganization),
		errors.Is(err, catalogdomain.ErrInvalidMetric),
		errors.Is(err, catalogdomain.ErrInvalidSource):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, metricdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrMetricNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, metricdomain.ErrCodeExists):
		return "metric code already exists"
	case errors.Is(err, metricdomain.ErrNotEditable):
		return "metric is not editable"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Type
	}
	return "client", payload.Type
}
