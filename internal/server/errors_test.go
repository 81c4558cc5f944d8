package server

import (
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/internal/authorization"
	catalogdomain "github.com/datavista/metrica/internal/catalog/domain"
	"github.com/datavista/metrica/internal/expr"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{name: "nil", err: nil, wantStatus: http.StatusInternalServerError, wantType: "internal_error"},
		{name: "invalid code", err: metricdomain.ErrInvalidCode, wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "invalid resource type", err: usagedomain.ErrInvalidResourceType, wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "expression", err: &expr.ValidationError{Message: "unbalanced parentheses"}, wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "unauthorized", err: ErrUnauthorized, wantStatus: http.StatusUnauthorized, wantType: "unauthorized"},
		{name: "forbidden", err: authorization.ErrForbidden, wantStatus: http.StatusForbidden, wantType: "forbidden"},
		{name: "metric not found", err: metricdomain.ErrNotFound, wantStatus: http.StatusNotFound, wantType: "not_found"},
		{name: "catalog not found", err: catalogdomain.ErrMetricNotFound, wantStatus: http.StatusNotFound, wantType: "not_found"},
		{name: "code exists", err: metricdomain.ErrCodeExists, wantStatus: http.StatusConflict, wantType: "conflict"},
		{name: "not editable", err: metricdomain.ErrNotEditable, wantStatus: http.StatusConflict, wantType: "conflict"},
		{name: "unknown", err: assert.AnError, wantStatus: http.StatusInternalServerError, wantType: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestMapError_StateError(t *testing.T) {
	status, payload := mapError(&metricdomain.StateError{Op: "publish", Status: metricdomain.StatusArchived})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state_error", payload.Type)
	assert.Equal(t, "publish", payload.Details["operation"])
	assert.Equal(t, "ARCHIVED", payload.Details["status"])
}

func TestMapError_InUse(t *testing.T) {
	status, payload := mapError(&usagedomain.InUseError{MetricID: snowflake.ID(7), UsageCount: 3})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "metric_in_use", payload.Type)
	assert.Equal(t, int64(3), payload.Details["usage_count"])
}

func TestMapError_ValidationPayload(t *testing.T) {
	status, payload := mapError(metricdomain.ErrInvalidDataType)
	assert.Equal(t, http.StatusBadRequest, status)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "data_type", payload.Errors[0].Field)
		assert.Equal(t, "invalid_data_type", payload.Errors[0].Code)
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(metricdomain.ErrInvalidCode)
	assert.Equal(t, "client", kind)
	assert.Equal(t, "validation_error", code)

	kind, code = classifyErrorForLog(assert.AnError)
	assert.Equal(t, "internal", kind)
	assert.Equal(t, "internal_error", code)
}
