package server

import (
	"net/http"
	"strings"

	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	"github.com/datavista/metrica/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type createMetricRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	DataType    string `json:"data_type"`
	Expression  string `json:"expression"`
	SourceID    string `json:"source_id"`
	Owner       string `json:"owner"`
}

type updateMetricRequest struct {
	Code        *string `json:"code,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	DataType    *string `json:"data_type,omitempty"`
	Expression  *string `json:"expression,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
	Owner       *string `json:"owner,omitempty"`
}

func (s *Server) CreateMetric(c *gin.Context) {
	var req createMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.metricSvc.Create(c.Request.Context(), metricdomain.CreateRequest{
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Unit:        strings.TrimSpace(req.Unit),
		DataType:    strings.TrimSpace(req.DataType),
		Expression:  req.Expression,
		SourceID:    strings.TrimSpace(req.SourceID),
		Owner:       strings.TrimSpace(req.Owner),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListMetrics(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Keyword  string `form:"keyword"`
		Status   string `form:"status"`
		SourceID string `form:"source_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.metricSvc.Search(c.Request.Context(), metricdomain.SearchRequest{
		Pagination: query.Pagination,
		Keyword:    strings.TrimSpace(query.Keyword),
		Status:     strings.TrimSpace(query.Status),
		SourceID:   strings.TrimSpace(query.SourceID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMetricByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.metricSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateMetric(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updateMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.metricSvc.Update(c.Request.Context(), metricdomain.UpdateRequest{
		ID:          id,
		Code:        trimStringPtr(req.Code),
		Name:        trimStringPtr(req.Name),
		Description: trimStringPtr(req.Description),
		Unit:        trimStringPtr(req.Unit),
		DataType:    trimStringPtr(req.DataType),
		Expression:  req.Expression,
		SourceID:    trimStringPtr(req.SourceID),
		Owner:       trimStringPtr(req.Owner),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteMetric(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	force := strings.EqualFold(strings.TrimSpace(c.Query("force")), "true")

	if err := s.metricSvc.Delete(c.Request.Context(), id, force); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) PublishMetric(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.metricSvc.Publish(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ArchiveMetric(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.metricSvc.Archive(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func trimStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
