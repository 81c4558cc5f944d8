package server

import (
	"net/http"
	"strings"

	catalogdomain "github.com/datavista/metrica/internal/catalog/domain"
	"github.com/gin-gonic/gin"
)

type bindMetricRequest struct {
	MetricID     string `json:"metric_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ResourceName string `json:"resource_name"`
}

type unbindMetricRequest struct {
	MetricID     string `json:"metric_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

func (s *Server) ListSelectableMetrics(c *gin.Context) {
	resp, err := s.catalogSvc.ListSelectable(c.Request.Context(), catalogdomain.ListSelectableRequest{
		SourceID: strings.TrimSpace(c.Query("source_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BindMetric(c *gin.Context) {
	var req bindMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Bind(c.Request.Context(), catalogdomain.BindRequest{
		MetricID:     strings.TrimSpace(req.MetricID),
		ResourceType: strings.TrimSpace(req.ResourceType),
		ResourceID:   strings.TrimSpace(req.ResourceID),
		ResourceName: strings.TrimSpace(req.ResourceName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Bound {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) UnbindMetric(c *gin.Context) {
	var req unbindMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.catalogSvc.Unbind(c.Request.Context(), catalogdomain.UnbindRequest{
		MetricID:     strings.TrimSpace(req.MetricID),
		ResourceType: strings.TrimSpace(req.ResourceType),
		ResourceID:   strings.TrimSpace(req.ResourceID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"unbound": true}})
}
