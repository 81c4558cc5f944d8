package server

import (
	"net/http"
	"strings"

	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"github.com/datavista/metrica/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListMetricUsages(c *gin.Context) {
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.usageSvc.List(c.Request.Context(), usagedomain.ListRequest{
		Pagination: query.Pagination,
		MetricID:   strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
