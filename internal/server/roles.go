package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/datavista/metrica/internal/authorization"
	"github.com/datavista/metrica/internal/orgcontext"
	"github.com/gin-gonic/gin"
)

type roleAssignmentRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

func (s *Server) GrantRole(c *gin.Context) {
	var req roleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID == 0 {
		AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization"))
		return
	}

	actor := strings.TrimSpace(req.Actor)
	role := strings.TrimSpace(req.Role)
	if err := s.authzSvc.Grant(c.Request.Context(), actor, orgID.String(), role); err != nil {
		AbortWithError(c, roleAssignmentError(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"actor":   actor,
		"role":    role,
		"granted": true,
	}})
}

func (s *Server) RevokeRole(c *gin.Context) {
	var req roleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID == 0 {
		AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization"))
		return
	}

	actor := strings.TrimSpace(req.Actor)
	role := strings.TrimSpace(req.Role)
	if err := s.authzSvc.Revoke(c.Request.Context(), actor, orgID.String(), role); err != nil {
		AbortWithError(c, roleAssignmentError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"actor":   actor,
		"role":    role,
		"revoked": true,
	}})
}

// roleAssignmentError reclassifies subject and role errors as request
// validation: here the actor is the grantee named in the body, not the
// caller's credential.
func roleAssignmentError(err error) error {
	switch {
	case errors.Is(err, authorization.ErrInvalidActor):
		return newValidationError("actor", "invalid_actor", "invalid actor")
	case errors.Is(err, authorization.ErrInvalidRole):
		return newValidationError("role", "invalid_role", "invalid role")
	default:
		return err
	}
}
