package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	"go.uber.org/zap"
)

// recordAudit writes an audit entry. A failed write is logged and never fails
// the request it describes.
func (s *Server) recordAudit(ctx context.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("tenant_id", entry.TenantID.String()),
			zap.Error(err),
		)
	}
}

func (s *Server) ListTenantAudit(c *gin.Context) {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageSize := 0
	if raw := c.Query("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer"))
			return
		}
	}

	resp, err := s.audit.List(c.Request.Context(), auditdomain.ListRequest{
		TenantID:  tenantID,
		Action:    c.Query("action"),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
