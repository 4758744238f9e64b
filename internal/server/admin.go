package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	"go.uber.org/zap"
)

type RenewTenantRequest struct {
	Days int `json:"days"`
}

func (s *Server) DeactivateTenant(c *gin.Context) {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.catalog.DeactivateTenant(c.Request.Context(), tenantID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("tenant deactivated by operator", zap.String("tenant_id", tenantID.String()))
	s.recordAudit(c.Request.Context(), auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionTenantDeactivate,
		TargetType: "tenant",
		TargetID:   tenantID.String(),
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteTenant(c *gin.Context) {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.catalog.DeleteTenant(c.Request.Context(), tenantID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("tenant deleted by operator", zap.String("tenant_id", tenantID.String()))
	s.recordAudit(c.Request.Context(), auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionTenantDelete,
		TargetType: "tenant",
		TargetID:   tenantID.String(),
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) RenewTenant(c *gin.Context) {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req RenewTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Days <= 0 {
		AbortWithError(c, newValidationError("days", "invalid_days", "days must be positive"))
		return
	}

	ctx := c.Request.Context()
	sub, err := s.subscriptions.Renew(ctx, tenantID, req.Days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(ctx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionTenantRenew,
		TargetType: "subscription",
		TargetID:   sub.ID.String(),
		Metadata: map[string]any{
			"days":       req.Days,
			"status":     string(sub.Status),
			"period_end": sub.PeriodEnd,
		},
	})

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

// RecountTenant rebuilds the quota counters from the tenant namespace.
func (s *Server) RecountTenant(c *gin.Context) {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	tenant, err := s.catalog.GetTenant(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	counts, err := s.registry.Recount(ctx, tenant)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(ctx, auditdomain.Entry{
		TenantID:   tenant.ID,
		Action:     auditdomain.ActionTenantRecount,
		TargetType: "tenant",
		TargetID:   tenant.ID.String(),
		Metadata: map[string]any{
			"users":      counts.Users,
			"companies":  counts.Companies,
			"branches":   counts.Branches,
			"storage_mb": counts.StorageMB,
		},
	})

	c.JSON(http.StatusOK, gin.H{"data": counts})
}
