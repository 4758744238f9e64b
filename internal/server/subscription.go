package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
)

func (s *Server) GetSubscription(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.subscriptions.View(c.Request.Context(), tenant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// CancelSubscription ends access immediately; the tenant can subscribe again
// through checkout.
func (s *Server) CancelSubscription(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	sub, err := s.subscriptions.Cancel(ctx, tenant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(ctx, auditdomain.Entry{
		TenantID:   tenant.ID,
		Action:     auditdomain.ActionSubscriptionCancel,
		TargetType: "subscription",
		TargetID:   sub.ID.String(),
	})
	view, err := s.subscriptions.View(ctx, tenant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
