package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	signupdomain "github.com/smallbiznis/controlplane/internal/signup/domain"
)

type CheckDomainRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.catalog.ListPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, plans)
}

func (s *Server) CheckDomain(c *gin.Context) {
	var req CheckDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.signupsvc.CheckDomain(c.Request.Context(), req.Domain)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) Signup(c *gin.Context) {
	var req signupdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	resp, err := s.signupsvc.Signup(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenantID, err := snowflake.ParseString(resp.Tenant.ID); err == nil {
		s.recordAudit(ctx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionTenantSignup,
			TargetType: "tenant",
			TargetID:   resp.Tenant.ID,
			Metadata: map[string]any{
				"domain": resp.Tenant.Domain,
				"plan":   resp.Subscription.Plan,
			},
		})
	}

	c.JSON(http.StatusCreated, resp)
}
