package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
)

func (s *Server) CreateCompany(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registrydomain.CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	company, err := s.registry.CreateCompany(c.Request.Context(), tenant, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": company})
}

func (s *Server) DeleteCompany(c *gin.Context) {
	s.deleteEntity(c, s.registry.DeleteCompany)
}

func (s *Server) CreateBranch(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registrydomain.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.CompanyID == 0 {
		AbortWithError(c, newValidationError("company_id", "required", "company_id is required"))
		return
	}

	branch, err := s.registry.CreateBranch(c.Request.Context(), tenant, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": branch})
}

func (s *Server) DeleteBranch(c *gin.Context) {
	s.deleteEntity(c, s.registry.DeleteBranch)
}

// CreateDocument reserves storage inside the registry transaction, so the
// route carries no admission quota.
func (s *Server) CreateDocument(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registrydomain.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	doc, err := s.registry.CreateDocument(c.Request.Context(), tenant, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": doc})
}

func (s *Server) DeleteDocument(c *gin.Context) {
	s.deleteEntity(c, s.registry.DeleteDocument)
}

func (s *Server) deleteEntity(c *gin.Context, remove func(context.Context, *catalogdomain.Tenant, snowflake.ID) error) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := remove(c.Request.Context(), tenant, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetUsage reports quota consumption against the plan limits together with
// the subscription summary.
func (s *Server) GetUsage(c *gin.Context) {
	tenant, _, err := tenantAndPrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	usage, err := s.ledger.Usage(ctx, tenant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view, err := s.subscriptions.View(ctx, tenant.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usage":        usage.Usage,
		"limits":       usage.Limits,
		"subscription": view,
	})
}
